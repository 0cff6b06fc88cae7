package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(symbol|strategy_id|start_ms|end_ms)
// Two runs over the same instrument, strategy and window share an ID,
// which is what makes stored results append-only de-duplicable.
// Returns hex-encoded hash (64 characters).
func ComputeRunID(symbol, strategyID string, startMs, endMs int64) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		symbol,
		strategyID,
		startMs,
		endMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
