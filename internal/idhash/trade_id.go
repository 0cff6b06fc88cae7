package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(run_id|symbol|action|timestamp_ms|sequence)
// The sequence number disambiguates multiple trades of the same symbol
// within one time step (a forced exit followed by a re-entry).
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(runID, symbol, action string, timestampMs int64, sequence int) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		runID,
		symbol,
		action,
		timestampMs,
		sequence,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
