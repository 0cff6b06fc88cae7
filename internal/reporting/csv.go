package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the trade list as CSV string.
func RenderCSV(trades []TradeRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("trade_id,timestamp_ms,action,price,volume,profit,holding_days,reason\n")

	// Rows
	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%.6f,%.2f,%.6f,%d,%s\n",
			t.TradeID,
			t.TimestampMs,
			t.Action,
			t.Price,
			t.Volume,
			t.Profit,
			t.HoldingDays,
			csvEscape(t.Reason),
		))
	}

	return sb.String()
}

// csvEscape quotes fields containing commas or quotes.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
