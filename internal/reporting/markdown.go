package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: %s | Symbol: %s | Strategy: %s\n\n", r.RunID, r.Symbol, r.StrategyID))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Initial Capital | %.2f |\n", r.Summary.InitialCapital))
	sb.WriteString(fmt.Sprintf("| Final Capital | %.2f |\n", r.Summary.FinalCapital))
	sb.WriteString(fmt.Sprintf("| Total Profit | %.2f |\n", r.Summary.TotalProfit))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.2f |\n", r.Summary.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("| Trades | %d |\n", r.Summary.TradeCount))
	sb.WriteString(fmt.Sprintf("| Wins / Losses | %d / %d |\n", r.Summary.WinCount, r.Summary.LossCount))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.4f |\n", r.Summary.WinRate))
	sb.WriteString(fmt.Sprintf("| Avg Win / Avg Loss | %.2f / %.2f |\n", r.Summary.AvgWin, r.Summary.AvgLoss))
	sb.WriteString(fmt.Sprintf("| Max Win / Max Loss | %.2f / %.2f |\n", r.Summary.MaxWin, r.Summary.MaxLoss))
	sb.WriteString(fmt.Sprintf("| Profit Factor | %s |\n", formatRatio(r.Summary.ProfitFactor)))
	sb.WriteString(fmt.Sprintf("| Expectancy | %.2f |\n", r.Summary.Expectancy))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Wins | %d |\n", r.Summary.MaxConsecutiveWins))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", r.Summary.MaxConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("| Avg Holding Days | %.2f |\n", r.Summary.AvgHoldingDays))
	sb.WriteString(fmt.Sprintf("| Annualized Return | %.4f |\n", r.Summary.AnnualizedReturn))
	sb.WriteString(fmt.Sprintf("| Volatility | %.4f |\n", r.Summary.Volatility))
	sb.WriteString(fmt.Sprintf("| Sharpe Ratio | %.4f |\n", r.Summary.SharpeRatio))
	sb.WriteString("\n")

	// Monthly Returns
	sb.WriteString("## Monthly Returns\n\n")
	if len(r.MonthlyReturns) > 0 {
		sb.WriteString("| Month | Profit |\n")
		sb.WriteString("|-------|--------|\n")
		for _, m := range r.MonthlyReturns {
			sb.WriteString(fmt.Sprintf("| %s | %.2f |\n", m.Month, m.Profit))
		}
	} else {
		sb.WriteString("No closed trades.\n")
	}
	sb.WriteString("\n")

	// Drawdown Periods
	sb.WriteString("## Drawdown Periods\n\n")
	if len(r.DrawdownPeriods) > 0 {
		sb.WriteString("| Start | End | Duration | Depth |\n")
		sb.WriteString("|-------|-----|----------|-------|\n")
		for _, d := range r.DrawdownPeriods {
			sb.WriteString(fmt.Sprintf("| %d | %d | %d | %.4f |\n",
				d.StartIndex, d.EndIndex, d.Duration, d.Depth))
		}
	} else {
		sb.WriteString("No drawdown periods.\n")
	}
	sb.WriteString("\n")

	// Trades
	sb.WriteString("## Trades\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| Trade | Time | Action | Price | Volume | Profit | Days | Reason |\n")
		sb.WriteString("|-------|------|--------|-------|--------|--------|------|--------|\n")
		for _, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.2f | %.0f | %.2f | %d | %s |\n",
				shortID(t.TradeID),
				time.UnixMilli(t.TimestampMs).UTC().Format("2006-01-02"),
				t.Action, t.Price, t.Volume, t.Profit, t.HoldingDays, t.Reason))
		}
	} else {
		sb.WriteString("No trades executed.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// shortID abbreviates hash IDs for table display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
