package tradingview

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/morinok/dipbot/internal/backtest"
)

func allowDump() bool {
	// Get OS Env for dump DEBUG_DUMP=1 etc
	debugDump := os.Getenv("DEBUG_DUMP")
	if debugDump == "1" {
		slog.Info("DEBUG_DUMP=1, dumping to stderr")
		return true
	}

	return false
}

func DumpPineScript(trades []backtest.Trade) {
	if !allowDump() {
		return
	}

	pineCode := generateTradePinescript(trades)
	fmt.Println(pineCode)
}

// generateTradePinescript generates Pine Script for visualizing simulated
// trades on a TradingView chart: one marker per entry and exit, annotated
// with prices, P&L and the exit reason.
func generateTradePinescript(trades []backtest.Trade) string {
	var sb strings.Builder

	sb.WriteString("// ============================================\n")
	sb.WriteString("// TRADE VALIDATION MARKERS\n")
	sb.WriteString("// ============================================\n\n")

	for i, trade := range trades {
		id := i + 1

		// Entry marker
		entryTimestamp := formatPineTimestamp(trade.EntryTime)
		entryText := fmt.Sprintf("#%d LONG\\nEntry: %.1f", id, trade.EntryPrice)

		sb.WriteString(fmt.Sprintf("t%d_entry = time == %s\n", id, entryTimestamp))
		sb.WriteString(fmt.Sprintf("plotshape(t%d_entry, title=\"#%d Entry\", location=location.bottom, color=color.blue, style=shape.labelup, size=size.small, text=\"%s\", textcolor=color.white)\n\n",
			id, id, entryText))

		// Exit marker
		exitTimestamp := formatPineTimestamp(trade.ExitTime)
		exitColor := "color.green"
		if trade.PnL < 0 {
			exitColor = "color.red"
		}
		exitText := fmt.Sprintf("#%d EXIT\\nExit: %.1f\\nP&L: %.0f\\n%s",
			id, trade.ExitPrice, trade.PnL, trade.ExitReason)

		sb.WriteString(fmt.Sprintf("t%d_exit = time == %s\n", id, exitTimestamp))
		sb.WriteString(fmt.Sprintf("plotshape(t%d_exit, title=\"#%d EXIT\", location=location.top, color=%s, style=shape.labeldown, size=size.small, text=\"%s\", textcolor=color.white)\n\n",
			id, id, exitColor, exitText))
	}

	return sb.String()
}

func formatPineTimestamp(t time.Time) string {
	utc := t.UTC()
	return fmt.Sprintf("timestamp(\"UTC\", %d, %d, %d, %d, %d)",
		utc.Year(), int(utc.Month()), utc.Day(), utc.Hour(), utc.Minute())
}
