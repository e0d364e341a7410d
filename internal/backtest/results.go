package backtest

import "fmt"

type Results struct {
	Trades []Trade

	stats *Statistics
}

func (r *Results) PrintTrades() {
	fmt.Println("\n=== Trade List ===")
	for i, trade := range r.Trades {
		fmt.Printf("#%d | Entry: %.1f | Exit: %.1f | P&L: ¥%.0f | %s | %s\n",
			i+1,
			trade.EntryPrice,
			trade.ExitPrice,
			trade.PnL,
			trade.ExitReason,
			trade.EntryTime.Format("2006-01-02 15:04"),
		)
	}
}
