package backtest

import (
	"fmt"
	"math"
	"time"
)

type Statistics struct {
	// Basic
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	// P&L
	TotalPnL     float64
	GrossProfit  float64
	GrossLoss    float64 // negative sum of losing trades
	ProfitFactor float64 // +Inf when there are profits and no losses

	// Averages and extremes
	AvgWin        float64
	AvgLoss       float64
	MaxWin        float64
	MaxLoss       float64
	ExpectedValue float64

	// Risk
	MaxDrawdown float64

	// Duration
	AvgTradeDuration time.Duration
}

func (r *Results) Calculate() *Statistics {
	// Return cached if already calculated
	if r.stats != nil {
		return r.stats
	}

	stats := &Statistics{
		TotalTrades: len(r.Trades),
	}

	if len(r.Trades) == 0 {
		r.stats = stats
		return stats
	}

	var totalWin, totalLoss float64
	var totalDuration time.Duration
	var peak, running, maxDD float64

	for _, trade := range r.Trades {
		if trade.PnL > 0 {
			stats.WinningTrades++
			totalWin += trade.PnL
			if trade.PnL > stats.MaxWin {
				stats.MaxWin = trade.PnL
			}
		} else if trade.PnL < 0 {
			stats.LosingTrades++
			totalLoss += trade.PnL // Already negative
			if trade.PnL < stats.MaxLoss {
				stats.MaxLoss = trade.PnL
			}
		}

		running += trade.PnL
		if running > peak {
			peak = running
		}
		if dd := peak - running; dd > maxDD {
			maxDD = dd
		}

		totalDuration += trade.ExitTime.Sub(trade.EntryTime)
	}

	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100

	stats.GrossProfit = totalWin
	stats.GrossLoss = totalLoss
	stats.TotalPnL = totalWin + totalLoss

	if totalLoss != 0 {
		stats.ProfitFactor = totalWin / -totalLoss
	} else if totalWin > 0 {
		stats.ProfitFactor = math.Inf(1)
	}

	if stats.WinningTrades > 0 {
		stats.AvgWin = totalWin / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = totalLoss / float64(stats.LosingTrades)
	}
	stats.ExpectedValue = stats.TotalPnL / float64(stats.TotalTrades)

	stats.MaxDrawdown = maxDD
	stats.AvgTradeDuration = totalDuration / time.Duration(stats.TotalTrades)

	r.stats = stats
	return stats
}

func (s *Statistics) Print() {
	fmt.Println("\n=== Backtest Results ===")
	if s.TotalTrades == 0 {
		fmt.Println("No trades")
		return
	}

	fmt.Printf("Total Trades:     %d\n", s.TotalTrades)
	fmt.Printf("Winning Trades:   %d (%.2f%%)\n", s.WinningTrades, s.WinRate)
	fmt.Printf("Losing Trades:    %d\n\n", s.LosingTrades)

	fmt.Printf("Total P&L:        ¥%.0f\n", s.TotalPnL)
	fmt.Printf("Gross Profit:     ¥%.0f\n", s.GrossProfit)
	fmt.Printf("Gross Loss:       ¥%.0f\n", s.GrossLoss)
	if math.IsInf(s.ProfitFactor, 1) {
		fmt.Println("Profit Factor:    inf")
	} else {
		fmt.Printf("Profit Factor:    %.2f\n", s.ProfitFactor)
	}
	fmt.Println()

	fmt.Printf("Avg Win:          ¥%.0f (max ¥%.0f)\n", s.AvgWin, s.MaxWin)
	fmt.Printf("Avg Loss:         ¥%.0f (max ¥%.0f)\n", s.AvgLoss, s.MaxLoss)
	fmt.Printf("Expected Value:   ¥%.0f per trade\n\n", s.ExpectedValue)

	fmt.Printf("Max Drawdown:     ¥%.0f\n", s.MaxDrawdown)
	fmt.Printf("Avg Duration:     %s\n", s.AvgTradeDuration.Round(time.Minute))
}
