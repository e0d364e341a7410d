package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"time"

	"github.com/morinok/dipbot/internal/backtest"
	"github.com/morinok/dipbot/internal/store"
)

// Parameter grids swept by the optimizer. Trigger timeframes wider than the
// setup timeframe are skipped.
var (
	setupGrid   = []int{2, 3, 5, 7, 10}
	triggerGrid = []int{1, 2, 3}
	slGrid      = []float64{0.5, 1.0, 1.5, 2.0}
	tpGrid      = []float64{0.5, 1.0, 1.5, 2.0, 3.0}
)

type candidate struct {
	setupMin   int
	triggerMin int
	slPct      float64
	tpPct      float64
	stats      *backtest.Statistics
}

func main() {
	var (
		csvPath   = flag.String("csv", "", "load 1-minute bars from a CSV file")
		policy    = flag.String("policy", string(backtest.PolicyFixedSLTP), "exit policy to sweep")
		qty       = flag.Float64("qty", 100, "position quantity")
		priceTick = flag.Float64("tick", 0.5, "price tick size")
		top       = flag.Int("top", 10, "number of best candidates to print")
	)
	flag.Parse()

	if *csvPath == "" {
		slog.Error("-csv is required")
		os.Exit(1)
	}
	history, err := store.LoadCSV(*csvPath)
	if err != nil {
		slog.Error("Failed to load bar history", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded bars", "count", len(history))

	var ranked []candidate
	runs := 0
	for _, setup := range setupGrid {
		for _, trigger := range triggerGrid {
			if trigger > setup {
				continue
			}
			for _, sl := range slGrid {
				for _, tp := range tpGrid {
					cfg := backtest.Config{
						SetupTimeframe:   time.Duration(setup) * time.Minute,
						TriggerTimeframe: time.Duration(trigger) * time.Minute,
						WindowStart:      9 * time.Hour,
						WindowEnd:        11*time.Hour + 30*time.Minute,
						Quantity:         *qty,
						Policy:           backtest.ExitPolicy(*policy),
						StopLossPct:      sl,
						TakeProfitPct:    tp,
						TrailPct:         sl,
						PriceTick:        *priceTick,
					}
					results, err := backtest.NewEngine(history, cfg).Run()
					if err != nil {
						slog.Error("Sweep run failed", "error", err)
						os.Exit(1)
					}
					runs++
					ranked = append(ranked, candidate{
						setupMin:   setup,
						triggerMin: trigger,
						slPct:      sl,
						tpPct:      tp,
						stats:      results.Calculate(),
					})
				}
			}
		}
	}
	slog.Info("Sweep complete", "runs", runs)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].stats.TotalPnL > ranked[j].stats.TotalPnL
	})

	n := *top
	if n > len(ranked) {
		n = len(ranked)
	}
	fmt.Printf("\n=== Top %d Parameter Sets ===\n", n)
	fmt.Println("rank | setup | trigger | SL%  | TP%  | trades | win%  | P&L      | PF")
	for i := 0; i < n; i++ {
		c := ranked[i]
		pf := fmt.Sprintf("%.2f", c.stats.ProfitFactor)
		if math.IsInf(c.stats.ProfitFactor, 1) {
			pf = "inf"
		}
		fmt.Printf("%4d | %4dm | %6dm | %.2f | %.2f | %6d | %5.1f | ¥%-7.0f | %s\n",
			i+1, c.setupMin, c.triggerMin, c.slPct, c.tpPct,
			c.stats.TotalTrades, c.stats.WinRate, c.stats.TotalPnL, pf)
	}

	if len(ranked) > 0 {
		champion := ranked[0]
		fmt.Printf("\n=== Champion: setup %dm, trigger %dm, SL %.2f%%, TP %.2f%% ===\n",
			champion.setupMin, champion.triggerMin, champion.slPct, champion.tpPct)
		champion.stats.Print()
	}
}
