package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/morinok/dipbot/internal/backtest"
	"github.com/morinok/dipbot/internal/store"
	"github.com/morinok/dipbot/internal/tradingview"
	"github.com/morinok/dipbot/internal/types"
)

func main() {
	var (
		csvPath     = flag.String("csv", "", "load 1-minute bars from a CSV file instead of ClickHouse")
		chAddr      = flag.String("ch-addr", os.Getenv("CLICKHOUSE_ADDR"), "ClickHouse address")
		chDatabase  = flag.String("ch-database", envOr("CLICKHOUSE_DATABASE", "dipbot"), "ClickHouse database")
		chUser      = flag.String("ch-user", envOr("CLICKHOUSE_USER", "default"), "ClickHouse user")
		chPass      = flag.String("ch-password", os.Getenv("CLICKHOUSE_PASSWORD"), "ClickHouse password")
		symbol      = flag.String("symbol", os.Getenv("SYMBOL"), "instrument symbol")
		from        = flag.String("from", "", "start date (2006-01-02), ClickHouse only")
		to          = flag.String("to", "", "end date (2006-01-02), ClickHouse only")
		policy      = flag.String("policy", string(backtest.PolicyFixedSLTP), "exit policy: trailing_stop, fixed_sl_tp, next_session_open")
		setupMin    = flag.Int("setup", 5, "setup timeframe in minutes")
		triggerMin  = flag.Int("trigger", 1, "trigger timeframe in minutes")
		slPct       = flag.Float64("sl", 1.0, "stop loss percent")
		tpPct       = flag.Float64("tp", 2.0, "take profit percent")
		trailPct    = flag.Float64("trail", 1.0, "trailing stop percent")
		qty         = flag.Float64("qty", 100, "position quantity")
		priceTick   = flag.Float64("tick", 0.5, "price tick size")
		windowStart = flag.String("window-start", "09:00", "search window start (HH:MM)")
		windowEnd   = flag.String("window-end", "11:30", "search window end (HH:MM)")
		showTrades  = flag.Bool("trades", false, "print the trade list")
	)
	flag.Parse()

	ws, err := parseClock(*windowStart)
	if err != nil {
		slog.Error("Invalid window start", "error", err)
		os.Exit(1)
	}
	we, err := parseClock(*windowEnd)
	if err != nil {
		slog.Error("Invalid window end", "error", err)
		os.Exit(1)
	}
	if *triggerMin > *setupMin {
		slog.Error("Trigger timeframe must not exceed setup timeframe",
			"setup", *setupMin, "trigger", *triggerMin)
		os.Exit(1)
	}

	history, err := loadBars(*csvPath, *chAddr, *chDatabase, *chUser, *chPass, *symbol, *from, *to)
	if err != nil {
		slog.Error("Failed to load bar history", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded bars", "count", len(history))

	cfg := backtest.Config{
		SetupTimeframe:   time.Duration(*setupMin) * time.Minute,
		TriggerTimeframe: time.Duration(*triggerMin) * time.Minute,
		WindowStart:      ws,
		WindowEnd:        we,
		Quantity:         *qty,
		Policy:           backtest.ExitPolicy(*policy),
		StopLossPct:      *slPct,
		TakeProfitPct:    *tpPct,
		TrailPct:         *trailPct,
		PriceTick:        *priceTick,
	}

	results, err := backtest.NewEngine(history, cfg).Run()
	if err != nil {
		slog.Error("Backtest failed", "error", err)
		os.Exit(1)
	}

	stats := results.Calculate()
	stats.Print()

	if *showTrades {
		results.PrintTrades()
	}
	tradingview.DumpPineScript(results.Trades)
}

func loadBars(csvPath, addr, database, user, pass, symbol, from, to string) ([]types.Bar, error) {
	if csvPath != "" {
		return store.LoadCSV(csvPath)
	}
	if addr == "" {
		return nil, fmt.Errorf("either -csv or -ch-addr is required")
	}

	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{
		Addr:     addr,
		Database: database,
		Username: user,
		Password: pass,
		Symbol:   symbol,
	})
	if err != nil {
		return nil, err
	}
	defer st.Close()

	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return nil, err
	}
	fromTime := time.Date(2000, 1, 1, 0, 0, 0, 0, loc)
	toTime := time.Now().In(loc)
	if from != "" {
		if fromTime, err = time.ParseInLocation("2006-01-02", from, loc); err != nil {
			return nil, fmt.Errorf("bad -from date: %w", err)
		}
	}
	if to != "" {
		if toTime, err = time.ParseInLocation("2006-01-02", to, loc); err != nil {
			return nil, fmt.Errorf("bad -to date: %w", err)
		}
		toTime = toTime.AddDate(0, 0, 1)
	}
	return st.Range(ctx, fromTime, toTime)
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("bad hour in %q: %w", s, err)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("bad minute in %q: %w", s, err)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
