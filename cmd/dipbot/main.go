package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/morinok/dipbot/internal/bot"
	"github.com/morinok/dipbot/internal/config"
	"github.com/morinok/dipbot/internal/kabus"
	"github.com/morinok/dipbot/internal/metrics"
	"github.com/morinok/dipbot/internal/notify"
	"github.com/morinok/dipbot/internal/store"
	"github.com/morinok/dipbot/internal/types"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		slog.Error("Failed to load timezone", "error", err)
		os.Exit(1)
	}
	cal := bot.TokyoCalendar(loc)
	cal.ExcludedDates = cfg.ExcludedDateSet()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.LineEnabled {
		notifier = notify.NewLineNotifier(cfg.LineChannelToken, cfg.LineUserIDs)
	}

	metricsSrv := metrics.Serve(cfg.MetricsAddr)
	defer metricsSrv.Close()
	slog.Info("Metrics listening", "addr", cfg.MetricsAddr)

	var barStore bot.BarStore
	var lookback []types.Bar
	if cfg.ClickHouseAddr != "" {
		st, err := store.Open(ctx, store.Config{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
			Symbol:   cfg.Symbol,
		})
		if err != nil {
			slog.Error("Failed to connect to bar store", "error", err)
			os.Exit(1)
		}
		defer st.Close()

		if err := st.EnsureSchema(ctx); err != nil {
			slog.Error("Failed to ensure bar schema", "error", err)
			os.Exit(1)
		}

		since := time.Now().In(loc).Add(-time.Duration(cfg.LookbackMin) * time.Minute)
		lookback, err = st.Lookback(ctx, since)
		if err != nil {
			slog.Error("Failed to load lookback bars", "error", err)
			os.Exit(1)
		}
		slog.Info("Loaded lookback bars", "count", len(lookback), "since", since)
		barStore = st
	}

	botCfg := bot.Config{
		Quantity:         cfg.Quantity,
		StopLossPct:      cfg.StopLossPct,
		TakeProfitPct:    cfg.TakeProfitPct,
		PriceTick:        cfg.PriceTick,
		SetupTimeframe:   cfg.SetupTimeframe(),
		TriggerTimeframe: cfg.TriggerTimeframe(),
		AutoTrade:        cfg.AutoTrade,
		Calendar:         cal,
	}

	svc := kabus.NewService(cfg.KabusBaseURL, cfg.KabusAPIPass, cfg.KabusOrderPass,
		cfg.Symbol, cfg.Exchange)
	if err := svc.RefreshToken(ctx); err != nil {
		slog.Error("Failed to authenticate with kabu station", "error", err)
		os.Exit(1)
	}

	var b *bot.Bot
	if cfg.DryRun {
		slog.Info("Dry run: orders go to the paper broker")
		paper := bot.NewPaperBroker(func() float64 {
			if b == nil {
				return 0
			}
			return b.Buffer().LastPrice()
		})
		b = bot.New(botCfg, paper, barStore, notifier, lookback)
	} else {
		b = bot.New(botCfg, svc, barStore, notifier, lookback)
	}

	if err := svc.RegisterSymbol(ctx); err != nil {
		slog.Error("Failed to register symbol for push feed", "error", err)
		os.Exit(1)
	}
	stream := kabus.NewStream(cfg.KabusWsURL, b.OnTick)
	if err := stream.Connect(ctx); err != nil {
		slog.Error("Failed to connect to push feed", "error", err)
		os.Exit(1)
	}
	b.SetFeed(stream)

	slog.Info("Starting trading loop", "symbol", cfg.Symbol, "qty", cfg.Quantity,
		"setup", cfg.SetupTimeframe(), "trigger", cfg.TriggerTimeframe(),
		"dryRun", cfg.DryRun, "autoTrade", cfg.AutoTrade)

	runErr := b.Run(ctx)
	if !cfg.DryRun {
		reportHeldPositions(svc, notifier, cfg.Symbol)
	}
	if runErr != nil {
		slog.Error("Trading loop stopped on fatal condition", "error", runErr)
		os.Exit(1)
	}
}

// reportHeldPositions warns when the account still holds the symbol after
// the loop exits, so a manual close is not missed.
func reportHeldPositions(svc *kabus.Service, notifier notify.Notifier, symbol string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	held, err := svc.Positions(ctx)
	if err != nil {
		slog.Warn("Failed to query held positions at shutdown", "error", err)
		return
	}
	for _, p := range held {
		if p.Symbol != symbol || p.Qty <= 0 {
			continue
		}
		slog.Warn("Position still held at shutdown", "symbol", p.Symbol,
			"qty", p.Qty, "price", p.Price)
		notifier.Send("position held at shutdown",
			"symbol: "+p.Symbol,
			fmt.Sprintf("qty: %.0f", p.Qty))
	}
}
