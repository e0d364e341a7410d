// Package bot drives the live trading loop: tick ingestion, bar rollup,
// signal evaluation, and the order lifecycle state machine.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/morinok/dipbot/internal/bars"
	"github.com/morinok/dipbot/internal/logging"
	"github.com/morinok/dipbot/internal/metrics"
	"github.com/morinok/dipbot/internal/notify"
	"github.com/morinok/dipbot/internal/signal"
	"github.com/morinok/dipbot/internal/types"
)

// State is the order lifecycle state. Exactly one live position exists when
// the state is POSITION_OPEN, WAITING_FOR_CANCEL or CLOSING.
type State string

const (
	StateIdle             State = "IDLE"
	StateWaitingForEntry  State = "WAITING_FOR_ENTRY"
	StatePositionOpen     State = "POSITION_OPEN"
	StateWaitingForCancel State = "WAITING_FOR_CANCEL"
	StateClosing          State = "CLOSING"
)

var allStates = []string{
	string(StateIdle), string(StateWaitingForEntry), string(StatePositionOpen),
	string(StateWaitingForCancel), string(StateClosing),
}

const (
	orderPollRetries = 10
	pollInterval     = 1 * time.Second
	offHoursSleep    = 30 * time.Second
	priceLogEvery    = 10 * time.Second
)

var botLog = logging.New("bot")

type Config struct {
	Quantity         int
	StopLossPct      float64 // percent, 1.5 means 1.5%
	TakeProfitPct    float64 // percent
	PriceTick        float64
	SetupTimeframe   time.Duration
	TriggerTimeframe time.Duration
	AutoTrade        bool
	Calendar         Calendar
}

// BarStore persists closed bars. A failed append is logged and tolerated;
// history is advisory, not required for trading.
type BarStore interface {
	AppendBar(ctx context.Context, bar types.Bar) error
}

// Feed is the live price subscription. Err reports an unrecoverable feed
// failure; the loop treats it as fatal because trading blind on a frozen
// price is worse than stopping.
type Feed interface {
	Err() <-chan error
	Close() error
}

type Bot struct {
	cfg      Config
	broker   Broker
	store    BarStore
	notifier notify.Notifier
	feed     Feed

	buf      *bars.TickBuffer
	series   *bars.Series
	detector *signal.Detector

	state         State
	entryOrderID  string
	stopOrderID   string
	position      *types.Position
	retries       int
	sessionStart  time.Time
	lastTrigger   time.Time
	currentMinute time.Time
	lastPriceLog  time.Time
	exitReason    string

	now func() time.Time
}

// New builds a bot seeded with the lookback bars loaded from the store.
func New(cfg Config, broker Broker, store BarStore, notifier notify.Notifier, lookback []types.Bar) *Bot {
	return &Bot{
		cfg:      cfg,
		broker:   broker,
		store:    store,
		notifier: notifier,
		buf:      bars.NewTickBuffer(),
		series:   bars.NewSeries(lookback),
		detector: signal.NewDetector(),
		state:    StateIdle,
		now:      time.Now,
	}
}

// SetFeed attaches the live subscription so the loop can watch for feed
// failures and shutdown can close it.
func (b *Bot) SetFeed(f Feed) { b.feed = f }

// feedErrs returns the feed's error channel, or a nil channel (never ready)
// when no feed is attached.
func (b *Bot) feedErrs() <-chan error {
	if b.feed == nil {
		return nil
	}
	return b.feed.Err()
}

// Buffer exposes the tick buffer, used to wire the feed handler and as the
// paper broker's price source.
func (b *Bot) Buffer() *bars.TickBuffer { return b.buf }

// OnTick is the feed handler. It only appends to the buffer; all real work
// happens on the control loop.
func (b *Bot) OnTick(t types.Tick) {
	b.buf.Append(t)
	metrics.LastPrice.Set(t.Price)
	if time.Since(b.lastPriceLog) >= priceLogEvery {
		b.lastPriceLog = time.Now()
		botLog.Info("price", "price", t.Price, "at", t.Timestamp)
	}
}

// Run is the control loop. It returns nil on a clean shutdown (stop signal or
// end-of-day) and an error on a fatal condition.
func (b *Bot) Run(ctx context.Context) error {
	b.setState(StateIdle)
	b.notifier.Send("start", fmt.Sprintf("trading loop started, qty=%d sl=%.2f%% tp=%.2f%%",
		b.cfg.Quantity, b.cfg.StopLossPct, b.cfg.TakeProfitPct))
	defer b.shutdown()

	for {
		select {
		case <-ctx.Done():
			b.exitReason = "stop signal received"
			return nil
		case err := <-b.feedErrs():
			return b.fatal("price feed lost", err)
		default:
		}

		now := b.now()
		if b.cfg.Calendar.PastDeadline(now) && b.state == StateIdle {
			b.exitReason = "idle at end-of-day deadline"
			botLog.Info("past deadline with no position, shutting down")
			return nil
		}

		start, open := b.cfg.Calendar.SessionStart(now)
		if !open && b.state == StateIdle {
			sleepCtx(ctx, offHoursSleep)
			continue
		}

		if err := b.step(ctx, now, start, open); err != nil {
			return err
		}
		sleepCtx(ctx, pollInterval)
	}
}

// step runs one control cycle: session bookkeeping, minute rollup, then one
// state machine transition.
func (b *Bot) step(ctx context.Context, now, sessionStart time.Time, open bool) error {
	if open && !sessionStart.Equal(b.sessionStart) {
		b.sessionStart = sessionStart
		b.detector.Reset()
		b.lastTrigger = time.Time{}
		botLog.Info("session opened", "start", sessionStart)
	}

	b.rollMinute(ctx, now)

	switch b.state {
	case StateIdle:
		if open {
			return b.evaluateSignals(ctx, now)
		}
		return nil
	case StateWaitingForEntry:
		return b.reconcileEntry(ctx)
	case StatePositionOpen:
		return b.monitorPosition(ctx)
	case StateWaitingForCancel:
		return b.confirmCancel(ctx)
	case StateClosing:
		b.closeCycle()
		return nil
	default:
		return fmt.Errorf("unknown state %s", b.state)
	}
}

// rollMinute closes the previous minute's bar when a boundary has passed.
// An empty minute emits no bar.
func (b *Bot) rollMinute(ctx context.Context, now time.Time) {
	minute := now.Truncate(time.Minute)
	if b.currentMinute.IsZero() {
		b.currentMinute = minute
		return
	}
	if !minute.After(b.currentMinute) {
		return
	}
	b.currentMinute = minute

	ticks := b.buf.Swap()
	bar, ok := bars.Aggregate(ticks, minute)
	if !ok {
		return
	}
	b.series.Append(bar)
	metrics.BarsTotal.Inc()

	if b.store != nil {
		if err := b.store.AppendBar(ctx, bar); err != nil {
			botLog.Warn("failed to persist bar", "closedAt", bar.Timestamp, "error", err)
		}
	}
}

func (b *Bot) evaluateSignals(ctx context.Context, now time.Time) error {
	setup := bars.SessionWindow(
		bars.Resample(b.series.Bars(), b.cfg.SetupTimeframe), b.sessionStart, now)
	st := b.detector.Scan(setup)
	if !st.HasReversal {
		return nil
	}

	trigger := bars.SessionWindow(
		bars.Resample(b.series.Bars(), b.cfg.TriggerTimeframe), b.sessionStart, now)
	if len(trigger) == 0 {
		return nil
	}

	// Each trigger bar is evaluated once.
	last := trigger[len(trigger)-1]
	if !last.Timestamp.After(b.lastTrigger) {
		return nil
	}
	b.lastTrigger = last.Timestamp

	trig, fired := signal.EntryTrigger(trigger, st.ReversalPoint)
	if !fired {
		return nil
	}

	if !b.cfg.AutoTrade {
		botLog.Info("entry signal with auto-trade disabled", "close", trig.Close,
			"reversalPoint", st.ReversalPoint)
		b.notifier.Send("signal", fmt.Sprintf("entry signal at %.1f (reversal %.1f), auto-trade disabled",
			trig.Close, st.ReversalPoint))
		b.detector.Reset()
		return nil
	}

	id, err := b.broker.SendMarketBuy(ctx, b.cfg.Quantity)
	if err != nil {
		return b.fatal("entry order submission failed", err)
	}
	metrics.OrdersTotal.WithLabelValues("entry").Inc()
	b.entryOrderID = id
	b.retries = 0
	b.detector.Reset()
	b.setState(StateWaitingForEntry)
	b.notifier.Send("entry", fmt.Sprintf("market buy submitted, qty=%d trigger close=%.1f",
		b.cfg.Quantity, trig.Close))
	return nil
}

// reconcileEntry polls the broker's order list for the entry order. The list
// endpoint tolerates the brief window where a just-accepted order is missing
// from single-order lookups.
func (b *Bot) reconcileEntry(ctx context.Context) error {
	orders, err := b.broker.Orders(ctx)
	if err != nil {
		botLog.Warn("order list query failed, retrying next cycle", "error", err)
		return nil
	}

	o, found := findOrder(orders, b.entryOrderID)
	if !found {
		b.retries++
		botLog.Warn("entry order not in order list", "orderId", b.entryOrderID,
			"attempt", b.retries)
		if b.retries >= orderPollRetries {
			return b.fatal("entry order unconfirmable: absent from order list after retries", nil)
		}
		return nil
	}
	b.retries = 0

	switch {
	case o.State == types.OrderFilled && o.ExecutedPrice > 0:
		return b.openPosition(ctx, o.ExecutedPrice)
	case o.State == types.OrderCancelled || o.State == types.OrderFailed:
		botLog.Info("entry order ended unfilled", "orderId", b.entryOrderID, "state", o.State)
		b.notifier.Send("entry", "entry order "+string(o.State)+", no position opened")
		b.entryOrderID = ""
		b.setState(StateIdle)
		return nil
	default:
		return nil
	}
}

// openPosition places the protective stop. Failing to protect a filled entry
// is the one condition that must never be left unattended, so a stop
// placement error stops the bot.
func (b *Bot) openPosition(ctx context.Context, entryPrice float64) error {
	sl := types.RoundToTick(entryPrice*(1-b.cfg.StopLossPct/100), b.cfg.PriceTick)
	tp := types.RoundToTick(entryPrice*(1+b.cfg.TakeProfitPct/100), b.cfg.PriceTick)

	id, err := b.broker.SendStopSell(ctx, b.cfg.Quantity, sl)
	if err != nil {
		return b.fatal(fmt.Sprintf("stop loss placement failed, position at %.1f is unprotected", entryPrice), err)
	}
	metrics.OrdersTotal.WithLabelValues("stop_loss").Inc()

	b.stopOrderID = id
	b.entryOrderID = ""
	b.position = &types.Position{
		EntryPrice:      entryPrice,
		EntryTime:       b.now(),
		StopLossPrice:   sl,
		TakeProfitPrice: tp,
		Quantity:        float64(b.cfg.Quantity),
	}
	b.setState(StatePositionOpen)
	botLog.Info("position opened", "entry", entryPrice, "sl", sl, "tp", tp)
	b.notifier.Send("entry", fmt.Sprintf("filled at %.1f, SL %.1f TP %.1f", entryPrice, sl, tp))
	return nil
}

func (b *Bot) monitorPosition(ctx context.Context) error {
	price := b.buf.LastPrice()
	if price > 0 && price >= b.position.TakeProfitPrice {
		// The stop must be gone before any profit-taking sell goes out,
		// otherwise both sells can execute.
		if err := b.broker.CancelOrder(ctx, b.stopOrderID); err != nil {
			return b.fatal("stop loss cancellation request failed before take profit", err)
		}
		b.retries = 0
		b.setState(StateWaitingForCancel)
		return nil
	}

	orders, err := b.broker.Orders(ctx)
	if err != nil {
		botLog.Warn("order list query failed, retrying next cycle", "error", err)
		return nil
	}
	if o, found := findOrder(orders, b.stopOrderID); found && o.State == types.OrderFilled {
		profit := (o.ExecutedPrice - b.position.EntryPrice) * b.position.Quantity
		botLog.Info("stop loss filled", "exit", o.ExecutedPrice, "profit", profit)
		metrics.TradesTotal.WithLabelValues("stop_loss").Inc()
		b.notifier.Send("exit", fmt.Sprintf("stop loss filled at %.1f, profit %.0f", o.ExecutedPrice, profit))
		b.setState(StateClosing)
	}
	return nil
}

func (b *Bot) confirmCancel(ctx context.Context) error {
	orders, err := b.broker.Orders(ctx)
	if err != nil {
		botLog.Warn("order list query failed, retrying next cycle", "error", err)
		return nil
	}

	o, found := findOrder(orders, b.stopOrderID)
	if !found {
		b.retries++
		if b.retries >= orderPollRetries {
			return b.fatal("stop loss order unconfirmable during cancellation", nil)
		}
		return nil
	}
	b.retries = 0

	switch o.State {
	case types.OrderCancelled:
		id, err := b.broker.SendLimitSell(ctx, b.cfg.Quantity, b.position.TakeProfitPrice)
		if err != nil {
			return b.fatal("take profit placement failed after cancelling stop loss", err)
		}
		metrics.OrdersTotal.WithLabelValues("take_profit").Inc()
		metrics.TradesTotal.WithLabelValues("take_profit").Inc()
		botLog.Info("take profit submitted", "orderId", id, "price", b.position.TakeProfitPrice)
		b.notifier.Send("exit", fmt.Sprintf("take profit limit sell at %.1f submitted", b.position.TakeProfitPrice))
		b.setState(StateClosing)
	case types.OrderFilled:
		// The stop raced the cancellation and won; this is a stop-loss exit.
		profit := (o.ExecutedPrice - b.position.EntryPrice) * b.position.Quantity
		botLog.Info("stop loss filled before cancel confirmed", "exit", o.ExecutedPrice, "profit", profit)
		metrics.TradesTotal.WithLabelValues("stop_loss").Inc()
		b.notifier.Send("exit", fmt.Sprintf("stop loss filled at %.1f during cancel, profit %.0f",
			o.ExecutedPrice, profit))
		b.setState(StateClosing)
	}
	return nil
}

// closeCycle clears all per-trade state and returns to IDLE.
func (b *Bot) closeCycle() {
	b.position = nil
	b.entryOrderID = ""
	b.stopOrderID = ""
	b.retries = 0
	b.detector.Reset()
	b.setState(StateIdle)
	botLog.Info("trade cycle closed")
}

func (b *Bot) setState(s State) {
	if b.state != s {
		botLog.Info("state transition", "from", b.state, "to", s)
	}
	b.state = s
	metrics.SetState(string(s), allStates)
}

// State returns the current lifecycle state.
func (b *Bot) State() State { return b.state }

// fatal records the reason, notifies the operator, and returns the error
// that stops the control loop.
func (b *Bot) fatal(reason string, err error) error {
	b.exitReason = reason
	botLog.Error("fatal condition", "reason", reason, "error", err)
	msg := reason
	if err != nil {
		msg = fmt.Sprintf("%s: %v", reason, err)
	}
	b.notifier.Send("fatal", msg)
	if err != nil {
		return fmt.Errorf("%s: %w", reason, err)
	}
	return fmt.Errorf("%s", reason)
}

// shutdown cleans up outstanding orders and the feed, then emits the final
// lifecycle notification. It runs on every exit path, fatal or clean.
func (b *Bot) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if b.state == StateWaitingForEntry && b.entryOrderID != "" {
		if err := b.broker.CancelOrder(ctx, b.entryOrderID); err != nil {
			botLog.Error("failed to cancel outstanding entry order", "orderId", b.entryOrderID, "error", err)
		}
	}
	if b.stopOrderID != "" {
		if err := b.broker.CancelOrder(ctx, b.stopOrderID); err != nil {
			botLog.Error("failed to cancel outstanding stop order", "orderId", b.stopOrderID, "error", err)
		}
	}
	if b.feed != nil {
		if err := b.feed.Close(); err != nil {
			botLog.Warn("feed close failed", "error", err)
		}
	}

	reason := b.exitReason
	if reason == "" {
		reason = "unknown"
	}
	b.notifier.Send("stop", "trading loop stopped: "+reason, "final state: "+string(b.state))
	botLog.Info("shutdown complete", "reason", reason, "state", b.state)
}

func findOrder(orders []types.Order, id string) (types.Order, bool) {
	for _, o := range orders {
		if o.ID == id {
			return o, true
		}
	}
	return types.Order{}, false
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
