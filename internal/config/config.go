// Package config loads bot settings from the environment, with optional
// .env file support for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/morinok/dipbot/internal/logging"
)

var cfgLog = logging.New("config")

type Config struct {
	// Instrument
	Symbol    string  `validate:"required"`
	Exchange  int     `validate:"required,min=1"`
	Quantity  int     `validate:"required,min=1"`
	PriceTick float64 `validate:"gte=0"`

	// Strategy
	SetupTimeframeMin   int     `validate:"required,min=1"`
	TriggerTimeframeMin int     `validate:"required,min=1"`
	StopLossPct         float64 `validate:"gt=0"`
	TakeProfitPct       float64 `validate:"gt=0"`
	TrailPct            float64 `validate:"gte=0"`
	LookbackMin         int     `validate:"gte=0"`

	// Execution
	AutoTrade bool
	DryRun    bool

	// kabu station
	KabusBaseURL   string `validate:"required,url"`
	KabusWsURL     string `validate:"required"`
	KabusAPIPass   string `validate:"required"`
	KabusOrderPass string `validate:"required"`

	// ClickHouse
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePass     string

	// LINE notifications
	LineEnabled      bool
	LineChannelToken string
	LineUserIDs      []string

	// Observability
	MetricsAddr string

	// Dates the bot refuses to trade (holidays), "2006-01-02" each.
	ExcludedDates []string `validate:"dive,datetime=2006-01-02"`
}

// Load reads the environment, layering an optional .env file underneath, and
// validates the result. Startup aborts on any validation failure, before any
// broker call is made.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		cfgLog.Debug("loaded .env file")
	}

	cfg := &Config{
		Symbol:    getEnv("SYMBOL", ""),
		Exchange:  getEnvInt("EXCHANGE", 1),
		Quantity:  getEnvInt("QUANTITY", 100),
		PriceTick: getEnvFloat("PRICE_TICK", 0.5),

		SetupTimeframeMin:   getEnvInt("SETUP_TIMEFRAME_MIN", 5),
		TriggerTimeframeMin: getEnvInt("TRIGGER_TIMEFRAME_MIN", 1),
		StopLossPct:         getEnvFloat("STOP_LOSS_PCT", 1.0),
		TakeProfitPct:       getEnvFloat("TAKE_PROFIT_PCT", 2.0),
		TrailPct:            getEnvFloat("TRAIL_PCT", 1.0),
		LookbackMin:         getEnvInt("LOOKBACK_MIN", 120),

		AutoTrade: getEnvBool("AUTO_TRADE_ENABLED", false),
		DryRun:    getEnvBool("DRY_RUN", true),

		KabusBaseURL:   getEnv("KABUS_BASE_URL", "http://localhost:18080/kabusapi"),
		KabusWsURL:     getEnv("KABUS_WS_URL", "ws://localhost:18080/kabusapi/websocket"),
		KabusAPIPass:   getEnv("KABUS_API_PASSWORD", ""),
		KabusOrderPass: getEnv("KABUS_ORDER_PASSWORD", ""),

		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "dipbot"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass:     getEnv("CLICKHOUSE_PASSWORD", ""),

		LineEnabled:      getEnvBool("LINE_ENABLED", false),
		LineChannelToken: getEnv("LINE_CHANNEL_TOKEN", ""),
		LineUserIDs:      getEnvList("LINE_USER_IDS"),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		ExcludedDates: getEnvList("EXCLUDED_DATES"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces field constraints plus the cross-field rules the tag
// syntax cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.TriggerTimeframeMin > c.SetupTimeframeMin {
		return fmt.Errorf("invalid configuration: trigger timeframe %dm exceeds setup timeframe %dm",
			c.TriggerTimeframeMin, c.SetupTimeframeMin)
	}
	if c.LineEnabled && (c.LineChannelToken == "" || len(c.LineUserIDs) == 0) {
		return fmt.Errorf("invalid configuration: LINE enabled but channel token or user ids missing")
	}
	return nil
}

// SetupTimeframe returns the setup interval as a duration.
func (c *Config) SetupTimeframe() time.Duration {
	return time.Duration(c.SetupTimeframeMin) * time.Minute
}

// TriggerTimeframe returns the trigger interval as a duration.
func (c *Config) TriggerTimeframe() time.Duration {
	return time.Duration(c.TriggerTimeframeMin) * time.Minute
}

// ExcludedDateSet returns the excluded dates as a lookup set.
func (c *Config) ExcludedDateSet() map[string]bool {
	out := make(map[string]bool, len(c.ExcludedDates))
	for _, d := range c.ExcludedDates {
		out[d] = true
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		cfgLog.Warn("ignoring non-integer env value", "key", key, "value", v)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		cfgLog.Warn("ignoring non-numeric env value", "key", key, "value", v)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		cfgLog.Warn("ignoring non-boolean env value", "key", key, "value", v)
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
