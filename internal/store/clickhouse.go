// Package store persists 1-minute bars to ClickHouse, keyed by symbol and
// close timestamp. The live bot appends each closed bar and loads a lookback
// window at startup; the backtest reads whole date ranges.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/morinok/dipbot/internal/logging"
	"github.com/morinok/dipbot/internal/types"
)

var storeLog = logging.New("store")

type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Symbol   string
}

type Store struct {
	conn   driver.Conn
	symbol string
}

// Open connects and verifies the connection with a ping.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse at %s: %w", cfg.Addr, err)
	}
	storeLog.Info("connected to clickhouse", "addr", cfg.Addr, "database", cfg.Database)
	return &Store{conn: conn, symbol: cfg.Symbol}, nil
}

// EnsureSchema creates the bars table when missing. ReplacingMergeTree makes
// re-appending the same minute idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS bars (
			symbol    String,
			ts        DateTime('Asia/Tokyo'),
			open      Float64,
			high      Float64,
			low       Float64,
			close     Float64,
			volume    Float64
		) ENGINE = ReplacingMergeTree()
		ORDER BY (symbol, ts)
	`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create bars table: %w", err)
	}
	return nil
}

// AppendBar persists one closed bar.
func (s *Store) AppendBar(ctx context.Context, bar types.Bar) error {
	return s.AppendBars(ctx, []types.Bar{bar})
}

// AppendBars persists a batch of bars in one insert.
func (s *Store) AppendBars(ctx context.Context, barsIn []types.Bar) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO bars (symbol, ts, open, high, low, close, volume)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert batch: %w", err)
	}
	for _, b := range barsIn {
		if err := batch.Append(s.symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("failed to append bar %s to batch: %w", b.Timestamp, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send bar batch: %w", err)
	}
	storeLog.Debug("persisted bars", "count", len(barsIn))
	return nil
}

// Lookback returns bars closed after since, in timestamp order.
func (s *Store) Lookback(ctx context.Context, since time.Time) ([]types.Bar, error) {
	return s.query(ctx,
		"SELECT ts, open, high, low, close, volume FROM bars WHERE symbol = ? AND ts > ? ORDER BY ts",
		s.symbol, since)
}

// Range returns bars with from < ts <= to, in timestamp order.
func (s *Store) Range(ctx context.Context, from, to time.Time) ([]types.Bar, error) {
	return s.query(ctx,
		"SELECT ts, open, high, low, close, volume FROM bars WHERE symbol = ? AND ts > ? AND ts <= ? ORDER BY ts",
		s.symbol, from, to)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]types.Bar, error) {
	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var out []types.Bar
	for rows.Next() {
		var b types.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bar rows: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}
