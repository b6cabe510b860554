package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Alias1177/PaperTrader/models"
)

// DB represents a database connection
type DB struct {
	*sqlx.DB
	timeout time.Duration
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Timeout  time.Duration
}

// New creates a new database connection
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	conn, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	db := Wrap(conn, params.Timeout)
	if err := db.createTables(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Wrap uses an existing connection without touching the schema.
func Wrap(conn *sqlx.DB, timeout time.Duration) *DB {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DB{DB: conn, timeout: timeout}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS market_data (
		symbol TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (symbol, timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		strategy TEXT NOT NULL,
		reason TEXT NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price DOUBLE PRECISION NOT NULL,
		position_size DOUBLE PRECISION NOT NULL,
		gross_pnl DOUBLE PRECISION NOT NULL,
		fees DOUBLE PRECISION NOT NULL,
		net_pnl DOUBLE PRECISION NOT NULL,
		balance_after DOUBLE PRECISION NOT NULL,
		forced BOOLEAN NOT NULL DEFAULT FALSE,
		trade_id TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS strategy_signals (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		action TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		reason TEXT NOT NULL,
		executed BOOLEAN NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades (timestamp)`,
}

// createTables creates the necessary tables if they don't exist
func (db *DB) createTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Name identifies the store in recorder logs.
func (db *DB) Name() string { return "postgres" }

// StoreCandle inserts a closed candle. Duplicates are ignored.
func (db *DB) StoreCandle(ctx context.Context, c models.Candle) error {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	_, err := db.ExecContext(ctx, `
		INSERT INTO market_data (symbol, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, timestamp) DO NOTHING
	`, c.Symbol, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("storing candle %s %s: %w", c.Symbol, c.Timestamp.Format(time.RFC3339), err)
	}
	return nil
}

// RecentCandles returns up to limit latest candles for symbol in ascending time order.
func (db *DB) RecentCandles(ctx context.Context, symbol string, limit int) ([]models.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	var candles []models.Candle
	err := db.SelectContext(ctx, &candles, `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM market_data
		WHERE symbol = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("loading recent candles for %s: %w", symbol, err)
	}

	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// Candles returns candles for symbol with from <= timestamp < to in ascending order.
func (db *DB) Candles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	var candles []models.Candle
	err := db.SelectContext(ctx, &candles, `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM market_data
		WHERE symbol = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC
	`, symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("loading candles for %s: %w", symbol, err)
	}
	return candles, nil
}

// PersistTrade writes a closed trade. Re-sending the same trade is a no-op.
func (db *DB) PersistTrade(ctx context.Context, t models.TradeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	_, err := db.ExecContext(ctx, `
		INSERT INTO trades (
			timestamp, symbol, action, price, strategy, reason, entry_time, entry_price, exit_price,
			position_size, gross_pnl, fees, net_pnl, balance_after, forced, trade_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (trade_id) DO NOTHING
	`,
		t.ExitTime.UTC(), t.Symbol, string(models.ActionSell), t.ExitPrice, t.Strategy, t.Reason,
		t.EntryTime.UTC(), t.EntryPrice, t.ExitPrice, t.PositionSize, t.GrossPnL, t.Fees, t.NetPnL,
		t.BalanceAfter, t.Forced, t.ID)
	if err != nil {
		return fmt.Errorf("inserting trade %s: %w", t.ID, err)
	}
	return nil
}

// PersistSignal writes an executed decision.
func (db *DB) PersistSignal(ctx context.Context, s models.SignalRecord) error {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	_, err := db.ExecContext(ctx, `
		INSERT INTO strategy_signals (timestamp, symbol, strategy, action, price, reason, executed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.Timestamp.UTC(), s.Symbol, s.Strategy, string(s.Action), s.Price, s.Reason, s.Executed)
	if err != nil {
		return fmt.Errorf("inserting signal for %s: %w", s.Symbol, err)
	}
	return nil
}

type tradeRow struct {
	TradeID      string    `db:"trade_id"`
	Symbol       string    `db:"symbol"`
	Strategy     string    `db:"strategy"`
	Reason       string    `db:"reason"`
	EntryTime    time.Time `db:"entry_time"`
	ExitTime     time.Time `db:"timestamp"`
	EntryPrice   float64   `db:"entry_price"`
	ExitPrice    float64   `db:"exit_price"`
	PositionSize float64   `db:"position_size"`
	GrossPnL     float64   `db:"gross_pnl"`
	Fees         float64   `db:"fees"`
	NetPnL       float64   `db:"net_pnl"`
	BalanceAfter float64   `db:"balance_after"`
	Forced       bool      `db:"forced"`
}

func (r tradeRow) record() models.TradeRecord {
	return models.TradeRecord{
		ID:           r.TradeID,
		Symbol:       r.Symbol,
		Strategy:     r.Strategy,
		Reason:       r.Reason,
		EntryTime:    r.EntryTime,
		ExitTime:     r.ExitTime,
		EntryPrice:   r.EntryPrice,
		ExitPrice:    r.ExitPrice,
		PositionSize: r.PositionSize,
		GrossPnL:     r.GrossPnL,
		Fees:         r.Fees,
		NetPnL:       r.NetPnL,
		BalanceAfter: r.BalanceAfter,
		Forced:       r.Forced,
	}
}

// TradesSince returns trades closed at or after since, oldest first.
func (db *DB) TradesSince(ctx context.Context, since time.Time) ([]models.TradeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	var rows []tradeRow
	err := db.SelectContext(ctx, &rows, `
		SELECT trade_id, symbol, strategy, reason, entry_time, timestamp, entry_price, exit_price,
			position_size, gross_pnl, fees, net_pnl, balance_after, forced
		FROM trades
		WHERE timestamp >= $1
		ORDER BY timestamp ASC, id ASC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("loading trades since %s: %w", since.Format(time.RFC3339), err)
	}

	trades := make([]models.TradeRecord, 0, len(rows))
	for _, r := range rows {
		trades = append(trades, r.record())
	}
	return trades, nil
}

// LatestBalance returns the balance after the most recent trade, and false if none was recorded.
func (db *DB) LatestBalance(ctx context.Context) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	var balances []float64
	err := db.SelectContext(ctx, &balances, `SELECT balance_after FROM trades ORDER BY id DESC LIMIT 1`)
	if err != nil {
		return 0, false, fmt.Errorf("loading latest balance: %w", err)
	}
	if len(balances) == 0 {
		return 0, false, nil
	}
	return balances[0], true, nil
}

type positionRow struct {
	Symbol     string    `db:"symbol"`
	EntryPrice float64   `db:"entry_price"`
	EntryTime  time.Time `db:"entry_time"`
}

// OpenPositions rebuilds positions left open by an earlier run: per symbol, an executed BUY newer
// than the entry of the last closed trade.
func (db *DB) OpenPositions(ctx context.Context) ([]models.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	var rows []positionRow
	err := db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (s.symbol) s.symbol, s.price AS entry_price, s.timestamp AS entry_time
		FROM strategy_signals s
		WHERE s.action = 'BUY' AND s.executed
			AND s.timestamp > COALESCE(
				(SELECT MAX(t.entry_time) FROM trades t WHERE t.symbol = s.symbol),
				'-infinity'::timestamptz)
		ORDER BY s.symbol, s.timestamp DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("loading open positions: %w", err)
	}

	positions := make([]models.Position, 0, len(rows))
	for _, r := range rows {
		positions = append(positions, models.Position{Symbol: r.Symbol, EntryPrice: r.EntryPrice, EntryTime: r.EntryTime.UTC()})
	}
	return positions, nil
}
