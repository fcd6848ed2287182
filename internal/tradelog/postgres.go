package tradelog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paper-trading-bot/internal/broker"
	"paper-trading-bot/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS paper_trades (
	id          BIGSERIAL PRIMARY KEY,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	quantity    DOUBLE PRECISION NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	entry_time  TIMESTAMPTZ NOT NULL,
	stop_loss   DOUBLE PRECISION NOT NULL,
	take_profit DOUBLE PRECISION NOT NULL,
	exit_price  DOUBLE PRECISION,
	exit_time   TIMESTAMPTZ,
	exit_reason TEXT,
	fees        DOUBLE PRECISION NOT NULL DEFAULT 0,
	pnl         DOUBLE PRECISION NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	indicators  JSONB,
	context     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_paper_trades_entry_time ON paper_trades (entry_time DESC);
`

// PostgresRecorder persists trade entries in Postgres via a pgx pool.
type PostgresRecorder struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// NewPostgresRecorder connects, verifies the connection and ensures
// the schema exists.
func NewPostgresRecorder(ctx context.Context, databaseURL string, log *logging.Logger) (*PostgresRecorder, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(connectCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	r := &PostgresRecorder{pool: pool, log: log.WithComponent("tradelog")}
	r.log.Info("trade log connected to postgres")
	return r, nil
}

// Shutdown releases the connection pool.
func (r *PostgresRecorder) Shutdown() {
	r.pool.Close()
}

// Open inserts a new open trade and fills in its ID.
func (r *PostgresRecorder) Open(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cannot record nil entry")
	}
	entry.Status = StatusOpen
	if entry.EntryTime.IsZero() {
		entry.EntryTime = time.Now().UTC()
	}
	indicators, err := json.Marshal(entry.Indicators)
	if err != nil {
		return fmt.Errorf("marshal indicators: %w", err)
	}
	marketContext, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	query := `
		INSERT INTO paper_trades (symbol, side, quantity, entry_price, entry_time,
			stop_loss, take_profit, fees, status, indicators, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	return r.pool.QueryRow(
		ctx, query,
		entry.Symbol, string(entry.Side), entry.Quantity, entry.EntryPrice, entry.EntryTime,
		entry.StopLoss, entry.TakeProfit, entry.Fees, entry.Status, indicators, marketContext,
	).Scan(&entry.ID)
}

// Close finalizes a trade with its exit details.
func (r *PostgresRecorder) Close(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cannot record nil entry")
	}
	entry.Status = StatusClosed
	if entry.ExitTime.IsZero() {
		entry.ExitTime = time.Now().UTC()
	}

	query := `
		UPDATE paper_trades
		SET exit_price = $2, exit_time = $3, exit_reason = $4, fees = $5, pnl = $6, status = $7
		WHERE id = $1
	`
	tag, err := r.pool.Exec(
		ctx, query,
		entry.ID, entry.ExitPrice, entry.ExitTime, entry.ExitReason,
		entry.Fees, entry.PnL, entry.Status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %d not found", entry.ID)
	}
	return nil
}

// Recent returns the newest trades, newest first.
func (r *PostgresRecorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, symbol, side, quantity, entry_price, entry_time,
		       stop_loss, take_profit,
		       COALESCE(exit_price, 0), COALESCE(exit_time, 'epoch'::timestamptz),
		       COALESCE(exit_reason, ''), fees, pnl, status
		FROM paper_trades
		ORDER BY entry_time DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var side string
		if err := rows.Scan(
			&e.ID, &e.Symbol, &side, &e.Quantity, &e.EntryPrice, &e.EntryTime,
			&e.StopLoss, &e.TakeProfit, &e.ExitPrice, &e.ExitTime,
			&e.ExitReason, &e.Fees, &e.PnL, &e.Status,
		); err != nil {
			return nil, err
		}
		e.Side = broker.Side(side)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil && err != pgx.ErrNoRows {
		return nil, err
	}
	return entries, nil
}
