// Package db persists the append-only trade log to Postgres.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"futures-trader/internal/execution"
	"futures-trader/internal/market"
)

// TradeLog wraps a pgx pool and writes one immutable row per completed
// trade. Writes are fire-and-forget so the execution path never blocks on
// the database; a failed insert is logged and the trade stays available in
// the in-memory log.
type TradeLog struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewTradeLog creates a connection pool and ensures the schema exists.
func NewTradeLog(dsn string, log *logrus.Logger) (*TradeLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	t := &TradeLog{pool: pool, log: log}
	if err := t.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return t, nil
}

// Close releases the pool.
func (t *TradeLog) Close() {
	if t.pool != nil {
		t.pool.Close()
	}
}

func (t *TradeLog) ensureSchema(ctx context.Context) error {
	stmt := `create table if not exists trade_records (
		id text primary key,
		strategy text not null,
		contract_id text not null,
		direction text not null,
		size int not null,
		entry_price numeric not null,
		exit_price numeric not null,
		stop_price numeric,
		target_price numeric,
		pnl numeric not null,
		exit_reason text,
		live boolean not null,
		opened_at timestamptz not null,
		closed_at timestamptz not null
	)`
	if _, err := t.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure trade_records schema: %w", err)
	}
	return nil
}

// Record inserts a completed trade asynchronously. Implements
// execution.Recorder.
func (t *TradeLog) Record(rec execution.TradeRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := t.pool.Exec(ctx, `insert into trade_records(
			id, strategy, contract_id, direction, size,
			entry_price, exit_price, stop_price, target_price,
			pnl, exit_reason, live, opened_at, closed_at
		) values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		on conflict (id) do nothing`,
			rec.ID, rec.Strategy, rec.ContractID, string(rec.Direction), rec.Size,
			rec.EntryPrice, rec.ExitPrice, rec.StopPrice, rec.TargetPrice,
			rec.Pnl, rec.ExitReason, rec.Live, rec.OpenedAt, rec.ClosedAt)
		if err != nil {
			t.log.WithFields(logrus.Fields{
				"trade": rec.ID,
				"error": err,
			}).Error("Failed to persist trade record")
		}
	}()
}

// RecentTrades returns the most recent completed trades for a mode, newest
// first.
func (t *TradeLog) RecentTrades(ctx context.Context, live bool, limit int) ([]execution.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.pool.Query(ctx, `select
		id, strategy, contract_id, direction, size,
		entry_price, exit_price, stop_price, target_price,
		pnl, exit_reason, live, opened_at, closed_at
	from trade_records where live=$1 order by closed_at desc limit $2`, live, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade_records: %w", err)
	}
	defer rows.Close()

	var out []execution.TradeRecord
	for rows.Next() {
		var rec execution.TradeRecord
		var dir string
		if err := rows.Scan(&rec.ID, &rec.Strategy, &rec.ContractID, &dir, &rec.Size,
			&rec.EntryPrice, &rec.ExitPrice, &rec.StopPrice, &rec.TargetPrice,
			&rec.Pnl, &rec.ExitReason, &rec.Live, &rec.OpenedAt, &rec.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan trade_records: %w", err)
		}
		rec.Direction = market.Direction(dir)
		out = append(out, rec)
	}
	return out, rows.Err()
}
