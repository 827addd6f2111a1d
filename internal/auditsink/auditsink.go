// Package auditsink implements a write-only, best-effort mirror of admitted
// TradeBlocks into PostgreSQL. Never read back into the live chain; the
// in-memory chain store remains the sole source of truth.
package auditsink

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"zonechain-engine/internal/logging"
	"zonechain-engine/internal/market"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS trade_blocks (
	symbol        TEXT NOT NULL,
	index         BIGINT NOT NULL,
	timestamp     TIMESTAMPTZ NOT NULL,
	trade         JSONB NOT NULL,
	previous_hash TEXT NOT NULL,
	hash          TEXT NOT NULL,
	PRIMARY KEY (symbol, index)
)`

// Sink mirrors admitted blocks to Postgres. A nil pool makes Mirror a no-op,
// so callers can construct a Sink unconditionally and let configuration
// decide whether it does anything.
type Sink struct {
	pool *pgxpool.Pool
}

// New connects to Postgres at dsn and ensures the mirror table exists. When
// enabled is false, it returns a Sink whose Mirror calls are no-ops without
// attempting any connection.
func New(ctx context.Context, enabled bool, dsn string) (*Sink, error) {
	if !enabled {
		return &Sink{}, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}
	return &Sink{pool: pool}, nil
}

// Mirror inserts block for symbol, fire-and-forget: spawned in its own
// goroutine by the caller (matching the decision mapper's dispatch
// discipline), logging failures without ever surfacing them. The mirror is
// never on the admission critical path.
func (s *Sink) Mirror(ctx context.Context, symbol string, block market.TradeBlock) {
	if s.pool == nil {
		return
	}

	log := logging.DatabaseContext("insert", "trade_blocks")

	tradeJSON, err := json.Marshal(block.Trade)
	if err != nil {
		log.WithError(err).Warn("audit mirror: failed to marshal trade")
		return
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO trade_blocks (symbol, index, timestamp, trade, previous_hash, hash)
		 VALUES ($1, $2, to_timestamp($3), $4, $5, $6)
		 ON CONFLICT (symbol, index) DO NOTHING`,
		symbol, block.Index, block.Timestamp, tradeJSON, block.PreviousHash, block.Hash,
	)
	if err != nil {
		log.WithError(err).Warn("audit mirror insert failed")
	}
}

// Close releases the underlying connection pool, if any.
func (s *Sink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
