package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lastwayz/ticketd/internal/domain"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS ticket_records (
    partition TEXT NOT NULL,
    id        TEXT NOT NULL,
    record    JSONB NOT NULL,
    PRIMARY KEY (partition, id)
)`

// PostgresBackend persists partitions in a ticket_records table, one JSONB row
// per record. Saves keep the whole-partition rewrite semantics of the file
// backend: delete the partition, reinsert everything, in one transaction.
type PostgresBackend struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresBackend connects a pool from the DSN and ensures the schema.
func NewPostgresBackend(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresBackend, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConnIdleTime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createRecordsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure ticket_records table: %w", err)
	}
	logger.Info("connected to postgres record store")
	return &PostgresBackend{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (b *PostgresBackend) Close() {
	if b != nil && b.pool != nil {
		b.pool.Close()
	}
}

// Ping verifies connectivity, used by the readiness probe.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// Load reads every record of a partition.
func (b *PostgresBackend) Load(ctx context.Context, partition string) (map[string]*domain.TicketRecord, error) {
	rows, err := b.pool.Query(ctx, `SELECT record FROM ticket_records WHERE partition=$1`, partition)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]*domain.TicketRecord)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var record domain.TicketRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("decode record in partition %s: %w", partition, err)
		}
		records[record.ID] = &record
	}
	return records, rows.Err()
}

// Save rewrites a partition transactionally.
func (b *PostgresBackend) Save(ctx context.Context, partition string, records map[string]*domain.TicketRecord) error {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM ticket_records WHERE partition=$1`, partition); err != nil {
		return err
	}
	for id, record := range records {
		raw, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO ticket_records (partition, id, record) VALUES ($1,$2,$3)`,
			partition, id, raw,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
