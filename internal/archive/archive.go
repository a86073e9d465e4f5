// Package archive persists closed tickets to Postgres before they are
// evicted from the live registry. Archival is post-mortem only: the registry
// stays the sole authority for open tickets and nothing is loaded back at
// startup.
package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
)

// Store receives tickets whose backing channel has been deleted.
type Store interface {
	ArchiveTicket(ctx context.Context, ticket *domain.Ticket) error
}

// PostgresStore implements Store over a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to Postgres and optionally runs the archive
// migration. Returns nil without error when no DSN is configured; callers
// treat a nil store as archival disabled.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to postgres")

	store := &PostgresStore{pool: pool, logger: logger}
	if cfg.RunMigrations {
		if err := store.migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return store, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies Postgres connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
        CREATE TABLE IF NOT EXISTS archived_tickets (
            channel_id  TEXT PRIMARY KEY,
            guild_id    TEXT NOT NULL,
            creator_id  TEXT NOT NULL,
            status      TEXT NOT NULL,
            published   BOOLEAN NOT NULL,
            created_at  TIMESTAMPTZ NOT NULL,
            closed_at   TIMESTAMPTZ,
            transcript  JSONB NOT NULL DEFAULT '[]'::jsonb,
            archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_archived_tickets_guild ON archived_tickets (guild_id, creator_id);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("run archive migration: %w", err)
	}
	s.logger.Info("archive migration applied")
	return nil
}

// ArchiveTicket inserts the ticket and its transcript. Re-archiving the same
// channel updates the row, so duplicate closing procedures converge.
func (s *PostgresStore) ArchiveTicket(ctx context.Context, ticket *domain.Ticket) error {
	transcript, err := json.Marshal(ticket.Transcript())
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	const query = `
        INSERT INTO archived_tickets (channel_id, guild_id, creator_id, status, published, created_at, closed_at, transcript)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (channel_id) DO UPDATE SET
            status = EXCLUDED.status,
            published = EXCLUDED.published,
            closed_at = EXCLUDED.closed_at,
            transcript = EXCLUDED.transcript,
            archived_at = NOW()`
	_, err = s.pool.Exec(ctx, query,
		ticket.ChannelID,
		ticket.GuildID,
		ticket.CreatorID,
		string(ticket.Status()),
		ticket.WasPublished(),
		ticket.CreatedAt,
		ticket.ClosedAt(),
		transcript,
	)
	if err != nil {
		return fmt.Errorf("archive ticket: %w", err)
	}
	return nil
}
