package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SignatureDim is the ArcFace embedding length.
const SignatureDim = 512

// Migrate creates the pgvector extension and the tables used by the service.
// It is safe to run on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS face_samples (
			collection         TEXT NOT NULL,
			id                 TEXT NOT NULL,
			person_id          UUID NOT NULL,
			display_name       TEXT NOT NULL,
			profile_image_ref  TEXT NOT NULL,
			enrolled_at        TIMESTAMPTZ NOT NULL,
			sample_index       INTEGER NOT NULL,
			embedding          vector(%d) NOT NULL,
			PRIMARY KEY (collection, id)
		)`, SignatureDim),
		`CREATE INDEX IF NOT EXISTS face_samples_person_idx ON face_samples (collection, person_id)`,
		`CREATE INDEX IF NOT EXISTS face_samples_embedding_idx ON face_samples USING hnsw (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS identity_events (
			id            UUID PRIMARY KEY,
			type          TEXT NOT NULL,
			person_id     UUID,
			display_name  TEXT NOT NULL DEFAULT '',
			confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
			reason        TEXT NOT NULL DEFAULT '',
			timestamp     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS identity_events_person_idx ON identity_events (person_id, timestamp DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Pool exposes the underlying pool for migrations.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }
