package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/models"
)

var ErrPersonNotFound = errors.New("person not found")

// PostgresStore keeps face samples in a pgvector table scoped by collection.
type PostgresStore struct {
	pool       *pgxpool.Pool
	collection string
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, collection string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewPostgresStoreFromPool(pool, collection), nil
}

func NewPostgresStoreFromPool(pool *pgxpool.Pool, collection string) *PostgresStore {
	return &PostgresStore{pool: pool, collection: collection}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Add inserts all samples in a single transaction.
func (s *PostgresStore) Add(ctx context.Context, ids []string, vectors []models.Signature, metas []models.SampleMetadata) error {
	if len(ids) != len(vectors) || len(ids) != len(metas) {
		return fmt.Errorf("add samples: %d ids, %d vectors, %d metadata entries", len(ids), len(vectors), len(metas))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i, id := range ids {
		m := metas[i]
		batch.Queue(
			`INSERT INTO face_samples (collection, id, person_id, display_name, profile_image_ref, enrolled_at, sample_index, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.collection, id, m.PersonID, m.DisplayName, m.ProfileImageRef, m.EnrolledAt, m.SampleIndex,
			pgvector.NewVector(vectors[i]),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert samples: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit samples: %w", err)
	}
	return nil
}

// Query returns the k nearest samples by cosine distance. The HNSW index
// spans every collection, so the scan is iterative: it keeps walking the
// graph until k rows of this collection pass the filter.
func (s *PostgresStore) Query(ctx context.Context, vector models.Signature, k int) ([]models.Neighbor, error) {
	if k <= 0 {
		k = 1
	}
	vec := pgvector.NewVector(vector)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin query: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`SET LOCAL hnsw.iterative_scan = relaxed_order`,
		fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d`, max(hnswEfSearch, k)),
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("configure query: %w", err)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT id, embedding <=> $1 AS distance, person_id, display_name, profile_image_ref, enrolled_at, sample_index
		FROM face_samples
		WHERE collection = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vec, s.collection, k)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []models.Neighbor
	for rows.Next() {
		var n models.Neighbor
		if err := rows.Scan(&n.ID, &n.Distance, &n.Metadata.PersonID, &n.Metadata.DisplayName,
			&n.Metadata.ProfileImageRef, &n.Metadata.EnrolledAt, &n.Metadata.SampleIndex); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit query: %w", err)
	}
	// relaxed_order may return rows slightly out of order
	return nearest(out, k), nil
}

// ListPersons aggregates samples by person, newest enrollment first.
func (s *PostgresStore) ListPersons(ctx context.Context, limit, offset int) ([]models.Person, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := s.pool.Query(ctx, `
		SELECT person_id, MIN(display_name), MIN(profile_image_ref), MIN(enrolled_at), COUNT(*)
		FROM face_samples
		WHERE collection = $1
		GROUP BY person_id
		ORDER BY MIN(enrolled_at) DESC
		LIMIT $2 OFFSET $3`,
		s.collection, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.ProfileImageRef, &p.EnrolledAt, &p.SampleCount); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p := &models.Person{}
	err := s.pool.QueryRow(ctx, `
		SELECT person_id, MIN(display_name), MIN(profile_image_ref), MIN(enrolled_at), COUNT(*)
		FROM face_samples
		WHERE collection = $1 AND person_id = $2
		GROUP BY person_id`,
		s.collection, id,
	).Scan(&p.ID, &p.DisplayName, &p.ProfileImageRef, &p.EnrolledAt, &p.SampleCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPersonNotFound
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

// CreateIdentityEvent writes one audit row. Duplicate event ids are ignored
// so redelivered messages are harmless.
func (s *PostgresStore) CreateIdentityEvent(ctx context.Context, ev *models.IdentityEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO identity_events (id, type, person_id, display_name, confidence, reason, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Type, ev.PersonID, ev.DisplayName, ev.Confidence, ev.Reason, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("create identity event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListIdentityEvents(ctx context.Context, personID *uuid.UUID, limit int) ([]models.IdentityEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, type, person_id, display_name, confidence, reason, timestamp FROM identity_events`
	args := []any{}
	if personID != nil {
		query += ` WHERE person_id = $1`
		args = append(args, *personID)
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list identity events: %w", err)
	}
	defer rows.Close()

	var events []models.IdentityEvent
	for rows.Next() {
		var ev models.IdentityEvent
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.PersonID, &ev.DisplayName, &ev.Confidence, &ev.Reason, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan identity event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
