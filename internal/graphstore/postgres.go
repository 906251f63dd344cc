package graphstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"terrainstream/internal/graph"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS terrain_graphs (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    document   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_terrain_graphs_name ON terrain_graphs(name);
`

// PGStore keeps graph documents in PostgreSQL as JSONB.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore wraps an existing pool. The caller keeps ownership of the pool
// unless Close is called.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// Connect opens a pool for dsn and creates the schema.
func Connect(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("graph store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("graph store: ping: %w", err)
	}
	s := NewPGStore(pool)
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// CreateSchema creates the terrain_graphs table if it does not exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("graph store: create schema: %w", err)
	}
	return nil
}

// DropSchema drops the terrain_graphs table.
func (s *PGStore) DropSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS terrain_graphs`); err != nil {
		return fmt.Errorf("graph store: drop schema: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (graph.Document, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT document FROM terrain_graphs WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return graph.Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return graph.Document{}, fmt.Errorf("graph store: get %s: %w", id, err)
	}
	doc, err := graph.ParseDocument(data)
	if err != nil {
		return graph.Document{}, fmt.Errorf("graph %s: %w", id, err)
	}
	return doc, nil
}

// Put inserts the document or replaces the stored one with the same id.
func (s *PGStore) Put(ctx context.Context, doc graph.Document) (string, error) {
	doc, err := prepare(doc)
	if err != nil {
		return "", err
	}
	data, err := graph.EncodeJSON(doc)
	if err != nil {
		return "", err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO terrain_graphs (id, name, document, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, document = EXCLUDED.document, updated_at = NOW()`,
		doc.ID, doc.Name, data,
	)
	if err != nil {
		return "", fmt.Errorf("graph store: put %s: %w", doc.ID, err)
	}
	return doc.ID, nil
}

func (s *PGStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, updated_at FROM terrain_graphs ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("graph store: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("graph store: scan: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graph store: list rows: %w", err)
	}
	return out, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM terrain_graphs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("graph store: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close releases the pool.
func (s *PGStore) Close() error {
	s.db.Close()
	return nil
}
