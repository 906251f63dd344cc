// Package graphstore persists terrain graph documents.
package graphstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"terrainstream/internal/config"
	"terrainstream/internal/graph"
)

// ErrNotFound is returned when no document has the requested id.
var ErrNotFound = errors.New("graph document not found")

// Summary lists a stored document without its nodes.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store holds graph documents keyed by prototype id. Put rejects documents
// that do not compile, assigns a new id to documents without one and returns
// the id the document was stored under.
type Store interface {
	Get(ctx context.Context, id string) (graph.Document, error)
	Put(ctx context.Context, doc graph.Document) (string, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open returns the store selected by the settings.
func Open(ctx context.Context, s config.Settings) (Store, error) {
	switch s.GraphStore {
	case config.StoreFile:
		return NewFileStore(s.GraphDir)
	case config.StorePostgres:
		return Connect(ctx, s.GraphDSN)
	default:
		return nil, fmt.Errorf("unknown graph store %q", s.GraphStore)
	}
}

// LoadProgram compiles the stored graph with the given id. An empty id
// selects the built-in default terrain graph.
func LoadProgram(ctx context.Context, store Store, id string) (*graph.Program, error) {
	if id == "" {
		return graph.DefaultProgram(), nil
	}
	doc, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prog, err := compile(doc)
	if err != nil {
		return nil, fmt.Errorf("graph %s: %w", id, err)
	}
	return prog, nil
}

func compile(doc graph.Document) (*graph.Program, error) {
	p, err := graph.FromDocument(doc)
	if err != nil {
		return nil, err
	}
	return p.Compile()
}

// prepare gives an id-less document a fresh id, canonicalises the id and
// checks that the document compiles.
func prepare(doc graph.Document) (graph.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return graph.Document{}, fmt.Errorf("%w: graph id %q: %v", graph.ErrMisconfigured, doc.ID, err)
	}
	doc.ID = id.String()
	if _, err := compile(doc); err != nil {
		return graph.Document{}, fmt.Errorf("graph %s: %w", doc.ID, err)
	}
	return doc, nil
}
