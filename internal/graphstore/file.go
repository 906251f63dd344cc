package graphstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"terrainstream/internal/graph"
)

// FileStore keeps one <id>.yaml document per graph in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("graph directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create graph directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("graph id %q: %w", id, err)
	}
	return filepath.Join(s.dir, parsed.String()+".yaml"), nil
}

func (s *FileStore) Get(ctx context.Context, id string) (graph.Document, error) {
	if err := ctx.Err(); err != nil {
		return graph.Document{}, err
	}
	path, err := s.path(id)
	if err != nil {
		return graph.Document{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return graph.Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return graph.Document{}, fmt.Errorf("read graph %s: %w", id, err)
	}
	doc, err := graph.ParseDocument(data)
	if err != nil {
		return graph.Document{}, fmt.Errorf("graph %s: %w", id, err)
	}
	return doc, nil
}

// Put writes the document to a temporary file and renames it into place so
// readers never observe a partial document.
func (s *FileStore) Put(ctx context.Context, doc graph.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, err := prepare(doc)
	if err != nil {
		return "", err
	}
	path, err := s.path(doc.ID)
	if err != nil {
		return "", err
	}
	data, err := graph.EncodeYAML(doc)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".graph-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temporary graph file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write graph %s: %w", doc.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write graph %s: %w", doc.ID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store graph %s: %w", doc.ID, err)
	}
	return doc.ID, nil
}

// List returns every readable document ordered by name. Files that fail to
// parse are reported as an error.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	var out []Summary
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		doc, err := graph.ParseDocument(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		out = append(out, Summary{ID: doc.ID, Name: doc.Name, UpdatedAt: info.ModTime()})
	}
	sortSummaries(out)
	return out, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("delete graph %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func sortSummaries(out []Summary) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
}
