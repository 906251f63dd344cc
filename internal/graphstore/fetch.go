package graphstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-getter"

	"terrainstream/internal/graph"
)

// Fetch downloads a directory of graph documents from src into dir and
// returns every document found there. src accepts any go-getter address,
// for example "git::https://example.com/graphs.git//terrain" or a local path.
// A document that does not compile fails the whole fetch.
func Fetch(ctx context.Context, src, dir string) ([]graph.Document, error) {
	pwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("fetch graphs: %w", err)
	}
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dir,
		Pwd:  pwd,
		Mode: getter.ClientModeDir,
	}
	if err := client.Get(); err != nil {
		return nil, fmt.Errorf("fetch graphs from %s: %w", src, err)
	}
	return ScanDir(dir)
}

// ScanDir parses and compiles every .yaml, .yml and .json document directly
// inside dir, ordered by file name.
func ScanDir(dir string) ([]graph.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan graphs: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([]graph.Document, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		doc, err := graph.ParseDocument(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if _, err := compile(doc); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
