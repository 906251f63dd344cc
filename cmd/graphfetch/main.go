package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"terrainstream/internal/config"
	"terrainstream/internal/graphstore"
)

func main() {
	var (
		src     = flag.String("src", "", "go-getter source of a directory of graph documents, e.g. git::https://host/repo.git//graphs")
		cfgPath = flag.String("config", "terrain.yaml", "settings document selecting the graph store")
		keep    = flag.String("keep", "", "directory to keep the downloaded files in; a temporary directory is used when empty")
	)
	flag.Parse()

	if *src == "" {
		fmt.Fprintln(os.Stderr, "src is required")
		os.Exit(1)
	}

	logger := log.New(log.Writer(), "graphfetch ", log.LstdFlags|log.Lmicroseconds)
	settings := config.LoadOrDefault(*cfgPath, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := *keep
	if dir == "" {
		tmp, err := os.MkdirTemp("", "graphfetch-")
		if err != nil {
			log.Fatalf("create download directory: %v", err)
		}
		defer os.RemoveAll(tmp)
		dir = filepath.Join(tmp, "graphs")
	}

	docs, err := graphstore.Fetch(ctx, *src, dir)
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}

	store, err := graphstore.Open(ctx, settings)
	if err != nil {
		log.Fatalf("open graph store: %v", err)
	}
	defer store.Close()

	for _, doc := range docs {
		id, err := store.Put(ctx, doc)
		if err != nil {
			log.Fatalf("store graph %q: %v", doc.Name, err)
		}
		logger.Printf("stored graph %s %q", id, doc.Name)
	}
	logger.Printf("done: %d graphs from %s", len(docs), *src)
}
