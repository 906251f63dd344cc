package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"terrainstream/internal/config"
	"terrainstream/internal/graph"
	"terrainstream/internal/graphstore"
)

func main() {
	var (
		graphFile  = flag.String("graph", "", "graph document to preview (YAML or JSON); empty uses the store or the built-in graph")
		cfgPath    = flag.String("config", "", "settings document selecting the graph store")
		graphID    = flag.String("id", "", "id of a stored graph")
		outDir     = flag.String("out", "previews", "directory for the PNG previews")
		name       = flag.String("name", "tile", "preview file name prefix")
		resolution = flag.Int("resolution", 129, "heightmap samples per tile edge")
		seed       = flag.Int64("seed", 1337, "world seed")
		tileX      = flag.Int("x", 0, "tile grid x")
		tileZ      = flag.Int("z", 0, "tile grid z")
		export     = flag.String("export", "", "also write the graph document as YAML to this path")
		verbose    = flag.Bool("verbose", false, "log evaluation progress")
	)
	flag.Parse()

	if *resolution < 2 {
		fmt.Fprintln(os.Stderr, "resolution must be at least 2")
		os.Exit(1)
	}

	ctx := context.Background()
	proto, err := loadPrototype(ctx, *graphFile, *cfgPath, *graphID)
	if err != nil {
		log.Fatalf("load graph: %v", err)
	}
	program, err := proto.Compile()
	if err != nil {
		log.Fatalf("compile graph: %v", err)
	}

	if *export != "" {
		data, err := graph.EncodeYAML(proto.Document())
		if err != nil {
			log.Fatalf("encode graph: %v", err)
		}
		if err := os.WriteFile(*export, data, 0o644); err != nil {
			log.Fatalf("write %s: %v", *export, err)
		}
	}

	span := *resolution - 1
	params := graph.TileParams{
		Seed:       *seed,
		Resolution: *resolution,
		Origin:     [2]int{*tileX * span, *tileZ * span},
		Scale:      1 / float64(span),
	}
	if *verbose {
		params.Logger = log.New(log.Writer(), "graphpreview ", log.LstdFlags|log.Lmicroseconds)
	}
	user, err := graph.NewUser(program, params)
	if err != nil {
		log.Fatalf("prepare tile: %v", err)
	}

	start := time.Now()
	result, err := user.Evaluate(ctx)
	if err != nil {
		log.Fatalf("evaluate graph: %v", err)
	}
	elapsed := time.Since(start)

	if err := result.SavePreview(*outDir, *name); err != nil {
		log.Fatalf("save preview: %v", err)
	}

	lo, hi := heightRange(result)
	fmt.Println("== Terrain Graph Preview ==")
	fmt.Printf("Graph: %s (%d nodes evaluated)\n", program.Name(), program.Len())
	fmt.Printf("Tile: %d,%d at %dx%d samples\n", *tileX, *tileZ, *resolution, *resolution)
	fmt.Printf("Height range: %.3f .. %.3f\n", lo, hi)
	fmt.Printf("Evaluation time: %s\n", elapsed)
	fmt.Printf("Previews: %s/%s_height.png, %s/%s_splat.png\n", *outDir, *name, *outDir, *name)
}

func loadPrototype(ctx context.Context, file, cfgPath, id string) (*graph.Prototype, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		doc, err := graph.ParseDocument(data)
		if err != nil {
			return nil, err
		}
		return graph.FromDocument(doc)
	}
	if id == "" {
		return graph.DefaultPrototype(), nil
	}

	settings, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	store, err := graphstore.Open(ctx, settings)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	doc, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return graph.FromDocument(doc)
}

func heightRange(r *graph.Result) (float32, float32) {
	lo, hi := r.Height[0], r.Height[0]
	for _, h := range r.Height[1:] {
		lo = min(lo, h)
		hi = max(hi, h)
	}
	return lo, hi
}
