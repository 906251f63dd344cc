package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"terrainstream/internal/chunkbuffer"
	"terrainstream/internal/config"
	"terrainstream/internal/graphstore"
	"terrainstream/internal/statusapi"
	"terrainstream/internal/streaming"
)

func main() {
	var (
		cfgPath string
		frames  int
		listen  string
		verbose bool
	)
	flag.StringVar(&cfgPath, "config", "terrain.yaml", "path to the settings document")
	flag.IntVar(&frames, "frames", 0, "number of frames to run, 0 runs until interrupted")
	flag.StringVar(&listen, "listen", "", "status api address, overrides statusListen")
	flag.BoolVar(&verbose, "verbose", false, "log per-tile evaluation progress")
	flag.Parse()

	logger := log.New(log.Writer(), "terrainstream ", log.LstdFlags|log.Lmicroseconds)

	wrote, err := config.FromEnvironment(cfgPath)
	if err != nil {
		log.Fatalf("settings from environment: %v", err)
	}
	if wrote {
		logger.Printf("settings written from environment to %s", cfgPath)
	}
	settings := config.LoadOrDefault(cfgPath, logger)
	if listen != "" {
		settings.StatusListen = listen
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := graphstore.Open(ctx, settings)
	if err != nil {
		log.Fatalf("open graph store: %v", err)
	}
	defer store.Close()

	program, err := graphstore.LoadProgram(ctx, store, settings.GraphID)
	if err != nil {
		log.Fatalf("load terrain graph: %v", err)
	}

	buffer, err := chunkbuffer.New(chunkbuffer.NewMemoryDevice(), streaming.LayoutFor(settings))
	if err != nil {
		log.Fatalf("create chunk buffer: %v", err)
	}
	manager, err := streaming.NewManager(settings, program, buffer, streaming.WithVerbose(verbose))
	if err != nil {
		log.Fatalf("create terrain manager: %v", err)
	}
	defer manager.Close()

	if settings.StatusListen != "" {
		srv := statusapi.New(manager, statusapi.WithStore(store))
		go func() {
			if err := srv.Run(ctx, settings.StatusListen); err != nil {
				logger.Printf("status api stopped: %v", err)
			}
		}()
	}

	logger.Printf("streaming graph %q: %d tiles around the camera, %d slots, %d workers",
		program.Name(), settings.WindowTiles(), settings.MaxChunks, settings.WorkerThreads)

	if err := run(ctx, manager, settings, frames, logger); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("terrain streaming stopped: %v", err)
	}
	logger.Printf("final stats: %+v", manager.Stats())
}

func run(ctx context.Context, manager *streaming.Manager, settings config.Settings, frames int, logger *log.Logger) error {
	interval := settings.FrameInterval.Duration()
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	camera := newFlythrough(settings.CameraSpeed, settings.TileWidth)
	var renderer frameRenderer
	start := time.Now()

	for frame := 1; frames == 0 || frame <= frames; frame++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		pos := camera.Position(time.Since(start).Seconds())
		if err := manager.UpdateTerrains(pos); err != nil {
			return err
		}
		renderer.reset()
		manager.Buffer().Draw(&renderer)

		if frame%120 == 0 {
			s := manager.Stats()
			logger.Printf("frame %d camera %.1f,%.1f cell %v: %d resident, %d pending, %d draws, %d triangles",
				frame, pos.X(), pos.Z(), s.Center, s.Resident, s.Pending, renderer.draws, renderer.indices/3)
		}
	}
	return nil
}

// frameRenderer stands in for the presentation pipeline and counts what one
// frame would draw.
type frameRenderer struct {
	draws   int
	indices int
}

func (r *frameRenderer) reset() {
	r.draws = 0
	r.indices = 0
}

func (r *frameRenderer) DrawIndexed(_ int, indexCount int) {
	r.draws++
	r.indices += indexCount
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			return
		}

		time.AfterFunc(10*time.Second, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
