// Package statusapi serves a read-mostly HTTP view of a running terrain
// manager.
package statusapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"terrainstream/internal/chunkbuffer"
	"terrainstream/internal/graph"
	"terrainstream/internal/graphstore"
	"terrainstream/internal/streaming"
)

// Source is the part of the terrain manager the API reads and controls.
type Source interface {
	Stats() streaming.Stats
	Tiles() []streaming.TileInfo
	Chunks() []chunkbuffer.SlotInfo
	GetTerrainHeightAtLocation(x, z float32) (float32, bool)
	RequestRecreate()
	SetProgram(p *graph.Program)
}

type Server struct {
	app    *fiber.App
	source Source
	store  graphstore.Store
	logger *log.Logger
}

type Option func(*Server)

// WithStore enables the /graphs routes.
func WithStore(store graphstore.Store) Option {
	return func(s *Server) { s.store = store }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(source Source, opts ...Option) *Server {
	s := &Server{
		app:    fiber.New(),
		source: source,
		logger: log.New(log.Writer(), "status ", log.LstdFlags|log.Lmicroseconds),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// App exposes the fiber application, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	s.app.Get("/stats", func(c fiber.Ctx) error {
		return c.JSON(s.source.Stats())
	})

	s.app.Get("/tiles", func(c fiber.Ctx) error {
		return c.JSON(s.source.Tiles())
	})

	s.app.Get("/chunks", func(c fiber.Ctx) error {
		return c.JSON(s.source.Chunks())
	})

	s.app.Get("/height", func(c fiber.Ctx) error {
		x, errX := strconv.ParseFloat(c.Query("x"), 32)
		z, errZ := strconv.ParseFloat(c.Query("z"), 32)
		if errX != nil || errZ != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "x and z must be numbers"})
		}
		h, ok := s.source.GetTerrainHeightAtLocation(float32(x), float32(z))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no resident tile at location"})
		}
		return c.JSON(fiber.Map{"x": x, "z": z, "height": h})
	})

	s.app.Post("/recreate", func(c fiber.Ctx) error {
		s.source.RequestRecreate()
		s.logger.Printf("terrain recreate requested")
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "recreate requested"})
	})

	s.app.Get("/graphs", func(c fiber.Ctx) error {
		if s.store == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no graph store configured"})
		}
		list, err := s.store.List(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if list == nil {
			list = []graphstore.Summary{}
		}
		return c.JSON(list)
	})

	s.app.Post("/graphs/:id/activate", func(c fiber.Ctx) error {
		if s.store == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no graph store configured"})
		}
		prog, err := graphstore.LoadProgram(c.Context(), s.store, c.Params("id"))
		switch {
		case errors.Is(err, graphstore.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "graph not found"})
		case errors.Is(err, graph.ErrMisconfigured):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		s.source.SetProgram(prog)
		s.logger.Printf("terrain graph %q activated", prog.Name())
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "graph activated", "name": prog.Name()})
	})
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	s.logger.Printf("status api listening on %s", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("status api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("status api shutdown: %w", err)
	}
	return nil
}
