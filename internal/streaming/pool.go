package streaming

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"terrainstream/internal/chunkbuffer"
	"terrainstream/internal/graph"
	"terrainstream/internal/mesh"
)

var errQueueFull = errors.New("job queue full")

// pool runs tile jobs on a fixed set of goroutines fed by one channel.
// Shutdown cancels the pool context and closes the channel; jobs still
// queued are reported as cancelled and jobs already running complete.
type pool struct {
	jobs        chan TerrainCreationData
	buffer      *chunkbuffer.Buffer
	completions *completionQueue
	logger      *log.Logger
	verbose     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newPool starts workers goroutines. capacity bounds the queue; the manager
// sizes it to the chunk buffer so that submit never blocks.
func newPool(workers, capacity int, buffer *chunkbuffer.Buffer, completions *completionQueue, logger *log.Logger, verbose bool) *pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &pool{
		jobs:        make(chan TerrainCreationData, capacity),
		buffer:      buffer,
		completions: completions,
		logger:      logger,
		verbose:     verbose,
		ctx:         ctx,
		cancel:      cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *pool) submit(job TerrainCreationData) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: tile %v", errQueueFull, job.Coord.Grid)
	}
}

// stop blocks until every worker has exited. All submitted jobs have pushed
// a completion by the time it returns.
func (p *pool) stop() {
	p.cancel()
	close(p.jobs)
	p.wg.Wait()
}

func (p *pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		if p.ctx.Err() != nil {
			p.completions.Push(completion{job: job, cancelled: true})
			continue
		}
		p.completions.Push(p.run(job))
	}
}

func (p *pool) run(job TerrainCreationData) completion {
	c := completion{job: job}
	params := graph.TileParams{
		Seed:       job.Seed,
		Resolution: job.SourceResolution,
		Origin:     job.Coord.NoiseOrigin,
		Scale:      job.Coord.NoiseScale,
	}
	if p.verbose {
		params.Logger = p.logger
	}

	user, err := graph.NewUser(job.Program, params)
	if err != nil {
		c.err = fmt.Errorf("tile %v: %w", job.Coord.Grid, err)
		return c
	}
	// In-flight tiles always finish; only queued jobs observe shutdown.
	result, err := user.Evaluate(context.Background())
	if err != nil {
		c.err = fmt.Errorf("evaluate tile %v: %w", job.Coord.Grid, err)
		return c
	}

	m, err := mesh.Build(result, mesh.Params{
		Subdivision: job.Subdivision,
		TileWidth:   job.Coord.WorldSize,
		HeightScale: job.HeightScale,
		Origin:      job.Coord.WorldPosition,
	})
	if err != nil {
		c.err = fmt.Errorf("mesh tile %v: %w", job.Coord.Grid, err)
		return c
	}

	vb, err := p.buffer.VertexStaging(job.Slot)
	if err != nil {
		c.err = fmt.Errorf("stage tile %v: %w", job.Coord.Grid, err)
		return c
	}
	ib, err := p.buffer.IndexStaging(job.Slot)
	if err != nil {
		c.err = fmt.Errorf("stage tile %v: %w", job.Coord.Grid, err)
		return c
	}
	if _, err := m.EncodeVertices(vb); err != nil {
		c.err = fmt.Errorf("stage tile %v: %w", job.Coord.Grid, err)
		return c
	}
	if _, err := m.EncodeIndices(ib); err != nil {
		c.err = fmt.Errorf("stage tile %v: %w", job.Coord.Grid, err)
		return c
	}
	if err := p.buffer.SetChunkWritten(job.Slot, len(m.Vertices), len(m.Indices)); err != nil {
		c.err = fmt.Errorf("stage tile %v: %w", job.Coord.Grid, err)
		return c
	}

	c.result = result
	c.vertexCount = len(m.Vertices)
	c.indexCount = len(m.Indices)
	return c
}
