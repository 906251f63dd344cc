package streaming

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"terrainstream/internal/chunkbuffer"
	"terrainstream/internal/config"
	"terrainstream/internal/graph"
	"terrainstream/internal/mesh"
)

// ErrClosed is returned by UpdateTerrains after Close.
var ErrClosed = errors.New("terrain manager closed")

// TextureArray is an opaque handle to the splat texture array. The manager
// stores it for the renderer and never interprets it.
type TextureArray uint64

// TileState is the lifecycle of a tracked grid cell.
type TileState int

const (
	TilePending TileState = iota
	TileResident
	TileFailed
)

func (s TileState) String() string {
	switch s {
	case TilePending:
		return "pending"
	case TileResident:
		return "resident"
	case TileFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type tile struct {
	coord  TerrainCoordinateData
	job    uuid.UUID
	slot   int // -1 once released
	state  TileState
	result *graph.Result
	err    error
}

// TileInfo describes one tracked cell.
type TileInfo struct {
	Grid  GridCoord `json:"grid"`
	State string    `json:"state"`
	Slot  int       `json:"slot"`
	Job   string    `json:"job"`
	Error string    `json:"error,omitempty"`
}

// Stats summarises the manager for diagnostics.
type Stats struct {
	Center        GridCoord    `json:"center"`
	Active        int          `json:"active"`
	Pending       int          `json:"pending"`
	Resident      int          `json:"resident"`
	Failed        int          `json:"failed"`
	SlotsUsed     int          `json:"slotsUsed"`
	SlotsCapacity int          `json:"slotsCapacity"`
	Scheduled     uint64       `json:"scheduled"`
	Completed     uint64       `json:"completed"`
	FailedJobs    uint64       `json:"failedJobs"`
	Retired       uint64       `json:"retired"`
	Deferred      uint64       `json:"deferred"`
	Frames        uint64       `json:"frames"`
	Uploads       int          `json:"uploads"`
	Program       string       `json:"program"`
	Textures      TextureArray `json:"textures"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger replaces the default "terrain" logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTextureArray stores the splat texture array handle.
func WithTextureArray(t TextureArray) Option {
	return func(m *Manager) { m.textures = t }
}

// WithVerbose enables per-tile evaluation progress logging.
func WithVerbose(v bool) Option {
	return func(m *Manager) { m.verbose = v }
}

// LayoutFor sizes a chunk buffer for the settings.
func LayoutFor(s config.Settings) chunkbuffer.Layout {
	return chunkbuffer.Layout{
		MaxSlots:        s.MaxChunks,
		VerticesPerSlot: mesh.VertexCount(s.MaxSubdivision),
		IndicesPerSlot:  mesh.IndexCount(s.MaxSubdivision),
		VertexStride:    mesh.VertexStride,
	}
}

// Manager streams terrain tiles around a moving camera. UpdateTerrains,
// Start and Close belong to the main thread; the query methods may be called
// from any goroutine.
type Manager struct {
	settings config.Settings
	buffer   *chunkbuffer.Buffer
	logger   *log.Logger
	verbose  bool
	textures TextureArray

	completions *completionQueue

	mu             sync.RWMutex
	pool           *pool
	program        *graph.Program
	pendingProgram *graph.Program
	recreate       bool
	closed         bool
	tiles          map[GridCoord]*tile
	center         GridCoord
	stats          Stats
}

func NewManager(settings config.Settings, program *graph.Program, buffer *chunkbuffer.Buffer, opts ...Option) (*Manager, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("terrain manager: %w", err)
	}
	if program == nil {
		return nil, errors.New("terrain manager: program is nil")
	}
	if buffer == nil {
		return nil, errors.New("terrain manager: chunk buffer is nil")
	}
	want := LayoutFor(settings)
	got := buffer.Layout()
	if got.VertexStride != want.VertexStride || got.VerticesPerSlot < want.VerticesPerSlot || got.IndicesPerSlot < want.IndicesPerSlot {
		return nil, fmt.Errorf("terrain manager: chunk buffer layout %+v cannot hold subdivision %d", got, settings.MaxSubdivision)
	}

	m := &Manager{
		settings:    settings,
		buffer:      buffer,
		logger:      log.New(log.Writer(), "terrain ", log.LstdFlags|log.Lmicroseconds),
		completions: newCompletionQueue(),
		program:     program,
		tiles:       make(map[GridCoord]*tile),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start launches the worker pool. UpdateTerrains starts it on first use.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startLocked()
}

func (m *Manager) startLocked() {
	if m.pool != nil || m.closed {
		return
	}
	m.pool = newPool(m.settings.WorkerThreads, m.buffer.Capacity(), m.buffer, m.completions, m.logger, m.verbose)
}

// Settings returns the settings the manager was built with.
func (m *Manager) Settings() config.Settings {
	return m.settings
}

// Buffer returns the chunk buffer the manager streams into.
func (m *Manager) Buffer() *chunkbuffer.Buffer {
	return m.buffer
}

// RequestRecreate drops every tile on the next frame and regenerates the
// window.
func (m *Manager) RequestRecreate() {
	m.mu.Lock()
	m.recreate = true
	m.mu.Unlock()
}

// SetProgram swaps the terrain graph on the next frame.
func (m *Manager) SetProgram(p *graph.Program) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.pendingProgram = p
	m.recreate = true
	m.mu.Unlock()
}

// UpdateTerrains runs one streaming frame for the camera position. Only a
// device failure is returned; it is fatal for the caller's frame loop.
func (m *Manager) UpdateTerrains(camera mgl32.Vec3) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.startLocked()
	m.stats.Frames++

	if m.recreate {
		m.recreateLocked()
	}

	center := CellAt(camera.X(), camera.Z(), m.settings.TileWidth)
	if center != m.center && m.verbose {
		m.logger.Printf("camera entered cell %v", center)
	}
	m.center = center

	m.retireLocked(center)
	m.scheduleLocked(center)
	m.drainLocked()
	m.mu.Unlock()

	if err := m.buffer.UpdateChunks(); err != nil {
		return fmt.Errorf("update chunks: %w", err)
	}
	return nil
}

func (m *Manager) recreateLocked() {
	m.pool.stop()
	for cell, t := range m.tiles {
		if t.state != TilePending {
			m.releaseSlot(t)
		}
		delete(m.tiles, cell)
	}
	// Every job finished or was cancelled inside stop, so all of their
	// completions are stale now.
	m.drainLocked()

	if m.pendingProgram != nil {
		m.program = m.pendingProgram
		m.pendingProgram = nil
		m.logger.Printf("terrain graph %q installed", m.program.Name())
	}
	m.recreate = false
	m.pool = nil
	m.startLocked()
	m.logger.Printf("terrain recreated, %d slots in use", m.buffer.Used())
}

func (m *Manager) retireLocked(center GridCoord) {
	keep := m.settings.ViewDistance + m.settings.RetireHysteresis
	for cell, t := range m.tiles {
		if cell.Chebyshev(center) <= keep {
			continue
		}
		// Pending tiles keep their slot until the job reports back.
		if t.state != TilePending {
			m.releaseSlot(t)
		}
		delete(m.tiles, cell)
		m.stats.Retired++
	}
}

func (m *Manager) scheduleLocked(center GridCoord) {
	for _, cell := range ringCells(center, m.settings.ViewDistance) {
		if _, ok := m.tiles[cell]; ok {
			continue
		}
		slot, err := m.buffer.Allocate()
		if errors.Is(err, chunkbuffer.ErrResourceExhausted) {
			m.stats.Deferred++
			return
		}
		if err != nil {
			m.logger.Printf("allocate slot for %v: %v", cell, err)
			return
		}

		job := TerrainCreationData{
			ID:               uuid.New(),
			Program:          m.program,
			Coord:            NewCoordinateData(cell, m.settings),
			SourceResolution: m.settings.SourceImageResolution,
			Subdivision:      m.settings.MaxSubdivision,
			HeightScale:      m.settings.HeightScale,
			Seed:             m.settings.Seed,
			Slot:             slot,
		}
		if err := m.pool.submit(job); err != nil {
			m.logger.Printf("submit %v: %v", cell, err)
			if ferr := m.buffer.Free(slot); ferr != nil {
				m.logger.Printf("free slot %d: %v", slot, ferr)
			}
			return
		}
		m.tiles[cell] = &tile{coord: job.Coord, job: job.ID, slot: slot, state: TilePending}
		m.stats.Scheduled++
	}
}

func (m *Manager) drainLocked() {
	for _, c := range m.completions.Drain() {
		t, ok := m.tiles[c.job.Coord.Grid]
		if !ok || t.job != c.job.ID {
			m.freeSlot(c.job.Slot)
			continue
		}

		switch {
		case c.cancelled:
			m.releaseSlot(t)
			delete(m.tiles, c.job.Coord.Grid)
		case c.err != nil:
			m.releaseSlot(t)
			t.state = TileFailed
			t.err = c.err
			m.stats.FailedJobs++
			m.logger.Printf("tile %v failed: %v", c.job.Coord.Grid, c.err)
		default:
			t.state = TileResident
			t.result = c.result
			m.stats.Completed++
		}
	}
}

func (m *Manager) releaseSlot(t *tile) {
	if t.slot < 0 {
		return
	}
	m.freeSlot(t.slot)
	t.slot = -1
}

func (m *Manager) freeSlot(slot int) {
	if err := m.buffer.Free(slot); err != nil {
		m.logger.Printf("free slot %d: %v", slot, err)
	}
}

// GetTerrainHeightAtLocation returns the terrain height under world (x, z)
// when the tile there is resident.
func (m *Manager) GetTerrainHeightAtLocation(x, z float32) (float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tiles[CellAt(x, z, m.settings.TileWidth)]
	if !ok || t.state != TileResident || t.result == nil {
		return 0, false
	}
	w := t.coord.WorldSize
	u := (x - t.coord.WorldPosition.X()) / w
	v := (z - t.coord.WorldPosition.Z()) / w
	return t.result.SampleHeight(u, v) * m.settings.HeightScale, true
}

// ActiveCells lists every tracked cell ordered by Z then X.
func (m *Manager) ActiveCells() []GridCoord {
	m.mu.RLock()
	cells := make([]GridCoord, 0, len(m.tiles))
	for cell := range m.tiles {
		cells = append(cells, cell)
	}
	m.mu.RUnlock()
	sortCells(cells)
	return cells
}

// Tiles describes every tracked cell ordered by Z then X.
func (m *Manager) Tiles() []TileInfo {
	m.mu.RLock()
	out := make([]TileInfo, 0, len(m.tiles))
	for cell, t := range m.tiles {
		info := TileInfo{Grid: cell, State: t.state.String(), Slot: t.slot, Job: t.job.String()}
		if t.err != nil {
			info.Error = t.err.Error()
		}
		out = append(out, info)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return lessCell(out[i].Grid, out[j].Grid) })
	return out
}

// Chunks reports the chunk buffer slot table.
func (m *Manager) Chunks() []chunkbuffer.SlotInfo {
	return m.buffer.Snapshot()
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	s := m.stats
	s.Center = m.center
	s.Active = len(m.tiles)
	for _, t := range m.tiles {
		switch t.state {
		case TilePending:
			s.Pending++
		case TileResident:
			s.Resident++
		case TileFailed:
			s.Failed++
		}
	}
	s.Program = m.program.Name()
	m.mu.RUnlock()

	s.SlotsUsed = m.buffer.Used()
	s.SlotsCapacity = m.buffer.Capacity()
	s.Uploads = m.buffer.Uploads()
	s.Textures = m.textures
	return s
}

// Close stops the workers and releases every slot.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.pool != nil {
		m.pool.stop()
		m.pool = nil
	}
	for cell, t := range m.tiles {
		if t.state != TilePending {
			m.releaseSlot(t)
		}
		delete(m.tiles, cell)
	}
	m.drainLocked()
	m.closed = true
}

func sortCells(cells []GridCoord) {
	sort.Slice(cells, func(i, j int) bool { return lessCell(cells[i], cells[j]) })
}

func lessCell(a, b GridCoord) bool {
	if a.Z != b.Z {
		return a.Z < b.Z
	}
	return a.X < b.X
}
