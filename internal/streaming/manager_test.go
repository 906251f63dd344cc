package streaming

import (
	"errors"
	"io"
	"log"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/chunkbuffer"
	"terrainstream/internal/config"
	"terrainstream/internal/graph"
	"terrainstream/internal/mesh"
)

func testSettings() config.Settings {
	s := config.Default()
	s.TileWidth = 16
	s.MaxSubdivision = 4
	s.ViewDistance = 1
	s.GridDimensions = 3
	s.SourceImageResolution = 9
	s.WorkerThreads = 2
	s.MaxChunks = 16
	s.HeightScale = 10
	return s
}

func flatProgram(t *testing.T, height float32) *graph.Program {
	t.Helper()
	p := graph.NewPrototype("flat")
	out, _ := p.AddNode(graph.KindOutput)
	c, _ := p.AddNode(graph.KindConstFloat)
	if err := p.SetLiteral(c, 0, graph.Float(height)); err != nil {
		t.Fatalf("SetLiteral: %v", err)
	}
	if err := p.SetLinkInput(out, 0, c); err != nil {
		t.Fatalf("link: %v", err)
	}
	prog, err := p.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return prog
}

func brokenProgram(t *testing.T) *graph.Program {
	t.Helper()
	p := graph.NewPrototype("broken")
	out, _ := p.AddNode(graph.KindOutput)
	div, _ := p.AddNode(graph.KindDivide)
	_ = p.SetLiteral(div, 1, graph.Float(0))
	if err := p.SetLinkInput(out, 0, div); err != nil {
		t.Fatalf("link: %v", err)
	}
	prog, err := p.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return prog
}

func newTestManager(t *testing.T, s config.Settings, prog *graph.Program) (*Manager, *chunkbuffer.MemoryDevice) {
	t.Helper()
	return newTestManagerWithLayout(t, s, prog, LayoutFor(s))
}

func newTestManagerWithLayout(t *testing.T, s config.Settings, prog *graph.Program, layout chunkbuffer.Layout) (*Manager, *chunkbuffer.MemoryDevice) {
	t.Helper()
	dev := chunkbuffer.NewMemoryDevice()
	buf, err := chunkbuffer.New(dev, layout)
	if err != nil {
		t.Fatalf("chunkbuffer.New: %v", err)
	}
	m, err := NewManager(s, prog, buf, WithLogger(log.New(io.Discard, "", 0)), WithTextureArray(7))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	return m, dev
}

// settle runs frames until no job is outstanding and every used slot
// belongs to a resident tile.
func settle(t *testing.T, m *Manager, camera mgl32.Vec3) Stats {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if err := m.UpdateTerrains(camera); err != nil {
			t.Fatalf("UpdateTerrains: %v", err)
		}
		s := m.Stats()
		if s.Pending == 0 && s.SlotsUsed == s.Resident && m.completions.Len() == 0 {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("streaming did not settle: %+v", s)
		}
		time.Sleep(time.Millisecond)
	}
}

func window(center GridCoord, radius int) []GridCoord {
	var cells []GridCoord
	for z := center.Z - radius; z <= center.Z+radius; z++ {
		for x := center.X - radius; x <= center.X+radius; x++ {
			cells = append(cells, GridCoord{X: x, Z: z})
		}
	}
	return cells
}

func cellSet(cells []GridCoord) map[GridCoord]bool {
	out := make(map[GridCoord]bool, len(cells))
	for _, c := range cells {
		out[c] = true
	}
	return out
}

func TestNewManagerValidatesInputs(t *testing.T) {
	s := testSettings()
	buf, err := chunkbuffer.New(chunkbuffer.NewMemoryDevice(), LayoutFor(s))
	if err != nil {
		t.Fatalf("chunkbuffer.New: %v", err)
	}
	if _, err := NewManager(s, nil, buf); err == nil {
		t.Fatalf("expected error for nil program")
	}
	if _, err := NewManager(s, graph.DefaultProgram(), nil); err == nil {
		t.Fatalf("expected error for nil buffer")
	}
	bad := s
	bad.WorkerThreads = 0
	if _, err := NewManager(bad, graph.DefaultProgram(), buf); err == nil {
		t.Fatalf("expected error for invalid settings")
	}
	bigger := s
	bigger.MaxSubdivision = 8
	if _, err := NewManager(bigger, graph.DefaultProgram(), buf); err == nil {
		t.Fatalf("expected error for a buffer too small for the subdivision")
	}
}

func TestThreeByThreeWindowAndShift(t *testing.T) {
	s := testSettings()
	m, _ := newTestManager(t, s, graph.DefaultProgram())

	stats := settle(t, m, mgl32.Vec3{0, 0, 0})
	if stats.Resident != 9 || stats.SlotsUsed != 9 {
		t.Fatalf("steady state %+v, want 9 resident tiles", stats)
	}
	before := m.ActiveCells()
	if !reflect.DeepEqual(before, window(GridCoord{}, 1)) {
		t.Fatalf("active cells = %v", before)
	}

	camera := mgl32.Vec3{s.TileWidth, 0, 0}
	if err := m.UpdateTerrains(camera); err != nil {
		t.Fatalf("UpdateTerrains: %v", err)
	}
	after := m.ActiveCells()
	beforeSet, afterSet := cellSet(before), cellSet(after)

	var retired, added []GridCoord
	for _, c := range before {
		if !afterSet[c] {
			retired = append(retired, c)
		}
	}
	for _, c := range after {
		if !beforeSet[c] {
			added = append(added, c)
		}
	}
	wantRetired := []GridCoord{{X: -1, Z: -1}, {X: -1, Z: 0}, {X: -1, Z: 1}}
	wantAdded := []GridCoord{{X: 2, Z: -1}, {X: 2, Z: 0}, {X: 2, Z: 1}}
	if !reflect.DeepEqual(retired, wantRetired) {
		t.Fatalf("retired = %v, want %v", retired, wantRetired)
	}
	if !reflect.DeepEqual(added, wantAdded) {
		t.Fatalf("added = %v, want %v", added, wantAdded)
	}
	shifted := m.Stats()
	if shifted.Retired-stats.Retired != 3 || shifted.Scheduled-stats.Scheduled != 3 {
		t.Fatalf("retired %d scheduled %d in the shift frame", shifted.Retired-stats.Retired, shifted.Scheduled-stats.Scheduled)
	}

	final := settle(t, m, camera)
	if final.Resident != 9 || final.SlotsUsed != 9 {
		t.Fatalf("after shift %+v", final)
	}
	if !reflect.DeepEqual(m.ActiveCells(), window(GridCoord{X: 1}, 1)) {
		t.Fatalf("active cells after shift = %v", m.ActiveCells())
	}
}

func TestStreamingConvergesAfterMovement(t *testing.T) {
	s := testSettings()
	s.ViewDistance = 2
	s.GridDimensions = 5
	s.MaxChunks = 40
	m, _ := newTestManager(t, s, graph.DefaultProgram())

	rng := rand.New(rand.NewSource(3))
	camera := mgl32.Vec3{}
	for i := 0; i < 60; i++ {
		camera = camera.Add(mgl32.Vec3{(rng.Float32() - 0.5) * 40, 0, (rng.Float32() - 0.5) * 40})
		if err := m.UpdateTerrains(camera); err != nil {
			t.Fatalf("UpdateTerrains: %v", err)
		}
	}

	stats := settle(t, m, camera)
	center := CellAt(camera.X(), camera.Z(), s.TileWidth)
	if got, want := m.ActiveCells(), window(center, 2); !reflect.DeepEqual(got, want) {
		t.Fatalf("active cells = %v, want %v", got, want)
	}
	if stats.Resident != 25 || stats.SlotsUsed != 25 || stats.Failed != 0 {
		t.Fatalf("converged stats %+v", stats)
	}
}

func TestPoolExhaustionDefersScheduling(t *testing.T) {
	s := testSettings()
	layout := LayoutFor(s)
	layout.MaxSlots = 4
	m, _ := newTestManagerWithLayout(t, s, graph.DefaultProgram(), layout)

	stats := settle(t, m, mgl32.Vec3{})
	if stats.Active != 4 || stats.SlotsUsed != 4 || stats.Deferred == 0 {
		t.Fatalf("exhausted stats %+v", stats)
	}
	active := cellSet(m.ActiveCells())
	if !active[GridCoord{}] {
		t.Fatalf("camera cell was not scheduled first: %v", m.ActiveCells())
	}

	far := mgl32.Vec3{10 * s.TileWidth, 0, 10 * s.TileWidth}
	stats = settle(t, m, far)
	if stats.Active != 4 || stats.SlotsUsed != 4 {
		t.Fatalf("after moving %+v", stats)
	}
	for _, c := range m.ActiveCells() {
		if c.Chebyshev(GridCoord{X: 10, Z: 10}) > 1 {
			t.Fatalf("stale cell %v still active", c)
		}
	}
}

func TestFailingGraphAbortsOnlyItsTiles(t *testing.T) {
	s := testSettings()
	m, _ := newTestManager(t, s, brokenProgram(t))

	stats := settle(t, m, mgl32.Vec3{})
	if stats.Failed != 9 || stats.SlotsUsed != 0 || stats.FailedJobs != 9 {
		t.Fatalf("broken graph stats %+v", stats)
	}
	for _, info := range m.Tiles() {
		if info.State != "failed" || info.Slot != -1 || !strings.Contains(info.Error, "divide by zero") {
			t.Fatalf("tile %+v", info)
		}
	}

	for i := 0; i < 3; i++ {
		if err := m.UpdateTerrains(mgl32.Vec3{}); err != nil {
			t.Fatalf("UpdateTerrains: %v", err)
		}
	}
	if got := m.Stats().Scheduled; got != 9 {
		t.Fatalf("failed tiles were rescheduled: %d jobs", got)
	}

	m.SetProgram(flatProgram(t, 0.25))
	stats = settle(t, m, mgl32.Vec3{})
	if stats.Resident != 9 || stats.Failed != 0 || stats.Program != "flat" {
		t.Fatalf("after program swap %+v", stats)
	}
}

func TestRequestRecreateRegeneratesWindow(t *testing.T) {
	m, _ := newTestManager(t, testSettings(), graph.DefaultProgram())
	before := settle(t, m, mgl32.Vec3{})

	m.RequestRecreate()
	after := settle(t, m, mgl32.Vec3{})
	if after.Scheduled != before.Scheduled+9 {
		t.Fatalf("scheduled %d, want %d", after.Scheduled, before.Scheduled+9)
	}
	if after.Resident != 9 || after.SlotsUsed != 9 {
		t.Fatalf("after recreate %+v", after)
	}
}

func TestRecreateWhileJobsPending(t *testing.T) {
	m, _ := newTestManager(t, testSettings(), graph.DefaultProgram())
	if err := m.UpdateTerrains(mgl32.Vec3{}); err != nil {
		t.Fatalf("UpdateTerrains: %v", err)
	}
	m.RequestRecreate()
	stats := settle(t, m, mgl32.Vec3{})
	if stats.Resident != 9 || stats.SlotsUsed != 9 {
		t.Fatalf("after recreate with pending jobs %+v", stats)
	}
}

func TestHeightQueryAndUpload(t *testing.T) {
	s := testSettings()
	m, dev := newTestManager(t, s, flatProgram(t, 0.5))

	if _, ok := m.GetTerrainHeightAtLocation(0, 0); ok {
		t.Fatalf("height available before any tile is resident")
	}
	settle(t, m, mgl32.Vec3{})

	for _, p := range [][2]float32{{0, 0}, {3, -5}, {-23.9, 23.9}, {8, 8}} {
		h, ok := m.GetTerrainHeightAtLocation(p[0], p[1])
		if !ok || h != 5 {
			t.Fatalf("height at %v = %v, %v; want 5", p, h, ok)
		}
	}
	if _, ok := m.GetTerrainHeightAtLocation(1000, 0); ok {
		t.Fatalf("height reported outside the window")
	}

	var r recordingRenderer
	m.Buffer().Draw(&r)
	if len(r.draws) != 9 {
		t.Fatalf("draws = %d, want 9", len(r.draws))
	}
	for _, d := range r.draws {
		if d[1] != mesh.IndexCount(s.MaxSubdivision) {
			t.Fatalf("draw %v has wrong index count", d)
		}
	}

	layout := m.Buffer().Layout()
	resident := dev.Contents(m.Buffer().ResidentHandle())
	slot := r.draws[0][0]
	v := mesh.DecodeVertex(resident[layout.VertexOffset(slot):])
	if v.Position.Y() != 5 {
		t.Fatalf("uploaded vertex %+v, want height 5", v)
	}
	if m.Stats().Textures != 7 {
		t.Fatalf("texture array handle not passed through")
	}
}

type recordingRenderer struct {
	draws [][2]int
}

func (r *recordingRenderer) DrawIndexed(slot, indexCount int) {
	r.draws = append(r.draws, [2]int{slot, indexCount})
}

type brokenDevice struct {
	*chunkbuffer.MemoryDevice
}

func (brokenDevice) SubmitCopy(chunkbuffer.BufferHandle, chunkbuffer.BufferHandle, []chunkbuffer.CopyRegion) error {
	return errors.New("queue lost")
}

func TestDeviceFailureIsReturned(t *testing.T) {
	s := testSettings()
	buf, err := chunkbuffer.New(brokenDevice{chunkbuffer.NewMemoryDevice()}, LayoutFor(s))
	if err != nil {
		t.Fatalf("chunkbuffer.New: %v", err)
	}
	m, err := NewManager(s, graph.DefaultProgram(), buf, WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	deadline := time.Now().Add(10 * time.Second)
	for {
		err := m.UpdateTerrains(mgl32.Vec3{})
		if err != nil {
			if !errors.Is(err, chunkbuffer.ErrDevice) {
				t.Fatalf("error = %v, want ErrDevice", err)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("device failure never surfaced")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCloseReleasesSlots(t *testing.T) {
	m, _ := newTestManager(t, testSettings(), graph.DefaultProgram())
	if err := m.UpdateTerrains(mgl32.Vec3{}); err != nil {
		t.Fatalf("UpdateTerrains: %v", err)
	}
	m.Close()
	if used := m.Buffer().Used(); used != 0 {
		t.Fatalf("Used() after Close = %d", used)
	}
	if err := m.UpdateTerrains(mgl32.Vec3{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("UpdateTerrains after Close = %v", err)
	}
}
