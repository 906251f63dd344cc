package streaming

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestCellAt(t *testing.T) {
	tests := []struct {
		x, z float32
		want GridCoord
	}{
		{0, 0, GridCoord{}},
		{7.99, -7.99, GridCoord{}},
		{8, 0, GridCoord{X: 1}},
		{-8, 0, GridCoord{}},
		{-8.01, 0, GridCoord{X: -1}},
		{40, -40, GridCoord{X: 3, Z: -2}},
	}
	for _, tt := range tests {
		if got := CellAt(tt.x, tt.z, 16); got != tt.want {
			t.Fatalf("CellAt(%v, %v) = %v, want %v", tt.x, tt.z, got, tt.want)
		}
	}
}

func TestChebyshev(t *testing.T) {
	a := GridCoord{X: 2, Z: -3}
	if d := a.Chebyshev(GridCoord{X: -1, Z: -2}); d != 3 {
		t.Fatalf("distance = %d, want 3", d)
	}
	if d := a.Chebyshev(a); d != 0 {
		t.Fatalf("distance to self = %d", d)
	}
}

func TestNewCoordinateData(t *testing.T) {
	s := testSettings()
	c := NewCoordinateData(GridCoord{X: 1, Z: -2}, s)
	if c.WorldPosition != (mgl32.Vec3{8, 0, -40}) {
		t.Fatalf("world position = %v", c.WorldPosition)
	}
	if c.NoiseOrigin != [2]int{8, -16} || c.NoiseScale != 0.125 || c.WorldSize != 16 {
		t.Fatalf("coordinate data = %+v", c)
	}

	// The right edge of one tile is the left edge of the next in noise space.
	left := NewCoordinateData(GridCoord{}, s)
	right := NewCoordinateData(GridCoord{X: 1}, s)
	edge := float64(left.NoiseOrigin[0]+s.SourceImageResolution-1) * left.NoiseScale
	if start := float64(right.NoiseOrigin[0]) * right.NoiseScale; start != edge {
		t.Fatalf("tile borders do not meet: %v vs %v", edge, start)
	}
}

func TestContainsAgreesWithCellAt(t *testing.T) {
	s := testSettings()
	for _, p := range [][2]float32{{-8, -8}, {7.9, 7.9}, {8, 0}, {-8.01, 3}, {30, -17}} {
		cell := CellAt(p[0], p[1], s.TileWidth)
		if !NewCoordinateData(cell, s).Contains(p[0], p[1]) {
			t.Fatalf("tile %v does not contain %v", cell, p)
		}
	}
}

func TestRingCellsNearestFirst(t *testing.T) {
	center := GridCoord{X: 5, Z: -3}
	cells := ringCells(center, 2)
	if len(cells) != 25 {
		t.Fatalf("len = %d, want 25", len(cells))
	}
	if cells[0] != center {
		t.Fatalf("first cell = %v, want center", cells[0])
	}
	seen := make(map[GridCoord]bool)
	last := 0
	for _, c := range cells {
		if seen[c] {
			t.Fatalf("cell %v listed twice", c)
		}
		seen[c] = true
		d := c.Chebyshev(center)
		if d < last || d > 2 {
			t.Fatalf("cell %v at distance %d after distance %d", c, d, last)
		}
		last = d
	}
	if got := ringCells(center, 0); len(got) != 1 || got[0] != center {
		t.Fatalf("radius 0 = %v", got)
	}
}

func TestCompletionQueueDrain(t *testing.T) {
	q := newCompletionQueue()
	for i := 0; i < 3; i++ {
		q.Push(completion{job: TerrainCreationData{Slot: i}})
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}
	batch := q.Drain()
	if len(batch) != 3 || batch[0].job.Slot != 0 || batch[2].job.Slot != 2 {
		t.Fatalf("batch = %+v", batch)
	}
	if q.Len() != 0 || q.Drain() != nil {
		t.Fatalf("queue not empty after drain")
	}

	q.Push(completion{job: TerrainCreationData{Slot: 9}})
	if again := q.Drain(); len(again) != 1 || again[0].job.Slot != 9 || batch[0].job.Slot != 0 {
		t.Fatalf("second drain = %+v, first batch = %+v", again, batch)
	}
}

func TestPoolReportsQueuedJobsCancelled(t *testing.T) {
	q := newCompletionQueue()
	p := newPool(1, 4, nil, q, nil, false)
	p.cancel()
	for i := 0; i < 3; i++ {
		if err := p.submit(TerrainCreationData{Slot: i}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	p.stop()
	got := q.Drain()
	if len(got) != 3 {
		t.Fatalf("completions = %d, want 3", len(got))
	}
	for _, c := range got {
		if !c.cancelled {
			t.Fatalf("completion %+v not cancelled", c)
		}
	}
}
