package streaming

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/config"
)

// GridCoord identifies a tile on the streaming grid. Tile (0, 0) is centred
// on the world origin.
type GridCoord struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// Chebyshev is the grid distance max(|dx|, |dz|).
func (g GridCoord) Chebyshev(o GridCoord) int {
	dx := g.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dz := g.Z - o.Z
	if dz < 0 {
		dz = -dz
	}
	return max(dx, dz)
}

// CellAt returns the grid cell containing world position (x, z).
func CellAt(x, z, tileWidth float32) GridCoord {
	return GridCoord{
		X: int(math.Floor(float64(x/tileWidth) + 0.5)),
		Z: int(math.Floor(float64(z/tileWidth) + 0.5)),
	}
}

// TerrainCoordinateData places one tile in world and noise space.
type TerrainCoordinateData struct {
	WorldPosition mgl32.Vec3 // min corner
	WorldSize     float32
	NoiseOrigin   [2]int
	NoiseScale    float64
	Grid          GridCoord
}

// NewCoordinateData lays tiles out so that neighbours share their border row
// of heightmap samples.
func NewCoordinateData(g GridCoord, s config.Settings) TerrainCoordinateData {
	w := s.TileWidth
	span := s.SourceImageResolution - 1
	return TerrainCoordinateData{
		WorldPosition: mgl32.Vec3{float32(g.X)*w - w/2, 0, float32(g.Z)*w - w/2},
		WorldSize:     w,
		NoiseOrigin:   [2]int{g.X * span, g.Z * span},
		NoiseScale:    1 / float64(span),
		Grid:          g,
	}
}

// Contains reports whether world position (x, z) lies on the tile.
func (c TerrainCoordinateData) Contains(x, z float32) bool {
	minX, minZ := c.WorldPosition.X(), c.WorldPosition.Z()
	return x >= minX && x < minX+c.WorldSize && z >= minZ && z < minZ+c.WorldSize
}

// ringCells lists the (2r+1)² cells around center, nearest ring first.
func ringCells(center GridCoord, radius int) []GridCoord {
	cells := make([]GridCoord, 0, (2*radius+1)*(2*radius+1))
	cells = append(cells, center)
	for r := 1; r <= radius; r++ {
		x0, x1 := center.X-r, center.X+r
		z0, z1 := center.Z-r, center.Z+r
		for x := x0; x <= x1; x++ {
			cells = append(cells, GridCoord{X: x, Z: z0})
		}
		for z := z0 + 1; z <= z1-1; z++ {
			cells = append(cells, GridCoord{X: x1, Z: z})
		}
		for x := x1; x >= x0; x-- {
			cells = append(cells, GridCoord{X: x, Z: z1})
		}
		for z := z1 - 1; z >= z0+1; z-- {
			cells = append(cells, GridCoord{X: x0, Z: z})
		}
	}
	return cells
}
