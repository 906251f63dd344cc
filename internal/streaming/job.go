package streaming

import (
	"github.com/google/uuid"

	"terrainstream/internal/graph"
)

// TerrainCreationData describes one tile generation job. It is immutable once
// submitted. The job owns Slot until its completion is drained.
type TerrainCreationData struct {
	ID               uuid.UUID
	Program          *graph.Program
	Coord            TerrainCoordinateData
	SourceResolution int
	Subdivision      int
	HeightScale      float32
	Seed             int64
	Slot             int
}

type completion struct {
	job         TerrainCreationData
	result      *graph.Result
	vertexCount int
	indexCount  int
	err         error
	cancelled   bool
}
