package mesh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/graph"
)

const (
	// VertexStride is the encoded size of one Vertex in bytes.
	VertexStride = 36
	// IndexSize is the encoded size of one index in bytes.
	IndexSize = 4
)

// Vertex is one terrain grid point.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	Splat    [4]uint8
}

// Mesh is a CPU-side tile mesh with two triangles per quad.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Params place a tile mesh in world space.
type Params struct {
	Subdivision int        // quads per tile edge
	TileWidth   float32    // world units per tile edge
	HeightScale float32    // world units per unit of graph height
	Origin      mgl32.Vec3 // tile min corner
}

// VertexCount is the vertex count of a tile with sub quads per edge.
func VertexCount(sub int) int {
	return (sub + 1) * (sub + 1)
}

// IndexCount is the index count of a tile with sub quads per edge.
func IndexCount(sub int) int {
	return 6 * sub * sub
}

// Build samples the heightmap bilinearly on a (sub+1)² grid and emits the
// fixed topology. Splat weights come from the nearest heightmap pixel.
func Build(res *graph.Result, p Params) (*Mesh, error) {
	if res == nil || res.Resolution < 1 {
		return nil, errors.New("mesh: empty heightmap")
	}
	if p.Subdivision <= 0 {
		return nil, fmt.Errorf("mesh: subdivision must be positive, got %d", p.Subdivision)
	}
	if p.TileWidth <= 0 {
		return nil, fmt.Errorf("mesh: tile width must be positive, got %v", p.TileWidth)
	}

	sub := p.Subdivision
	step := p.TileWidth / float32(sub)
	du := 1 / float32(sub)
	height := func(u, v float32) float32 {
		return res.SampleHeight(u, v) * p.HeightScale
	}

	m := &Mesh{
		Vertices: make([]Vertex, 0, VertexCount(sub)),
		Indices:  make([]uint32, 0, IndexCount(sub)),
	}
	for j := 0; j <= sub; j++ {
		v := float32(j) * du
		for i := 0; i <= sub; i++ {
			u := float32(i) * du

			// Central differences, one-sided at the tile edges.
			u0, u1 := max(u-du, 0), min(u+du, 1)
			v0, v1 := max(v-du, 0), min(v+du, 1)
			dx := (height(u1, v) - height(u0, v)) / ((u1 - u0) * p.TileWidth)
			dz := (height(u, v1) - height(u, v0)) / ((v1 - v0) * p.TileWidth)
			normal := mgl32.Vec3{-dx, 1, -dz}.Normalize()

			px := clampPixel(u, res.Resolution)
			pz := clampPixel(v, res.Resolution)

			m.Vertices = append(m.Vertices, Vertex{
				Position: p.Origin.Add(mgl32.Vec3{float32(i) * step, height(u, v), float32(j) * step}),
				Normal:   normal,
				UV:       mgl32.Vec2{u, v},
				Splat:    res.SplatAt(px, pz),
			})
		}
	}

	row := uint32(sub + 1)
	for j := 0; j < sub; j++ {
		for i := 0; i < sub; i++ {
			a := uint32(j)*row + uint32(i)
			b := a + 1
			c := a + row
			d := c + 1
			m.Indices = append(m.Indices, a, c, b, b, c, d)
		}
	}
	return m, nil
}

func clampPixel(u float32, res int) int {
	px := int(math.Round(float64(u * float32(res-1))))
	if px < 0 {
		return 0
	}
	if px >= res {
		return res - 1
	}
	return px
}

// VertexBytes is the encoded size of the vertex payload.
func (m *Mesh) VertexBytes() int {
	return len(m.Vertices) * VertexStride
}

// IndexBytes is the encoded size of the index payload.
func (m *Mesh) IndexBytes() int {
	return len(m.Indices) * IndexSize
}

// EncodeVertices writes the vertices little-endian into dst.
func (m *Mesh) EncodeVertices(dst []byte) (int, error) {
	need := m.VertexBytes()
	if len(dst) < need {
		return 0, fmt.Errorf("mesh: vertex buffer holds %d bytes, need %d", len(dst), need)
	}
	for i, v := range m.Vertices {
		encodeVertex(dst[i*VertexStride:], v)
	}
	return need, nil
}

// EncodeIndices writes the indices little-endian into dst.
func (m *Mesh) EncodeIndices(dst []byte) (int, error) {
	need := m.IndexBytes()
	if len(dst) < need {
		return 0, fmt.Errorf("mesh: index buffer holds %d bytes, need %d", len(dst), need)
	}
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(dst[i*IndexSize:], idx)
	}
	return need, nil
}

func encodeVertex(b []byte, v Vertex) {
	putVec := func(off int, f ...float32) {
		for k, x := range f {
			binary.LittleEndian.PutUint32(b[off+4*k:], math.Float32bits(x))
		}
	}
	putVec(0, v.Position[:]...)
	putVec(12, v.Normal[:]...)
	putVec(24, v.UV[:]...)
	copy(b[32:36], v.Splat[:])
}

// DecodeVertex reads one encoded vertex.
func DecodeVertex(b []byte) Vertex {
	f := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
	}
	var v Vertex
	for k := 0; k < 3; k++ {
		v.Position[k] = f(4 * k)
		v.Normal[k] = f(12 + 4*k)
	}
	v.UV = mgl32.Vec2{f(24), f(28)}
	copy(v.Splat[:], b[32:36])
	return v
}

// DecodeIndex reads the i-th encoded index.
func DecodeIndex(b []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(b[i*IndexSize:])
}
