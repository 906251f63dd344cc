package graph

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const divideEpsilon = 1e-12

// TileParams place one evaluation in noise space. Cell (x, z) samples noise at
// (Origin + (x, z)) * Scale, so tiles whose origins differ by Resolution-1
// share their border samples.
type TileParams struct {
	Seed       int64
	Resolution int
	Origin     [2]int
	Scale      float64
	// Logger receives progress at 25% row steps when set.
	Logger *log.Logger
}

// User evaluates a shared Program for a single tile. Mutable per-tile state
// lives in side tables indexed like Program.nodes.
type User struct {
	program *Program
	params  TileParams
	images  []*NoiseImage2D
	rows    [][]mgl32.Vec4
}

func NewUser(program *Program, params TileParams) (*User, error) {
	if program == nil {
		return nil, errors.New("graph user: program is nil")
	}
	if params.Resolution < 1 {
		return nil, fmt.Errorf("graph user: resolution must be positive, got %d", params.Resolution)
	}
	if params.Scale <= 0 || math.IsNaN(params.Scale) || math.IsInf(params.Scale, 0) {
		return nil, fmt.Errorf("graph user: scale must be positive and finite, got %v", params.Scale)
	}
	n := len(program.nodes)
	u := &User{
		program: program,
		params:  params,
		images:  make([]*NoiseImage2D, n),
		rows:    make([][]mgl32.Vec4, n),
	}
	for i := range u.rows {
		u.rows[i] = make([]mgl32.Vec4, params.Resolution)
	}
	return u, nil
}

// NoiseImage returns the cached field of a noise node after Evaluate.
func (u *User) NoiseImage(id NodeID) (*NoiseImage2D, bool) {
	for i, n := range u.program.nodes {
		if n.id == id {
			return u.images[i], u.images[i] != nil
		}
	}
	return nil, false
}

// Evaluate fills the noise caches and then walks the tile row by row, running
// every node over a whole row in dependency order. The context is checked
// once per row.
func (u *User) Evaluate(ctx context.Context) (*Result, error) {
	res := u.params.Resolution
	u.fillNoise()

	result := newResult(res)
	out := u.program.nodes[u.program.output]
	nextProgress := 25

	for z := 0; z < res; z++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range u.program.nodes {
			if i == u.program.output {
				continue
			}
			if err := u.evalRow(i, z); err != nil {
				return nil, err
			}
		}

		for x := 0; x < res; x++ {
			h := u.input(out, 0, x)[0]
			splat := u.input(out, 1, x)
			if !finite(mgl32.Vec4{h}, 1) || !finite(splat, 4) {
				return nil, nodeErr(out.id, out.kind, ErrNonFinite)
			}
			result.Height[z*res+x] = mgl32.Clamp(h, -1, 1)
			base := (z*res + x) * 4
			for c := 0; c < 4; c++ {
				result.Splat[base+c] = uint8(math.Round(float64(mgl32.Clamp(splat[c], 0, 1)) * 255))
			}
		}

		if u.params.Logger != nil {
			for pct := (z + 1) * 100 / res; pct >= nextProgress && nextProgress <= 100; nextProgress += 25 {
				u.params.Logger.Printf("tile %v evaluation progress: %d%%", u.params.Origin, nextProgress)
			}
		}
	}
	return result, nil
}

func (u *User) fillNoise() {
	res := u.params.Resolution
	ox := float64(u.params.Origin[0])
	oz := float64(u.params.Origin[1])
	scale := u.params.Scale
	for _, i := range u.program.noise {
		n := u.program.nodes[i]
		src := newNoiseSource(n.kind, n.noise, u.params.Seed)
		img := NewNoiseImage2D(res)
		img.Fill(func(x, z int) float32 {
			return float32(src.sample((ox+float64(x))*scale, (oz+float64(z))*scale))
		})
		u.images[i] = img
	}
}

func (u *User) input(n compiledNode, slot, x int) mgl32.Vec4 {
	in := n.inputs[slot]
	if in.src >= 0 {
		return u.rows[in.src][x]
	}
	return in.lit
}

func (u *User) scalar(n compiledNode, slot, x int) float32 {
	return u.input(n, slot, x)[0]
}

func (u *User) evalRow(i, z int) error {
	n := u.program.nodes[i]
	row := u.rows[i]
	lanes := n.kind.Output().Components()

	if n.kind.IsNoise() {
		for x, v := range u.images[i].Row(z) {
			row[x] = mgl32.Vec4{v}
		}
		return nil
	}

	for x := range row {
		var v mgl32.Vec4
		switch n.kind {
		case KindConstFloat, KindConstVec2, KindConstVec3, KindConstVec4:
			v = u.input(n, 0, x)
		case KindConstInt:
			v = mgl32.Vec4{float32(math.Trunc(float64(u.scalar(n, 0, x))))}
		case KindAdd:
			v[0] = u.scalar(n, 0, x) + u.scalar(n, 1, x)
		case KindSubtract:
			v[0] = u.scalar(n, 0, x) - u.scalar(n, 1, x)
		case KindMultiply:
			v[0] = u.scalar(n, 0, x) * u.scalar(n, 1, x)
		case KindDivide:
			b := u.scalar(n, 1, x)
			if math.Abs(float64(b)) < divideEpsilon {
				return nodeErr(n.id, n.kind, ErrDivideByZero)
			}
			v[0] = u.scalar(n, 0, x) / b
		case KindPower:
			v[0] = float32(math.Pow(float64(u.scalar(n, 0, x)), float64(u.scalar(n, 1, x))))
		case KindMin:
			v[0] = min(u.scalar(n, 0, x), u.scalar(n, 1, x))
		case KindMax:
			v[0] = max(u.scalar(n, 0, x), u.scalar(n, 1, x))
		case KindAbs:
			v[0] = float32(math.Abs(float64(u.scalar(n, 0, x))))
		case KindBlend:
			a, b := u.scalar(n, 0, x), u.scalar(n, 1, x)
			v[0] = a + (b-a)*mgl32.Clamp(u.scalar(n, 2, x), 0, 1)
		case KindClamp:
			lo, hi := u.scalar(n, 1, x), u.scalar(n, 2, x)
			if lo > hi {
				lo, hi = hi, lo
			}
			v[0] = mgl32.Clamp(u.scalar(n, 0, x), lo, hi)
		case KindSelector:
			v[0] = selectValue(
				u.scalar(n, 0, x), u.scalar(n, 1, x), u.scalar(n, 2, x),
				u.scalar(n, 3, x), u.scalar(n, 4, x), u.scalar(n, 5, x),
			)
		case KindColorCompose:
			v = mgl32.Vec4{u.scalar(n, 0, x), u.scalar(n, 1, x), u.scalar(n, 2, x), u.scalar(n, 3, x)}
		default:
			return nodeErr(n.id, n.kind, ErrUnknownKind)
		}
		if !finite(v, lanes) {
			return nodeErr(n.id, n.kind, ErrNonFinite)
		}
		row[x] = v
	}
	return nil
}

// selectValue returns b while control lies in [lower, upper] and a outside.
// A positive falloff cross-fades linearly over [bound-falloff, bound+falloff]
// at each bound; falloff is limited to half the band width.
func selectValue(a, b, control, lower, upper, falloff float32) float32 {
	if lower > upper {
		lower, upper = upper, lower
	}
	if half := (upper - lower) / 2; falloff > half {
		falloff = half
	}
	if falloff <= 0 {
		if lower <= control && control <= upper {
			return b
		}
		return a
	}

	switch {
	case control < lower-falloff:
		return a
	case control < lower+falloff:
		t := (control - (lower - falloff)) / (2 * falloff)
		return a + (b-a)*t
	case control < upper-falloff:
		return b
	case control < upper+falloff:
		t := (control - (upper - falloff)) / (2 * falloff)
		return b + (a-b)*t
	default:
		return a
	}
}
