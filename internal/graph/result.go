package graph

// Result is the output of one tile evaluation.
type Result struct {
	Resolution int
	Height     []float32 // Resolution², row-major, in [-1, 1]
	Splat      []uint8   // Resolution²×4 RGBA weights
}

func newResult(res int) *Result {
	return &Result{
		Resolution: res,
		Height:     make([]float32, res*res),
		Splat:      make([]uint8, res*res*4),
	}
}

// HeightAt returns the sample at pixel (x, z), clamping to the tile edge.
func (r *Result) HeightAt(x, z int) float32 {
	x = clampIndex(x, r.Resolution)
	z = clampIndex(z, r.Resolution)
	return r.Height[z*r.Resolution+x]
}

// SplatAt returns the RGBA weights at pixel (x, z).
func (r *Result) SplatAt(x, z int) [4]uint8 {
	x = clampIndex(x, r.Resolution)
	z = clampIndex(z, r.Resolution)
	i := (z*r.Resolution + x) * 4
	return [4]uint8{r.Splat[i], r.Splat[i+1], r.Splat[i+2], r.Splat[i+3]}
}

// SampleHeight bilinearly interpolates the heightmap at normalised tile
// coordinates u, v in [0, 1].
func (r *Result) SampleHeight(u, v float32) float32 {
	if r.Resolution == 1 {
		return r.Height[0]
	}
	u = clampUnit32(u)
	v = clampUnit32(v)
	fx := u * float32(r.Resolution-1)
	fz := v * float32(r.Resolution-1)
	x0 := int(fx)
	z0 := int(fz)
	tx := fx - float32(x0)
	tz := fz - float32(z0)

	h00 := r.HeightAt(x0, z0)
	h10 := r.HeightAt(x0+1, z0)
	h01 := r.HeightAt(x0, z0+1)
	h11 := r.HeightAt(x0+1, z0+1)

	top := h00 + (h10-h00)*tx
	bottom := h01 + (h11-h01)*tx
	return top + (bottom-top)*tz
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func clampUnit32(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
