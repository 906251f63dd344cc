package graph

// NoiseImage2D caches one noise evaluation over a square tile.
type NoiseImage2D struct {
	Size int
	Pix  []float32
}

func NewNoiseImage2D(size int) *NoiseImage2D {
	return &NoiseImage2D{Size: size, Pix: make([]float32, size*size)}
}

// Fill samples fn at every pixel, row-major.
func (img *NoiseImage2D) Fill(fn func(x, z int) float32) {
	for z := 0; z < img.Size; z++ {
		row := img.Pix[z*img.Size : (z+1)*img.Size]
		for x := range row {
			row[x] = fn(x, z)
		}
	}
}

func (img *NoiseImage2D) At(x, z int) float32 {
	return img.Pix[z*img.Size+x]
}

// Row returns the backing slice of row z.
func (img *NoiseImage2D) Row(z int) []float32 {
	return img.Pix[z*img.Size : (z+1)*img.Size]
}
