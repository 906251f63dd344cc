package graph

import (
	"math"
	"testing"
)

func TestNoiseSourcesStayInRange(t *testing.T) {
	kinds := []Kind{KindValueNoise, KindPerlinNoise, KindSimplexNoise, KindFractalNoise, KindCellNoise, KindWhiteNoise}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			src := newNoiseSource(kind, DefaultNoiseSettings(), 42)
			lo, hi := math.Inf(1), math.Inf(-1)
			for i := 0; i < 64; i++ {
				for j := 0; j < 64; j++ {
					v := src.sample(float64(i)*0.37-5, float64(j)*0.29+3)
					if math.IsNaN(v) || v < -1 || v > 1 {
						t.Fatalf("sample(%d,%d) = %v out of range", i, j, v)
					}
					lo = math.Min(lo, v)
					hi = math.Max(hi, v)
				}
			}
			if hi-lo < 0.1 {
				t.Fatalf("noise is nearly constant: [%v, %v]", lo, hi)
			}
		})
	}
}

func TestNoiseSourcesAreDeterministic(t *testing.T) {
	settings := DefaultNoiseSettings()
	for _, kind := range []Kind{KindValueNoise, KindPerlinNoise, KindSimplexNoise, KindCellNoise} {
		a := newNoiseSource(kind, settings, 11)
		b := newNoiseSource(kind, settings, 11)
		for i := 0; i < 32; i++ {
			x, y := float64(i)*0.71, float64(i)*-0.43
			if a.sample(x, y) != b.sample(x, y) {
				t.Fatalf("%s differs at (%v,%v)", kind, x, y)
			}
		}
	}
}

func TestSeedOffsetDecorrelates(t *testing.T) {
	a := DefaultNoiseSettings()
	b := a
	b.SeedOffset = 1
	sa := newNoiseSource(KindSimplexNoise, a, 5)
	sb := newNoiseSource(KindSimplexNoise, b, 5)
	same := 0
	for i := 0; i < 32; i++ {
		x, y := float64(i)*0.53+0.1, float64(i)*0.31+0.2
		if sa.sample(x, y) == sb.sample(x, y) {
			same++
		}
	}
	if same == 32 {
		t.Fatalf("seed offset did not change the field")
	}
}

func TestNoiseImageFill(t *testing.T) {
	img := NewNoiseImage2D(3)
	img.Fill(func(x, z int) float32 { return float32(x + 10*z) })
	if img.At(2, 1) != 12 {
		t.Fatalf("At(2,1) = %v", img.At(2, 1))
	}
	row := img.Row(2)
	if len(row) != 3 || row[0] != 20 {
		t.Fatalf("Row(2) = %v", row)
	}
}
