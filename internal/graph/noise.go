package graph

import (
	"math"

	"github.com/aquilax/go-perlin"
)

// noiseSource samples a 2D field in [-1, 1] at noise-space coordinates.
type noiseSource interface {
	sample(x, y float64) float64
}

// noiseSeed mixes the tile seed with a node's seed offset so that sibling
// noise nodes can be decorrelated.
func noiseSeed(seed, offset int64) int64 {
	h := uint64(seed) ^ uint64(offset)*0x9e3779b97f4a7c15
	h ^= h >> 31
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 29
	return int64(h)
}

func newNoiseSource(kind Kind, settings NoiseSettings, seed int64) noiseSource {
	s := noiseSeed(seed, settings.SeedOffset)
	switch kind {
	case KindPerlinNoise:
		return perlinNoise{
			p:         perlin.NewPerlin(1/settings.Persistence, settings.Lacunarity, int32(settings.Octaves), s),
			frequency: settings.Frequency,
		}
	case KindSimplexNoise:
		return simplexOctave{simplex: newSimplex(s), frequency: settings.Frequency}
	case KindFractalNoise:
		return fbm{base: newSimplex(s), settings: settings}
	case KindCellNoise:
		return cellNoise{seed: s, frequency: settings.Frequency}
	case KindWhiteNoise:
		return whiteNoise{seed: s, frequency: settings.Frequency}
	default:
		return fbm{base: valueNoise{seed: s}, settings: settings}
	}
}

type perlinNoise struct {
	p         *perlin.Perlin
	frequency float64
}

func (n perlinNoise) sample(x, y float64) float64 {
	return clampUnit(n.p.Noise2D(x*n.frequency, y*n.frequency))
}

// fbm sums octaves of a base source, normalised by the total amplitude.
type fbm struct {
	base     noiseSource
	settings NoiseSettings
}

func (n fbm) sample(x, y float64) float64 {
	frequency := n.settings.Frequency
	amplitude := 1.0
	sum := 0.0
	maxAmplitude := 0.0

	for i := 0; i < n.settings.Octaves; i++ {
		sum += n.base.sample(x*frequency, y*frequency) * amplitude
		maxAmplitude += amplitude
		amplitude *= n.settings.Persistence
		frequency *= n.settings.Lacunarity
	}

	if maxAmplitude == 0 {
		return 0
	}
	return clampUnit(sum / maxAmplitude)
}

type valueNoise struct {
	seed int64
}

func (n valueNoise) sample(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1

	sx := smooth(x - float64(x0))
	sy := smooth(y - float64(y0))

	n0 := random2D(x0, y0, n.seed)
	n1 := random2D(x1, y0, n.seed)
	ix0 := lerp(n0, n1, sx)

	n2 := random2D(x0, y1, n.seed)
	n3 := random2D(x1, y1, n.seed)
	ix1 := lerp(n2, n3, sx)

	return lerp(ix0, ix1, sy)
}

var grad2 = [8][2]float64{
	{1, 1}, {-1, 1}, {1, -1}, {-1, -1},
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
}

// simplex is 2D simplex noise over a seeded permutation table.
type simplex struct {
	perm [512]int
}

func newSimplex(seed int64) *simplex {
	sx := &simplex{}
	var p [256]int
	for i := range p {
		p[i] = i
	}
	s := seed
	for i := 255; i > 0; i-- {
		s = s*6364136223846793005 + 1442695040888963407
		j := int((s>>33)&0x7FFFFFFF) % (i + 1)
		p[i], p[j] = p[j], p[i]
	}
	for i := 0; i < 512; i++ {
		sx.perm[i] = p[i&255]
	}
	return sx
}

func (n *simplex) sample(x, y float64) float64 {
	const (
		f2 = 0.36602540378443864676 // (sqrt(3) - 1) / 2
		g2 = 0.21132486540518711775 // (3 - sqrt(3)) / 6
	)

	s := (x + y) * f2
	i := int(math.Floor(x + s))
	j := int(math.Floor(y + s))

	t := float64(i+j) * g2
	x0 := x - (float64(i) - t)
	y0 := y - (float64(j) - t)

	var i1, j1 int
	if x0 > y0 {
		i1 = 1
	} else {
		j1 = 1
	}

	x1 := x0 - float64(i1) + g2
	y1 := y0 - float64(j1) + g2
	x2 := x0 - 1 + 2*g2
	y2 := y0 - 1 + 2*g2

	ii := i & 255
	jj := j & 255
	gi0 := n.perm[ii+n.perm[jj]] & 7
	gi1 := n.perm[ii+i1+n.perm[jj+j1]] & 7
	gi2 := n.perm[ii+1+n.perm[jj+1]] & 7

	var n0, n1, n2 float64
	if t0 := 0.5 - x0*x0 - y0*y0; t0 >= 0 {
		t0 *= t0
		n0 = t0 * t0 * (grad2[gi0][0]*x0 + grad2[gi0][1]*y0)
	}
	if t1 := 0.5 - x1*x1 - y1*y1; t1 >= 0 {
		t1 *= t1
		n1 = t1 * t1 * (grad2[gi1][0]*x1 + grad2[gi1][1]*y1)
	}
	if t2 := 0.5 - x2*x2 - y2*y2; t2 >= 0 {
		t2 *= t2
		n2 = t2 * t2 * (grad2[gi2][0]*x2 + grad2[gi2][1]*y2)
	}

	return clampUnit(70 * (n0 + n1 + n2))
}

type simplexOctave struct {
	simplex   *simplex
	frequency float64
}

func (n simplexOctave) sample(x, y float64) float64 {
	return n.simplex.sample(x*n.frequency, y*n.frequency)
}

// cellNoise is Worley F1: distance to the nearest jittered feature point,
// remapped so that 0 maps to -1 and distances of one cell or more map to 1.
type cellNoise struct {
	seed      int64
	frequency float64
}

func (n cellNoise) sample(x, y float64) float64 {
	x *= n.frequency
	y *= n.frequency
	cx := int(math.Floor(x))
	cy := int(math.Floor(y))

	nearest := math.MaxFloat64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			gx := cx + dx
			gy := cy + dy
			h := hash3(gx, gy, int(n.seed))
			px := float64(gx) + float64(h&0xFFFF)/0x10000
			py := float64(gy) + float64(h>>16)/0x10000
			d := math.Hypot(px-x, py-y)
			if d < nearest {
				nearest = d
			}
		}
	}
	if nearest > 1 {
		nearest = 1
	}
	return nearest*2 - 1
}

// whiteNoise hashes the lattice cell containing the sample.
type whiteNoise struct {
	seed      int64
	frequency float64
}

func (n whiteNoise) sample(x, y float64) float64 {
	return random2D(int(math.Floor(x*n.frequency)), int(math.Floor(y*n.frequency)), n.seed)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func random2D(x, y int, seed int64) float64 {
	return float64(hash3(x, y, int(seed))&0xFFFF)/0x8000 - 1.0
}

func hash3(x, y, z int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
