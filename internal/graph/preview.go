package graph

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
)

const previewAmbientLight = 0.35

// splat channel tints used by SplatImage: grass, rock, sand, snow.
var splatPalette = [4]color.NRGBA{
	{R: 86, G: 140, B: 62, A: 255},
	{R: 120, G: 112, B: 104, A: 255},
	{R: 214, G: 196, B: 142, A: 255},
	{R: 236, G: 240, B: 246, A: 255},
}

// HeightImage renders the heightmap as a hill-shaded grayscale image.
func (r *Result) HeightImage() *image.NRGBA {
	res := r.Resolution
	img := image.NewNRGBA(image.Rect(0, 0, res, res))
	for z := 0; z < res; z++ {
		for x := 0; x < res; x++ {
			h := float64(r.HeightAt(x, z))
			base := uint8(math.Round((h + 1) * 0.5 * 255))
			shade := hillShade(r, x, z)
			img.SetNRGBA(x, z, applyLighting(color.NRGBA{R: base, G: base, B: base, A: 255}, shade))
		}
	}
	return img
}

// SplatImage renders the splat weights blended over a fixed palette.
func (r *Result) SplatImage() *image.NRGBA {
	res := r.Resolution
	img := image.NewNRGBA(image.Rect(0, 0, res, res))
	for z := 0; z < res; z++ {
		for x := 0; x < res; x++ {
			w := r.SplatAt(x, z)
			var sum, cr, cg, cb float64
			for c := 0; c < 4; c++ {
				f := float64(w[c]) / 255
				sum += f
				cr += f * float64(splatPalette[c].R)
				cg += f * float64(splatPalette[c].G)
				cb += f * float64(splatPalette[c].B)
			}
			if sum == 0 {
				img.SetNRGBA(x, z, color.NRGBA{A: 255})
				continue
			}
			img.SetNRGBA(x, z, color.NRGBA{
				R: uint8(math.Round(cr / sum)),
				G: uint8(math.Round(cg / sum)),
				B: uint8(math.Round(cb / sum)),
				A: 255,
			})
		}
	}
	return img
}

// SavePreview writes <name>_height.png and <name>_splat.png into dir.
func (r *Result) SavePreview(dir, name string) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	if err := ensurePreviewDir(dir); err != nil {
		return err
	}
	if err := writePNG(filepath.Join(dir, name+"_height.png"), r.HeightImage()); err != nil {
		return err
	}
	return writePNG(filepath.Join(dir, name+"_splat.png"), r.SplatImage())
}

func writePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

// hillShade lights the heightmap from the north-west.
func hillShade(r *Result, x, z int) float64 {
	dx := float64(r.HeightAt(x+1, z) - r.HeightAt(x-1, z))
	dz := float64(r.HeightAt(x, z+1) - r.HeightAt(x, z-1))
	scale := float64(r.Resolution) * 0.5
	nx, ny, nz := -dx*scale, 2.0, -dz*scale
	length := math.Sqrt(nx*nx + ny*ny + nz*nz)
	const lx, ly, lz = -0.5773, 0.5773, -0.5773
	lambert := (nx*lx + ny*ly + nz*lz) / length
	return previewAmbientLight + (1-previewAmbientLight)*clamp(lambert, 0, 1)
}

func applyLighting(base color.NRGBA, factor float64) color.NRGBA {
	factor = clamp(factor, 0, 1)
	r := uint8(math.Round(float64(base.R) * factor))
	g := uint8(math.Round(float64(base.G) * factor))
	b := uint8(math.Round(float64(base.B) * factor))
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func ensurePreviewDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output directory is empty")
	}
	return os.MkdirAll(dir, 0o755)
}
