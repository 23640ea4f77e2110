package compressor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"docpress/contracts"
	"docpress/strategy"
)

const maxPaletteSamples = 2048

type paletteJob struct {
	img  *image.NRGBA
	size int
}

var paletteChain = strategy.New(
	strategy.Step[paletteJob, color.Palette]{Name: "exact", Run: exactPalette},
	strategy.Step[paletteJob, color.Palette]{Name: "kmeans", Run: kmeansPalette},
	strategy.Step[paletteJob, color.Palette]{Name: "dominantcolor", Run: dominantPalette},
)

var errTooManyColors = errors.New("more distinct colors than palette entries")

// exactPalette succeeds when the image already fits in the palette.
func exactPalette(job paletteJob) (color.Palette, error) {
	seen := make(map[[3]uint8]struct{}, job.size)
	pal := make(color.Palette, 0, job.size)
	pix := job.img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		k := [3]uint8{pix[i], pix[i+1], pix[i+2]}
		if _, ok := seen[k]; ok {
			continue
		}
		if len(pal) == job.size {
			return nil, errTooManyColors
		}
		seen[k] = struct{}{}
		pal = append(pal, color.NRGBA{k[0], k[1], k[2], 0xff})
	}
	return pal, nil
}

// kmeansPalette clusters a pixel sample in Lab space.
func kmeansPalette(job paletteJob) (color.Palette, error) {
	b := job.img.Bounds()
	w, h := b.Dx(), b.Dy()
	step := 1
	if w*h > maxPaletteSamples {
		step = int(math.Sqrt(float64(w*h)/float64(maxPaletteSamples))) + 1
	}
	dataset := make(clusters.Observations, 0, min(w*h, maxPaletteSamples))
	for y := 0; y < h; y += step {
		for x := 0; x < w; x += step {
			i := job.img.PixOffset(x, y)
			p := job.img.Pix[i : i+3]
			l, a, bb := colorful.Color{
				R: float64(p[0]) / 255,
				G: float64(p[1]) / 255,
				B: float64(p[2]) / 255,
			}.Lab()
			dataset = append(dataset, clusters.Coordinates{l, a, bb})
		}
	}
	k := min(job.size, len(dataset))
	if k == 0 {
		return nil, errors.New("no pixels to sample")
	}
	cc, err := kmeans.New().Partition(dataset, k)
	if err != nil {
		return nil, fmt.Errorf("kmeans: %w", err)
	}
	pal := make(color.Palette, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 3 {
			continue
		}
		r, g, bl := colorful.Lab(c.Center[0], c.Center[1], c.Center[2]).Clamped().RGB255()
		pal = append(pal, color.NRGBA{r, g, bl, 0xff})
	}
	if len(pal) == 0 {
		return nil, errors.New("kmeans returned no clusters")
	}
	return pal, nil
}

func dominantPalette(job paletteJob) (color.Palette, error) {
	found := dominantcolor.FindWeight(job.img, job.size)
	if len(found) == 0 {
		return nil, errors.New("dominantcolor found no colors")
	}
	pal := make(color.Palette, 0, len(found))
	for _, c := range found {
		pal = append(pal, color.NRGBA{c.RGBA.R, c.RGBA.G, c.RGBA.B, 0xff})
	}
	return pal, nil
}

// quantize maps the RGB channels onto a palette with optional
// Floyd-Steinberg dithering. RGB buffers become paletted; RGBA buffers
// keep their alpha and stay RGBA.
func quantize(d *DecodedImage, p EncodeParameters) (string, error) {
	if d.Mode != contracts.ModeRGB && d.Mode != contracts.ModeRGBA {
		return "", nil
	}
	src := d.nrgba()
	rgb := src
	if d.Mode == contracts.ModeRGBA {
		rgb = image.NewNRGBA(src.Bounds())
		copy(rgb.Pix, src.Pix)
		for i := 3; i < len(rgb.Pix); i += 4 {
			rgb.Pix[i] = 0xff
		}
	}

	res, err := paletteChain.Run(paletteJob{img: rgb, size: p.PaletteSize})
	if err != nil {
		return "", err
	}
	pm := image.NewPaletted(rgb.Bounds(), res.Value)
	if p.Dither && res.Strategy != "exact" {
		draw.FloydSteinberg.Draw(pm, pm.Bounds(), rgb, image.Point{})
	} else {
		draw.Draw(pm, pm.Bounds(), rgb, image.Point{}, draw.Src)
	}

	if d.Mode == contracts.ModeRGB {
		d.Image = pm
		d.Mode = contracts.ModePalette
		return res.Strategy, nil
	}

	out := image.NewNRGBA(src.Bounds())
	for i, idx := range pm.Pix {
		c := res.Value[idx].(color.NRGBA)
		out.Pix[4*i], out.Pix[4*i+1], out.Pix[4*i+2] = c.R, c.G, c.B
		out.Pix[4*i+3] = src.Pix[4*i+3]
	}
	d.Image = out
	return res.Strategy, nil
}
