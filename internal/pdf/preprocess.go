package pdf

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	upscale        = 1.5
	binarizeCutoff = 180
)

// sharpenKernel is the classic 3x3 sharpen mask; its weights sum to 16
var sharpenKernel = [9]float64{
	-2, -2, -2,
	-2, 32, -2,
	-2, -2, -2,
}

// Preprocess prepares a scanned page for OCR: grayscale, contrast stretch,
// 1.5x upscale, sharpen and binarize at luminance 180
func Preprocess(img image.Image) *image.NRGBA {
	g := imaging.Grayscale(img)
	g = autocontrast(g)

	b := g.Bounds()
	w := int(float64(b.Dx()) * upscale)
	h := int(float64(b.Dy()) * upscale)
	if w > 0 && h > 0 {
		g = imaging.Resize(g, w, h, imaging.CatmullRom)
	}

	g = imaging.Convolve3x3(g, sharpenKernel, &imaging.ConvolveOptions{Normalize: true})

	return imaging.AdjustFunc(g, func(c color.NRGBA) color.NRGBA {
		v := uint8(0)
		if c.R > binarizeCutoff {
			v = 255
		}
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

// autocontrast stretches the gray levels of g to the full 0-255 range
func autocontrast(g *image.NRGBA) *image.NRGBA {
	lo, hi := uint8(255), uint8(0)
	for i := 0; i < len(g.Pix); i += 4 {
		v := g.Pix[i]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return g
	}

	span := float64(hi - lo)
	return imaging.AdjustFunc(g, func(c color.NRGBA) color.NRGBA {
		v := uint8(float64(c.R-lo) * 255 / span)
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

// rotations returns the page as scanned and turned 90 and 270 degrees
// counter-clockwise, keyed by angle
func rotations(img image.Image) map[int]image.Image {
	return map[int]image.Image{
		0:   img,
		90:  imaging.Rotate90(img),
		270: imaging.Rotate270(img),
	}
}
