package pixmap

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// AdjustBrightnessContrast applies the classic brightness/contrast mapping.
// Both parameters range -100..100; 0/0 is a plain copy. Brightness shifts
// values by 2.55 per unit, contrast scales around the 128 midpoint with
// factor 259*(c+255) / (255*(259-c)).
func AdjustBrightnessContrast(img image.Image, brightness, contrast float64) *image.NRGBA {
	if brightness == 0 && contrast == 0 {
		return imaging.Clone(img)
	}

	factor := 259.0 * (contrast + 255.0) / (255.0 * (259.0 - contrast))
	var lut [256]uint8
	for i := range lut {
		lut[i] = clampU8(factor*(float64(i)+2.55*brightness-128.0) + 128.0)
	}

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	})
}

// Sharpen blends a 3x3 Laplacian sharpen (center 5, cross -1) into img.
// amount ranges 0..100 where 0 is a plain copy and 100 is the full kernel.
// Border pixels are left untouched so the kernel never reads out of bounds.
func Sharpen(img image.Image, amount float64) *image.NRGBA {
	src := imaging.Clone(img)
	if amount <= 0 {
		return src
	}
	blend := amount / 100.0
	if blend > 1 {
		blend = 1
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := imaging.Clone(src)
	if w < 3 || h < 3 {
		return dst
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*src.Stride + x*4
			for ch := 0; ch < 3; ch++ {
				center := float64(src.Pix[i+ch])
				sharp := 5*center -
					float64(src.Pix[i+ch-4]) -
					float64(src.Pix[i+ch+4]) -
					float64(src.Pix[i+ch-src.Stride]) -
					float64(src.Pix[i+ch+src.Stride])
				// The kernel result saturates to 8 bit before blending.
				if sharp < 0 {
					sharp = 0
				} else if sharp > 255 {
					sharp = 255
				}
				dst.Pix[i+ch] = clampU8((1-blend)*center + blend*sharp)
			}
		}
	}
	return dst
}
