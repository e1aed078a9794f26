// Package pipeline turns arbitrary images into print-ready monochrome
// buffers. Process applies its steps in a fixed order so the same input and
// options always produce the same bytes on paper.
package pipeline

import (
	"image"

	"github.com/nantokaworks/catstrip/internal/dither"
	"github.com/nantokaworks/catstrip/internal/pixmap"
)

// Process runs the full pipeline: resize to target width, brightness and
// contrast, sharpen, grayscale, gamma, invert, dither. Steps with neutral
// settings are skipped. The result contains only 0x00 and 0xFF pixels.
func Process(img image.Image, opts Options) (*image.Gray, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cur := pixmap.Clone(img)
	if cur.Bounds().Dx() != opts.TargetWidth {
		cur = pixmap.ResizeToWidth(cur, opts.TargetWidth)
	}
	if opts.Brightness != 0 || opts.Contrast != 0 {
		cur = pixmap.AdjustBrightnessContrast(cur, opts.Brightness, opts.Contrast)
	}
	if opts.Sharpen > 0 {
		cur = pixmap.Sharpen(cur, opts.Sharpen)
	}
	cur = pixmap.Grayscale(cur)
	if opts.Gamma != 1.0 {
		cur = pixmap.AdjustGamma(cur, opts.Gamma)
	}
	if opts.Invert {
		cur = pixmap.Invert(cur)
	}

	return dither.Apply(pixmap.ToGray(cur), opts.Dither, opts.Threshold)
}
