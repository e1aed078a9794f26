package pipeline

import (
	"fmt"
	"image"
	"math"

	"github.com/nantokaworks/catstrip/internal/pixmap"
)

// TransformOptions are the geometric edits applied before processing.
type TransformOptions struct {
	RotateQuarters int              // clockwise quarter turns
	Crop           *image.Rectangle // in post-rotation coordinates
	FlipH          bool
	FlipV          bool
	Scale          float64 // 0 or 1 = unchanged
	PadToWidth     int     // center on white up to this width, 0 = off
}

// Transform applies rotate, crop, flip, scale and pad in that order.
func Transform(img image.Image, opts TransformOptions) (*image.NRGBA, error) {
	if opts.Scale < 0 {
		return nil, fmt.Errorf("%w: scale %v", ErrInvalidOption, opts.Scale)
	}

	cur := pixmap.Clone(img)
	if opts.RotateQuarters != 0 {
		cur = pixmap.RotateQuarters(cur, opts.RotateQuarters)
	}
	if opts.Crop != nil {
		cropped, err := pixmap.Crop(cur, *opts.Crop)
		if err != nil {
			return nil, err
		}
		cur = cropped
	}
	if opts.FlipH || opts.FlipV {
		cur = pixmap.Flip(cur, opts.FlipH, opts.FlipV)
	}
	if opts.Scale > 0 && opts.Scale != 1 {
		b := cur.Bounds()
		w := int(math.Round(float64(b.Dx()) * opts.Scale))
		h := int(math.Round(float64(b.Dy()) * opts.Scale))
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		cur = pixmap.Resize(cur, w, h)
	}
	if opts.PadToWidth > 0 && cur.Bounds().Dx() < opts.PadToWidth {
		b := cur.Bounds()
		canvas := pixmap.NewCanvas(opts.PadToWidth, b.Dy())
		cur = pixmap.Paste(canvas, cur, (opts.PadToWidth-b.Dx())/2, 0)
	}
	return cur, nil
}
