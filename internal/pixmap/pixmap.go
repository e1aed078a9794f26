// Package pixmap wraps the pixel buffer operations the print pipeline is
// built from. Color buffers are *image.NRGBA (4 channel, non-premultiplied),
// monochrome buffers are *image.Gray. Every operation returns a new buffer.
package pixmap

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

var ErrInvalidCrop = errors.New("invalid crop rectangle")

// Clone returns a zero-origin NRGBA copy of img.
func Clone(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// Resize scales img to w x h with bilinear resampling.
func Resize(img image.Image, w, h int) *image.NRGBA {
	return imaging.Resize(img, w, h, imaging.Linear)
}

// ResizeToWidth scales img to the given width preserving aspect ratio.
// The resulting height is rounded and never below 1.
func ResizeToWidth(img image.Image, width int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == width {
		return imaging.Clone(img)
	}
	h := int(math.Round(float64(b.Dy()) * float64(width) / float64(b.Dx())))
	if h < 1 {
		h = 1
	}
	return imaging.Resize(img, width, h, imaging.Linear)
}

// Crop cuts rect out of img. The rectangle must be non-empty and lie fully
// inside the image bounds.
func Crop(img image.Image, rect image.Rectangle) (*image.NRGBA, error) {
	r := rect.Canon()
	if r.Empty() {
		return nil, fmt.Errorf("%w: empty rectangle %v", ErrInvalidCrop, rect)
	}
	if !r.In(img.Bounds()) {
		return nil, fmt.Errorf("%w: %v outside bounds %v", ErrInvalidCrop, rect, img.Bounds())
	}
	return imaging.Crop(img, r), nil
}

// RotateQuarters rotates img by k quarter turns clockwise. Negative k turns
// counter-clockwise.
func RotateQuarters(img image.Image, k int) *image.NRGBA {
	switch ((k % 4) + 4) % 4 {
	case 1:
		return imaging.Rotate270(img)
	case 2:
		return imaging.Rotate180(img)
	case 3:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}

// Flip mirrors img horizontally and/or vertically.
func Flip(img image.Image, horizontal, vertical bool) *image.NRGBA {
	out := imaging.Clone(img)
	if horizontal {
		out = imaging.FlipH(out)
	}
	if vertical {
		out = imaging.FlipV(out)
	}
	return out
}

// Grayscale converts img to its luminance (0.299 R + 0.587 G + 0.114 B),
// still stored in all three color channels.
func Grayscale(img image.Image) *image.NRGBA {
	return imaging.Grayscale(img)
}

// AdjustGamma applies gamma correction. gamma 1.0 is a plain copy.
func AdjustGamma(img image.Image, gamma float64) *image.NRGBA {
	return imaging.AdjustGamma(img, gamma)
}

// Invert negates every color channel.
func Invert(img image.Image) *image.NRGBA {
	return imaging.Invert(img)
}

// NewCanvas returns a white w x h color buffer.
func NewCanvas(w, h int) *image.NRGBA {
	return imaging.New(w, h, color.White)
}

// Paste draws src onto dst at (x, y) and returns the combined buffer.
func Paste(dst *image.NRGBA, src image.Image, x, y int) *image.NRGBA {
	return imaging.Paste(dst, src, image.Pt(x, y))
}

// ToGray collapses img to a single-channel zero-origin luminance buffer.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		b := g.Bounds()
		out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			si := g.PixOffset(b.Min.X, b.Min.Y+y)
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], g.Pix[si:si+b.Dx()])
		}
		return out
	}
	src := imaging.Clone(img)
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		si := y * src.Stride
		di := y * out.Stride
		for x := 0; x < b.Dx(); x++ {
			r := float64(src.Pix[si])
			g := float64(src.Pix[si+1])
			bl := float64(src.Pix[si+2])
			out.Pix[di] = clampU8(0.299*r + 0.587*g + 0.114*bl)
			si += 4
			di++
		}
	}
	return out
}

// FromGray expands a single-channel buffer back to NRGBA with full alpha.
func FromGray(g *image.Gray) *image.NRGBA {
	b := g.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		si := y * g.Stride
		di := y * out.Stride
		for x := 0; x < b.Dx(); x++ {
			v := g.Pix[si+x]
			out.Pix[di] = v
			out.Pix[di+1] = v
			out.Pix[di+2] = v
			out.Pix[di+3] = 0xFF
			di += 4
		}
	}
	return out
}

func clampU8(v float64) uint8 {
	n := int64(v + 0.5)
	if n > 255 {
		return 255
	}
	if n > 0 {
		return uint8(n)
	}
	return 0
}
