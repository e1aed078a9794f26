// Package dither converts grayscale buffers to strict black/white for the
// thermal head. Error diffusion runs over a float32 accumulator scanned
// left-to-right, top-to-bottom; error never wraps around row edges.
package dither

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// Mode selects the halftoning algorithm.
type Mode int

const (
	None Mode = iota
	Threshold
	FloydSteinberg
	Atkinson
	Ordered
)

var ErrUnknownMode = errors.New("unknown dither mode")

func (m Mode) String() string {
	switch m {
	case None:
		return "none"
	case Threshold:
		return "threshold"
	case FloydSteinberg:
		return "floydsteinberg"
	case Atkinson:
		return "atkinson"
	case Ordered:
		return "ordered"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a user-facing name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return None, nil
	case "threshold":
		return Threshold, nil
	case "floydsteinberg", "floyd-steinberg", "fs":
		return FloydSteinberg, nil
	case "atkinson":
		return Atkinson, nil
	case "ordered", "bayer":
		return Ordered, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// bayer4 is the classic 4x4 ordered dither matrix. Cell thresholds are
// matrix value * 255/16.
var bayer4 = [4][4]float32{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

// Apply converts src to a new buffer containing only 0x00 and 0xFF pixels.
// None and Threshold are the same per-pixel compare (>= threshold is white).
// Ordered uses the Bayer matrix thresholds and ignores the threshold
// parameter.
func Apply(src *image.Gray, mode Mode, threshold uint8) (*image.Gray, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	switch mode {
	case None, Threshold:
		for y := 0; y < h; y++ {
			si := y * src.Stride
			di := y * dst.Stride
			for x := 0; x < w; x++ {
				if src.Pix[si+x] >= threshold {
					dst.Pix[di+x] = 0xFF
				}
			}
		}

	case Ordered:
		for y := 0; y < h; y++ {
			si := y * src.Stride
			di := y * dst.Stride
			for x := 0; x < w; x++ {
				if float32(src.Pix[si+x]) > bayer4[y%4][x%4]*255.0/16.0 {
					dst.Pix[di+x] = 0xFF
				}
			}
		}

	case FloydSteinberg:
		buf := accumulator(src, w, h)
		t := float32(threshold)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				old := buf[i]
				var newV float32
				if old >= t {
					newV = 255
					dst.Pix[y*dst.Stride+x] = 0xFF
				}
				err := old - newV
				if x+1 < w {
					buf[i+1] += err * 7 / 16
				}
				if y+1 < h {
					if x-1 >= 0 {
						buf[i+w-1] += err * 3 / 16
					}
					buf[i+w] += err * 5 / 16
					if x+1 < w {
						buf[i+w+1] += err * 1 / 16
					}
				}
			}
		}

	case Atkinson:
		buf := accumulator(src, w, h)
		t := float32(threshold)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				old := buf[i]
				var newV float32
				if old >= t {
					newV = 255
					dst.Pix[y*dst.Stride+x] = 0xFF
				}
				err := (old - newV) / 8
				if x+1 < w {
					buf[i+1] += err
				}
				if x+2 < w {
					buf[i+2] += err
				}
				if y+1 < h {
					if x-1 >= 0 {
						buf[i+w-1] += err
					}
					buf[i+w] += err
					if x+1 < w {
						buf[i+w+1] += err
					}
				}
				if y+2 < h {
					buf[i+2*w] += err
				}
			}
		}

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}

	return dst, nil
}

func accumulator(src *image.Gray, w, h int) []float32 {
	buf := make([]float32, w*h)
	for y := 0; y < h; y++ {
		si := y * src.Stride
		for x := 0; x < w; x++ {
			buf[y*w+x] = float32(src.Pix[si+x])
		}
	}
	return buf
}
