// Package split carves an image into printer-width strips that reassemble
// into the full picture. Each strip is processed through the same pipeline a
// single-strip print uses, so a picture looks identical whether it fit on one
// strip or ten.
package split

import (
	"errors"
	"fmt"
	"image"

	"github.com/nantokaworks/catstrip/internal/pipeline"
	"github.com/nantokaworks/catstrip/internal/pixmap"
	"github.com/nantokaworks/catstrip/internal/protocol"
)

var ErrInvalidSplit = errors.New("invalid split options")

// Options control the strip layout.
type Options struct {
	StripWidth     int  // canvas width of every strip
	Overlap        int  // columns shared between adjacent strips
	MaxHeight      int  // rows per vertical band, 0 = one band
	Padding        int  // white rows added above and below each strip
	AlignmentMarks bool // draw ticks and position labels
	Rotate         bool // rotate the source 90° clockwise before layout
}

// DefaultOptions returns a layout for the full printer width with no
// overlap, no padding and no marks.
func DefaultOptions() Options {
	return Options{StripWidth: protocol.Width}
}

func (o Options) validate() error {
	if o.StripWidth < 1 {
		return fmt.Errorf("%w: strip width %d", ErrInvalidSplit, o.StripWidth)
	}
	if o.Overlap < 0 || o.Overlap >= o.StripWidth {
		return fmt.Errorf("%w: overlap %d out of [0, %d)", ErrInvalidSplit, o.Overlap, o.StripWidth)
	}
	if o.MaxHeight < 0 {
		return fmt.Errorf("%w: max height %d", ErrInvalidSplit, o.MaxHeight)
	}
	if o.Padding < 0 {
		return fmt.Errorf("%w: padding %d", ErrInvalidSplit, o.Padding)
	}
	return nil
}

// Placement is the grid position of a strip, row-major.
type Placement struct {
	Row int
	Col int
}

// Result holds the processed strips and everything needed to reassemble or
// summarize them.
type Result struct {
	Strips     []*image.Gray // print-ready, includes padding and marks
	Order      []Placement   // same order as Strips
	Cols       int
	Rows       int
	RowHeights []int // content rows per band, padding not included

	StripWidth int
	Overlap    int
	Padding    int

	// Assembled size: width over all columns at their overlap positions,
	// height of the content with padding bands trimmed away.
	PixelWidth  int
	PixelHeight int
}

// WidthCM is the physical assembled width.
func (r *Result) WidthCM() float64 {
	return float64(r.PixelWidth) / protocol.DPI * 2.54
}

// HeightCM is the physical assembled height.
func (r *Result) HeightCM() float64 {
	return float64(r.PixelHeight) / protocol.DPI * 2.54
}

// Split lays src out on a cols x rows grid and builds one processed strip
// per cell. The processing target width is forced to the strip width.
func Split(src image.Image, opts Options, proc pipeline.Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	img := pixmap.Clone(src)
	if opts.Rotate {
		img = pixmap.RotateQuarters(img, 1)
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("%w: empty source image", ErrInvalidSplit)
	}

	advance := opts.StripWidth - opts.Overlap
	cols := ceilDiv(w, advance)
	rows := 1
	bandH := h
	if opts.MaxHeight > 0 {
		rows = ceilDiv(h, opts.MaxHeight)
		bandH = opts.MaxHeight
	}

	// Every strip dithers at the same width a single-strip print would use.
	proc.TargetWidth = opts.StripWidth

	res := &Result{
		Cols:       cols,
		Rows:       rows,
		StripWidth: opts.StripWidth,
		Overlap:    opts.Overlap,
		Padding:    opts.Padding,
		PixelWidth: (cols-1)*advance + opts.StripWidth,
	}

	for r := 0; r < rows; r++ {
		y0 := r * bandH
		y1 := min(y0+bandH, h)
		res.RowHeights = append(res.RowHeights, y1-y0)
		res.PixelHeight += y1 - y0

		for c := 0; c < cols; c++ {
			x0 := c * advance
			x1 := min(x0+opts.StripWidth, w)

			crop, err := pixmap.Crop(img, image.Rect(x0, y0, x1, y1))
			if err != nil {
				return nil, err
			}
			canvas := pixmap.NewCanvas(opts.StripWidth, y1-y0)
			canvas = pixmap.Paste(canvas, crop, 0, 0)

			mono, err := pipeline.Process(canvas, proc)
			if err != nil {
				return nil, err
			}
			mono = addPadding(mono, opts.Padding)
			if opts.AlignmentMarks {
				drawMarks(mono, c, cols, opts.Padding)
			}

			res.Strips = append(res.Strips, mono)
			res.Order = append(res.Order, Placement{Row: r, Col: c})
		}
	}
	return res, nil
}

// addPadding puts white bands of the given height above and below the strip.
func addPadding(strip *image.Gray, padding int) *image.Gray {
	if padding <= 0 {
		return strip
	}
	w := strip.Bounds().Dx()
	h := strip.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h+2*padding))
	for i := range out.Pix {
		out.Pix[i] = 0xFF
	}
	for y := 0; y < h; y++ {
		copy(out.Pix[(y+padding)*out.Stride:(y+padding)*out.Stride+w], strip.Pix[y*strip.Stride:y*strip.Stride+w])
	}
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
