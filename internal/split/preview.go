package split

import (
	"fmt"
	"image"
	"image/draw"
)

// Preview reassembles strips into one canvas. With gap 0 the content is
// placed back at its grid position, padding trimmed and overlap columns
// overlaid, reproducing the source layout byte for byte. A positive gap
// spreads the full strips out for display, optionally numbered in print
// order.
func Preview(res *Result, gap int, numbered bool) *image.Gray {
	if gap <= 0 {
		return assemble(res)
	}

	w := res.Cols*res.StripWidth + (res.Cols-1)*gap
	h := (res.Rows - 1) * gap
	for _, rh := range res.RowHeights {
		h += rh + 2*res.Padding
	}
	canvas := whiteGray(w, h)

	y := 0
	for r := 0; r < res.Rows; r++ {
		stripH := res.RowHeights[r] + 2*res.Padding
		for c := 0; c < res.Cols; c++ {
			i := r*res.Cols + c
			x := c * (res.StripWidth + gap)
			rect := image.Rect(x, y, x+res.StripWidth, y+stripH)
			draw.Draw(canvas, rect, res.Strips[i], res.Strips[i].Bounds().Min, draw.Src)
			if numbered {
				drawTextAt(canvas, fmt.Sprintf("%d", i+1), x+3, y+11)
			}
		}
		y += stripH + gap
	}
	return canvas
}

// assemble is the zero-gap reconstruction.
func assemble(res *Result) *image.Gray {
	canvas := whiteGray(res.PixelWidth, res.PixelHeight)
	advance := res.StripWidth - res.Overlap

	rowY := 0
	for r := 0; r < res.Rows; r++ {
		contentH := res.RowHeights[r]
		for c := 0; c < res.Cols; c++ {
			i := r*res.Cols + c
			strip := res.Strips[i]
			content := strip.SubImage(image.Rect(0, res.Padding, res.StripWidth, res.Padding+contentH))
			rect := image.Rect(c*advance, rowY, c*advance+res.StripWidth, rowY+contentH)
			draw.Draw(canvas, rect, content, content.Bounds().Min, draw.Src)
		}
		rowY += contentH
	}
	return canvas
}

func whiteGray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return img
}
