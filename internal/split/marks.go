package split

import (
	"fmt"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	tickSpacing = 50 // rows between alignment ticks
	tickSize    = 5  // tick depth in columns
)

// drawMarks puts assembly aids on a finished strip: triangular ticks on the
// edges shared with horizontal neighbors and a "col/cols" label in the top
// and bottom bands. Single-column layouts get no marks.
func drawMarks(strip *image.Gray, col, cols, padding int) {
	if cols < 2 {
		return
	}
	w := strip.Bounds().Dx()
	h := strip.Bounds().Dy()
	contentH := h - 2*padding

	// Ticks land at the same content offsets on both sides of a cut.
	for y := tickSpacing; y < contentH; y += tickSpacing {
		yy := padding + y
		if col > 0 {
			drawTick(strip, 0, yy, +1)
		}
		if col < cols-1 {
			drawTick(strip, w-1, yy, -1)
		}
	}

	label := fmt.Sprintf("%d/%d", col+1, cols)
	drawLabel(strip, label, 11)
	drawLabel(strip, label, h-3)
}

// drawTick draws a solid triangle with its base on column x, pointing into
// the strip (dir +1 right, -1 left).
func drawTick(img *image.Gray, x, y, dir int) {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	for i := 0; i < tickSize; i++ {
		span := tickSize - 1 - i
		px := x + dir*i
		if px < 0 || px >= w {
			continue
		}
		for dy := -span; dy <= span; dy++ {
			py := y + dy
			if py >= 0 && py < h {
				img.Pix[py*img.Stride+px] = 0x00
			}
		}
	}
}

// drawLabel centers text horizontally with its baseline on the given row.
func drawLabel(img *image.Gray, text string, baseline int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
	}
	width := d.MeasureString(text)
	d.Dot = fixed.Point26_6{
		X: (fixed.I(img.Bounds().Dx()) - width) / 2,
		Y: fixed.I(baseline),
	}
	d.DrawString(text)
}

// drawTextAt draws text with its baseline at (x, baseline).
func drawTextAt(img *image.Gray, text string, x, baseline int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(text)
}
