package split

import (
	"math"

	"github.com/nantokaworks/catstrip/internal/protocol"
)

// StripCount returns how many printer-width strips a source of the given
// pixel width needs once scaled. Products that land within rounding noise of
// a whole strip count as exactly that many strips.
func StripCount(width int, scale float64) int {
	if width < 1 || scale <= 0 {
		return 0
	}
	n := float64(width) * scale / float64(protocol.Width)
	if math.Abs(n-math.Round(n)) < 1e-9 {
		n = math.Round(n)
	}
	return int(math.Ceil(n))
}

// ScaleForStrips returns the scale factor at which the source fills exactly
// count strips, the inverse of StripCount.
func ScaleForStrips(width, count int) float64 {
	if width < 1 || count < 1 {
		return 0
	}
	return float64(count*protocol.Width) / float64(width)
}
