package protocol

import (
	"errors"
	"fmt"
)

var ErrRowWidth = errors.New("row width must match the print head")

// PackRow packs a row of 8-bit pixels into 1bpp, most significant bit first.
// A set bit is a dark pixel (value below 0x80). Widths that are not a
// multiple of 8 leave the unused low bits of the last byte zero.
func PackRow(pixels []uint8) []byte {
	out := make([]byte, (len(pixels)+7)/8)
	for x, v := range pixels {
		if v < 0x80 {
			out[x/8] |= 1 << (7 - x%8)
		}
	}
	return out
}

// EncodeRow packs a full-width pixel row and wraps it into a bitmap frame.
func EncodeRow(pixels []uint8) ([]byte, error) {
	if len(pixels) != Width {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrRowWidth, len(pixels), Width)
	}
	return Encode(CmdDrawBitmap, PackRow(pixels)), nil
}

// BlankRow returns the bitmap frame for an all-white row, used as the gap
// between strips.
func BlankRow() []byte {
	return Encode(CmdDrawBitmap, make([]byte, RowBytes))
}
