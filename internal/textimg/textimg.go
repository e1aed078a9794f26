// Package textimg rasterizes plain text onto a white canvas of the print
// width so it can go through the normal image pipeline.
package textimg

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/nantokaworks/catstrip/internal/protocol"
)

var ErrNoText = errors.New("textimg: no text to render")

type Options struct {
	Width       int     // canvas width in pixels
	PointSize   float64 // font size in points
	DPI         float64 // rasterization density
	Bold        bool
	LineSpacing float64 // line height multiplier
	Margin      int     // white border, pixels
}

func DefaultOptions() Options {
	return Options{
		Width:       protocol.Width,
		PointSize:   24,
		DPI:         protocol.DPI,
		LineSpacing: 1.15,
		Margin:      8,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Width <= 0 {
		o.Width = def.Width
	}
	if o.PointSize <= 0 {
		o.PointSize = def.PointSize
	}
	if o.DPI <= 0 {
		o.DPI = def.DPI
	}
	if o.LineSpacing <= 0 {
		o.LineSpacing = def.LineSpacing
	}
	if o.Margin < 0 {
		o.Margin = 0
	}
	return o
}

var (
	parseOnce   sync.Once
	regularFont *truetype.Font
	boldFont    *truetype.Font
	parseErr    error
)

func loadFonts() error {
	parseOnce.Do(func() {
		regularFont, parseErr = truetype.Parse(goregular.TTF)
		if parseErr != nil {
			return
		}
		boldFont, parseErr = truetype.Parse(gobold.TTF)
	})
	return parseErr
}

// Render draws word-wrapped text onto a white canvas. Newlines in the input
// start new paragraphs; words that cannot fit a line on their own are broken
// mid-word.
func Render(text string, opts Options) (*image.Gray, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}
	opts = opts.withDefaults()
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("textimg: %w", err)
	}

	fnt := regularFont
	if opts.Bold {
		fnt = boldFont
	}
	face := truetype.NewFace(fnt, &truetype.Options{
		Size:       opts.PointSize,
		DPI:        opts.DPI,
		SubPixelsX: 1,
	})
	defer face.Close()

	avail := opts.Width - 2*opts.Margin
	if avail <= 0 {
		return nil, fmt.Errorf("textimg: width %d leaves no room for text", opts.Width)
	}

	lines := wrap(face, text, fixed.I(avail))

	metrics := face.Metrics()
	baseHeight := (metrics.Ascent + metrics.Descent).Ceil()
	lineHeight := int(float64(baseHeight)*opts.LineSpacing + 0.5)
	if lineHeight < baseHeight {
		lineHeight = baseHeight
	}

	height := 2*opts.Margin + lineHeight*len(lines)
	img := image.NewGray(image.Rect(0, 0, opts.Width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}

	d := font.Drawer{Dst: img, Src: image.Black, Face: face}
	y := opts.Margin + metrics.Ascent.Ceil()
	for _, line := range lines {
		d.Dot = fixed.P(opts.Margin, y)
		d.DrawString(line)
		y += lineHeight
	}
	return img, nil
}

func wrap(face font.Face, text string, avail fixed.Int26_6) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		var cur string
		flush := func() {
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
		}
		for _, word := range words {
			if cur != "" && font.MeasureString(face, cur+" "+word) <= avail {
				cur += " " + word
				continue
			}
			flush()
			for font.MeasureString(face, word) > avail {
				head, rest := splitWord(face, word, avail)
				if head == "" {
					// Not even one glyph fits; let it clip.
					break
				}
				lines = append(lines, head)
				word = rest
			}
			cur = word
		}
		flush()
	}
	return lines
}

// splitWord cuts off the longest prefix that still fits.
func splitWord(face font.Face, word string, avail fixed.Int26_6) (head, rest string) {
	runes := []rune(word)
	for i := 1; i <= len(runes); i++ {
		if font.MeasureString(face, string(runes[:i])) > avail {
			if i == 1 {
				return "", word
			}
			return string(runes[:i-1]), string(runes[i-1:])
		}
	}
	return word, ""
}
