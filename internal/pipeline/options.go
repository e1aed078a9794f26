package pipeline

import (
	"errors"
	"fmt"

	"github.com/nantokaworks/catstrip/internal/dither"
	"github.com/nantokaworks/catstrip/internal/protocol"
)

var ErrInvalidOption = errors.New("invalid processing option")

// Options control the image processing pipeline. The zero value is not
// usable; start from DefaultOptions.
type Options struct {
	TargetWidth int     // output width in pixels
	Brightness  float64 // -100..100, 0 = unchanged
	Contrast    float64 // -100..100, 0 = unchanged
	Sharpen     float64 // 0..100, 0 = off
	Dither      dither.Mode
	Threshold   uint8 // dither threshold, midpoint 128
	Invert      bool
	Gamma       float64 // 0.1..3.0, 1.0 = unchanged
}

// DefaultOptions returns the standard print settings: full printer width,
// Floyd-Steinberg dithering at the 128 midpoint, neutral adjustments.
func DefaultOptions() Options {
	return Options{
		TargetWidth: protocol.Width,
		Dither:      dither.FloydSteinberg,
		Threshold:   128,
		Gamma:       1.0,
	}
}

func (o Options) validate() error {
	if o.TargetWidth < 1 {
		return fmt.Errorf("%w: target width %d", ErrInvalidOption, o.TargetWidth)
	}
	if o.Brightness < -100 || o.Brightness > 100 {
		return fmt.Errorf("%w: brightness %v out of [-100, 100]", ErrInvalidOption, o.Brightness)
	}
	if o.Contrast < -100 || o.Contrast > 100 {
		return fmt.Errorf("%w: contrast %v out of [-100, 100]", ErrInvalidOption, o.Contrast)
	}
	if o.Sharpen < 0 || o.Sharpen > 100 {
		return fmt.Errorf("%w: sharpen %v out of [0, 100]", ErrInvalidOption, o.Sharpen)
	}
	if o.Gamma < 0.1 || o.Gamma > 3.0 {
		return fmt.Errorf("%w: gamma %v out of [0.1, 3.0]", ErrInvalidOption, o.Gamma)
	}
	return nil
}
