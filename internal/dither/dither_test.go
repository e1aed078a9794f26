package dither

import (
	"image"
	"testing"
)

func gradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*img.Stride+x] = uint8((x * 255) / max(w-1, 1))
		}
	}
	return img
}

func uniform(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func assertBinary(t *testing.T, img *image.Gray) {
	t.Helper()
	for i, v := range img.Pix {
		if v != 0x00 && v != 0xFF {
			t.Fatalf("pixel %d = 0x%02X, want 0x00 or 0xFF", i, v)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		expect  Mode
		wantErr bool
	}{
		{name: "none", input: "none", expect: None},
		{name: "threshold", input: "threshold", expect: Threshold},
		{name: "floydsteinberg", input: "floydsteinberg", expect: FloydSteinberg},
		{name: "hyphenated", input: "Floyd-Steinberg", expect: FloydSteinberg},
		{name: "short form", input: "fs", expect: FloydSteinberg},
		{name: "atkinson", input: "atkinson", expect: Atkinson},
		{name: "ordered", input: "ordered", expect: Ordered},
		{name: "bayer alias", input: "bayer", expect: Ordered},
		{name: "padded input", input: "  ordered ", expect: Ordered},
		{name: "unknown", input: "sierra", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseMode(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseMode(%q) did not fail", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMode(%q) error: %v", tc.input, err)
			}
			if got != tc.expect {
				t.Fatalf("ParseMode(%q) = %v, want %v", tc.input, got, tc.expect)
			}
		})
	}
}

func TestApplyUnknownMode(t *testing.T) {
	if _, err := Apply(uniform(4, 4, 128), Mode(99), 128); err == nil {
		t.Fatal("Apply() with unknown mode did not fail")
	}
}

func TestApplyProducesBinaryOutput(t *testing.T) {
	src := gradient(64, 64)
	for _, mode := range []Mode{None, Threshold, FloydSteinberg, Atkinson, Ordered} {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			got, err := Apply(src, mode, 128)
			if err != nil {
				t.Fatalf("Apply(%v) error: %v", mode, err)
			}
			assertBinary(t, got)
		})
	}
}

func TestThresholdCompare(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 1))
	src.Pix[0] = 127
	src.Pix[1] = 128
	src.Pix[2] = 129

	got, err := Apply(src, Threshold, 128)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got.Pix[0] != 0x00 || got.Pix[1] != 0xFF || got.Pix[2] != 0xFF {
		t.Fatalf("threshold at 128 = % X, want 00 FF FF", got.Pix)
	}
}

func TestThresholdIdempotent(t *testing.T) {
	src := gradient(96, 32)
	once, err := Apply(src, Threshold, 128)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	twice, err := Apply(once, Threshold, 128)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	for i := range once.Pix {
		if once.Pix[i] != twice.Pix[i] {
			t.Fatalf("re-thresholding changed pixel %d: %d -> %d", i, once.Pix[i], twice.Pix[i])
		}
	}
}

func TestNoneEqualsThreshold(t *testing.T) {
	src := gradient(50, 20)
	a, err := Apply(src, None, 100)
	if err != nil {
		t.Fatalf("Apply(None) error: %v", err)
	}
	b, err := Apply(src, Threshold, 100)
	if err != nil {
		t.Fatalf("Apply(Threshold) error: %v", err)
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("none and threshold differ at pixel %d", i)
		}
	}
}

func TestFloydSteinbergDiffusion(t *testing.T) {
	// 2x1 at the midpoint: the first pixel quantizes to white, its error
	// (-127 * 7/16) drags the second below the threshold.
	src := uniform(2, 1, 128)
	got, err := Apply(src, FloydSteinberg, 128)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got.Pix[0] != 0xFF || got.Pix[1] != 0x00 {
		t.Fatalf("FS 2x1 = % X, want FF 00", got.Pix)
	}
}

func TestAtkinsonDiffusion(t *testing.T) {
	// First pixel white, error (150-255)/8 = -13.125 pulls the neighbor
	// from 100 to 86.875, still black.
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.Pix[0] = 150
	src.Pix[1] = 100
	got, err := Apply(src, Atkinson, 128)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got.Pix[0] != 0xFF || got.Pix[1] != 0x00 {
		t.Fatalf("Atkinson 2x1 = % X, want FF 00", got.Pix)
	}
}

func TestErrorDiffusionTinyImages(t *testing.T) {
	sizes := [][2]int{{1, 1}, {1, 2}, {2, 1}, {1, 8}, {8, 1}, {2, 2}, {3, 3}}
	for _, mode := range []Mode{FloydSteinberg, Atkinson} {
		for _, s := range sizes {
			got, err := Apply(uniform(s[0], s[1], 128), mode, 128)
			if err != nil {
				t.Fatalf("Apply(%v, %dx%d) error: %v", mode, s[0], s[1], err)
			}
			assertBinary(t, got)
		}
	}
}

func TestOrderedPattern(t *testing.T) {
	// At gray 128 a cell turns white when its matrix threshold
	// m*255/16 is below 128, which holds for m <= 8.
	got, err := Apply(uniform(4, 4, 128), Ordered, 128)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	white := 0
	for _, v := range got.Pix {
		if v == 0xFF {
			white++
		}
	}
	if white != 9 {
		t.Fatalf("white cells = %d, want 9", white)
	}
	if got.Pix[0] != 0xFF {
		t.Fatal("cell (0,0) with matrix 0 should be white")
	}
	if got.Pix[4] != 0x00 {
		t.Fatal("cell (0,1) with matrix 12 should be black")
	}
}

func TestOrderedTilesAcrossImage(t *testing.T) {
	got, err := Apply(uniform(8, 8, 128), Ordered, 128)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			base := got.Pix[y*got.Stride+x]
			for _, p := range [][2]int{{x + 4, y}, {x, y + 4}, {x + 4, y + 4}} {
				if got.Pix[p[1]*got.Stride+p[0]] != base {
					t.Fatalf("tile mismatch at (%d,%d)", p[0], p[1])
				}
			}
		}
	}
}

func BenchmarkFloydSteinberg(b *testing.B) {
	src := gradient(384, 384)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Apply(src, FloydSteinberg, 128); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkOrdered(b *testing.B) {
	src := gradient(384, 384)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Apply(src, Ordered, 128); err != nil {
			b.Fatal(err)
		}
	}
}
