package split

import "testing"

func TestStripCount(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		scale  float64
		expect int
	}{
		{
			name:   "exact single strip",
			width:  384,
			scale:  1,
			expect: 1,
		},
		{
			name:   "one pixel over",
			width:  385,
			scale:  1,
			expect: 2,
		},
		{
			name:   "four strips",
			width:  1536,
			scale:  1,
			expect: 4,
		},
		{
			name:   "downscale halves the count",
			width:  768,
			scale:  0.5,
			expect: 1,
		},
		{
			name:   "upscale grows the count",
			width:  384,
			scale:  2.5,
			expect: 3,
		},
		{
			name:   "zero width",
			width:  0,
			scale:  1,
			expect: 0,
		},
		{
			name:   "zero scale",
			width:  384,
			scale:  0,
			expect: 0,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := StripCount(tc.width, tc.scale)
			if got != tc.expect {
				t.Fatalf("StripCount(%d, %v) = %d, want %d", tc.width, tc.scale, got, tc.expect)
			}
		})
	}
}

func TestScaleForStripsInverse(t *testing.T) {
	widths := []int{100, 384, 385, 500, 768, 1000, 1920, 4096}
	for _, w := range widths {
		for count := 1; count <= 6; count++ {
			scale := ScaleForStrips(w, count)
			if scale <= 0 {
				t.Fatalf("ScaleForStrips(%d, %d) = %v, want > 0", w, count, scale)
			}
			if got := StripCount(w, scale); got != count {
				t.Fatalf("StripCount(%d, ScaleForStrips(%d, %d)) = %d, want %d", w, w, count, got, count)
			}
		}
	}
}

func TestScaleForStripsDegenerate(t *testing.T) {
	if got := ScaleForStrips(0, 3); got != 0 {
		t.Fatalf("ScaleForStrips(0, 3) = %v, want 0", got)
	}
	if got := ScaleForStrips(384, 0); got != 0 {
		t.Fatalf("ScaleForStrips(384, 0) = %v, want 0", got)
	}
}
