package render

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	plane := []uint8{0, 51, 128, 255}
	got := Normalize(plane)
	want := []float64{0, float64(51) / 255, float64(128) / 255, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected sample %d to be %v, got %v", i, want[i], got[i])
		}
	}
}

func TestColorizeRoundsHalfUp(t *testing.T) {
	// 0.5 * 85 = 42.5 must round up to 43, not to even
	img, err := Colorize([]float64{0.5}, 1, 1, Color{R: 85, G: 255, B: 0, A: 255})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	px := img.RGBAAt(0, 0)
	if px.R != 43 {
		t.Errorf("Expected red component 43, got %d", px.R)
	}
	if px.G != 128 { // 0.5 * 255 = 127.5 rounds up
		t.Errorf("Expected green component 128, got %d", px.G)
	}
	if px.B != 0 {
		t.Errorf("Expected blue component 0, got %d", px.B)
	}
}

func TestColorizeClampsAfterRounding(t *testing.T) {
	// Out-of-range intensities must clamp to the valid sample range
	img, err := Colorize([]float64{1.2, -0.5}, 2, 1, Color{R: 255, G: 255, B: 255, A: 255})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if px := img.RGBAAt(0, 0); px.R != 255 || px.G != 255 || px.B != 255 {
		t.Errorf("Expected overshoot to clamp to 255, got %+v", px)
	}
	if px := img.RGBAAt(1, 0); px.R != 0 || px.G != 0 || px.B != 0 {
		t.Errorf("Expected undershoot to clamp to 0, got %+v", px)
	}
}

func TestColorizeWhiteKeepsIntensity(t *testing.T) {
	plane := []uint8{0, 1, 17, 64, 127, 128, 200, 254, 255}
	img, err := Colorize(Normalize(plane), len(plane), 1, Color{R: 255, G: 255, B: 255, A: 255})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for x, v := range plane {
		px := img.RGBAAt(x, 0)
		if px.R != v || px.G != v || px.B != v {
			t.Errorf("Expected white-tinted sample %d to stay %d, got %+v", x, v, px)
		}
	}
}

func TestColorizeIsOpaque(t *testing.T) {
	// Alpha from the display color must never reach the output
	img, err := Colorize([]float64{0, 0.5, 1}, 3, 1, Color{R: 10, G: 20, B: 30, A: 0})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !img.Opaque() {
		t.Errorf("Expected a fully opaque image")
	}
	for x := 0; x < 3; x++ {
		if a := img.RGBAAt(x, 0).A; a != 0xFF {
			t.Errorf("Expected alpha 0xFF at %d, got %d", x, a)
		}
	}
}

func TestColorizeMonotonic(t *testing.T) {
	col := Color{R: 200, G: 100, B: 50, A: 255}
	gray := make([]float64, 101)
	for i := range gray {
		gray[i] = float64(i) / 100
	}
	img, err := Colorize(gray, len(gray), 1, col)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for x := 1; x < len(gray); x++ {
		prev, cur := img.RGBAAt(x-1, 0), img.RGBAAt(x, 0)
		if cur.R < prev.R || cur.G < prev.G || cur.B < prev.B {
			t.Errorf("Components decreased from %+v to %+v at intensity %v", prev, cur, gray[x])
		}
	}

	// Monotonic in the color for a fixed intensity as well
	prev := uint8(0)
	for r := 0; r <= 255; r += 5 {
		img, err := Colorize([]float64{0.7}, 1, 1, Color{R: uint8(r), A: 255})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		cur := img.RGBAAt(0, 0).R
		if cur < prev {
			t.Errorf("Red component decreased from %d to %d at color %d", prev, cur, r)
		}
		prev = cur
	}
}

func TestColorizeLayout(t *testing.T) {
	// Samples are row-major: index y*width+x
	gray := []float64{0, 0.25, 0.5, 1}
	img, err := Colorize(gray, 2, 2, Color{R: 255, G: 255, B: 255, A: 255})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for i, pos := range want {
		expected := uint8(gray[i]*255 + 0.5)
		if got := img.RGBAAt(pos[0], pos[1]).R; got != expected {
			t.Errorf("Expected %d at (%d, %d), got %d", expected, pos[0], pos[1], got)
		}
	}
}

func TestColorizeSizeMismatch(t *testing.T) {
	if _, err := Colorize([]float64{0, 0, 0}, 2, 2, Color{}); err == nil {
		t.Errorf("Expected an error for a short plane")
	}
	if _, err := Colorize([]float64{}, 0, 1, Color{}); err == nil {
		t.Errorf("Expected an error for zero width")
	}
}
