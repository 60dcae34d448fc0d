package render

import (
	"errors"
	"testing"
)

func TestParseHexColor(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  Color
	}{
		{"red with hash", "#FFFF0000", Color{R: 255, G: 0, B: 0, A: 255}},
		{"green without hash", "FF00FF00", Color{R: 0, G: 255, B: 0, A: 255}},
		{"lowercase", "#80a0b0c0", Color{R: 0xA0, G: 0xB0, B: 0xC0, A: 0x80}},
		{"zero alpha", "#00102030", Color{R: 0x10, G: 0x20, B: 0x30, A: 0x00}},
		{"white", "#FFFFFFFF", Color{R: 255, G: 255, B: 255, A: 255}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseHexColor(tc.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestParseHexColorInvalid(t *testing.T) {
	inputs := []string{
		"",
		"#",
		"#FFF",
		"#FFFF00001",   // 9 digits
		"FFFF000",      // 7 digits
		"##FFFF0000",   // double hash
		"#GGFF0000",    // non-hex
		"# FFF00000",   // embedded space
		"#FFFF00-0",    // sign
		"0xFF00FF00",   // go prefix
		"#FF_FF0000",   // separator
	}
	for _, input := range inputs {
		if _, err := ParseHexColor(input); !errors.Is(err, ErrColorFormat) {
			t.Errorf("Expected ErrColorFormat for %q, got %v", input, err)
		}
	}
}

func TestColorHexRoundTrip(t *testing.T) {
	inputs := []string{"#FFFF0000", "#00ABCDEF", "8040C0E0", "#ffffffff", "#00000000"}
	for _, input := range inputs {
		first, err := ParseHexColor(input)
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", input, err)
		}
		second, err := ParseHexColor(first.Hex())
		if err != nil {
			t.Fatalf("Failed to re-parse %q: %v", first.Hex(), err)
		}
		if first != second {
			t.Errorf("Round trip of %q changed %+v to %+v", input, first, second)
		}
	}
}
