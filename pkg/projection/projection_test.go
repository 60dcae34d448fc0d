package projection

import (
	"testing"

	"czi2png/pkg/render"
)

func TestMaxPicksBrightestSample(t *testing.T) {
	planes := [][]uint8{
		{10, 200, 30, 0},
		{90, 100, 30, 255},
		{20, 150, 31, 7},
	}
	got, err := Max(planes)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []float64{90.0 / 255, 200.0 / 255, 31.0 / 255, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected sample %d to be %v, got %v", i, want[i], got[i])
		}
	}
}

func TestMeanAveragesInFloat(t *testing.T) {
	// The average of samples 1 and 2 must be 1.5/255, never truncated
	got, err := Mean([][]uint8{{1}, {2}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if want := 1.5 / 255; got[0] != want {
		t.Errorf("Expected %v, got %v", want, got[0])
	}
}

func TestSinglePlaneMatchesNormalize(t *testing.T) {
	plane := []uint8{0, 1, 17, 85, 128, 200, 254, 255}
	want := render.Normalize(plane)

	max, err := Max([][]uint8{plane})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	mean, err := Mean([][]uint8{plane})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i := range plane {
		if max[i] != want[i] {
			t.Errorf("Max of a single plane differs from Normalize at %d: %v vs %v", i, max[i], want[i])
		}
		if mean[i] != want[i] {
			t.Errorf("Mean of a single plane differs from Normalize at %d: %v vs %v", i, mean[i], want[i])
		}
	}
}

func TestConstantStackProjectsExactly(t *testing.T) {
	for _, v := range []uint8{0, 1, 85, 128, 255} {
		plane := []uint8{v, v, v, v}
		planes := [][]uint8{plane, plane, plane}
		want := float64(v) / 255

		max, err := Max(planes)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		mean, err := Mean(planes)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		for i := range plane {
			if max[i] != want {
				t.Errorf("Expected constant max %v for value %d, got %v", want, v, max[i])
			}
			if mean[i] != want {
				t.Errorf("Expected constant mean %v for value %d, got %v", want, v, mean[i])
			}
		}
	}
}

func TestProjectionInputValidation(t *testing.T) {
	if _, err := Max(nil); err == nil {
		t.Errorf("Expected an error for an empty stack")
	}
	if _, err := Mean([][]uint8{}); err == nil {
		t.Errorf("Expected an error for an empty stack")
	}
	if _, err := Max([][]uint8{{}}); err == nil {
		t.Errorf("Expected an error for empty planes")
	}
	if _, err := Mean([][]uint8{{1, 2}, {1}}); err == nil {
		t.Errorf("Expected an error for ragged planes")
	}
}
