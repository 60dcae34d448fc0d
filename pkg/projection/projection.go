// Package projection collapses a z-stack of grayscale planes into a single
// plane along the depth axis.
package projection

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Max computes a maximum intensity projection: the brightest sample across
// all depths at each pixel, normalized into [0, 1].
func Max(planes [][]uint8) ([]float64, error) {
	if err := checkPlanes(planes); err != nil {
		return nil, err
	}
	peak := make([]uint8, len(planes[0]))
	copy(peak, planes[0])
	for _, p := range planes[1:] {
		for i, v := range p {
			if v > peak[i] {
				peak[i] = v
			}
		}
	}
	out := make([]float64, len(peak))
	for i, v := range peak {
		out[i] = float64(v) / 255
	}
	return out, nil
}

// Mean computes an average intensity projection: the arithmetic mean across
// all depths at each pixel, normalized into [0, 1]. For a single plane the
// result is identical to normalizing that plane directly.
func Mean(planes [][]uint8) ([]float64, error) {
	if err := checkPlanes(planes); err != nil {
		return nil, err
	}
	sum := make([]float64, len(planes[0]))
	tmp := make([]float64, len(sum))
	for _, p := range planes {
		for i, v := range p {
			tmp[i] = float64(v)
		}
		floats.Add(sum, tmp)
	}
	depth := float64(len(planes))
	for i := range sum {
		sum[i] = sum[i] / depth / 255
	}
	return sum, nil
}

// checkPlanes verifies the stack is non-empty and rectangular.
func checkPlanes(planes [][]uint8) error {
	if len(planes) == 0 {
		return fmt.Errorf("projection needs at least one plane")
	}
	n := len(planes[0])
	if n == 0 {
		return fmt.Errorf("projection planes are empty")
	}
	for i, p := range planes[1:] {
		if len(p) != n {
			return fmt.Errorf("plane %d has %d samples, want %d", i+1, len(p), n)
		}
	}
	return nil
}
