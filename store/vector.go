package store

import (
	"strconv"
	"strings"
)

// DimensionVector maps a tire size and tread width to the vector indexed
// in vec_records. Components are scaled so one step in any of them weighs
// about the same: section and tread width per 100 mm, aspect ratio per
// 10 points, rim per 10 units. A two-part size has rim 0. It reports false
// when the size or width is not numeric.
func DimensionVector(tireSize, width string) ([]float32, bool) {
	parts := strings.Split(tireSize, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, false
	}
	nums := make([]float64, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		nums[i] = float64(n)
	}
	w, err := strconv.Atoi(width)
	if err != nil {
		return nil, false
	}
	return []float32{
		float32(nums[0] / 100),
		float32(nums[1] / 10),
		float32(nums[2] / 10),
		float32(float64(w) / 100),
	}, true
}
