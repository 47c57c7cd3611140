package utils

import "math"

// Round rounds a value to 2 decimal places
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}
