package utils

import "testing"

func TestRound(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.234, 1.23},
		{1.236, 1.24},
		{0, 0},
		{-2.499, -2.5},
		{12.5, 12.5},
	}

	for _, tt := range tests {
		if got := Round(tt.in); got != tt.want {
			t.Errorf("Round(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
