package recorder

import "testing"

func TestPercentileIndex(t *testing.T) {
	tests := []struct {
		p, n, want int
	}{
		{50, 1, 0},
		{99, 1, 0},
		{50, 10, 4},
		{90, 10, 8},
		{95, 10, 9},
		{99, 10, 9},
		{95, 100, 94},
		{99, 100, 98},
		{50, 3, 1},
		{90, 1000, 899},
	}
	for _, tt := range tests {
		if got := percentileIndex(tt.p, tt.n); got != tt.want {
			t.Errorf("percentileIndex(%d, %d) = %d, want %d", tt.p, tt.n, got, tt.want)
		}
	}
}
