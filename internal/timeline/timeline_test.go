package timeline

import "testing"

func TestFrameNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rate    float64
		seconds float64
		want    int
	}{
		{"zero time", 30, 0, 0},
		{"negative time", 30, -1, 0},
		{"exact frame", 30, 1, 30},
		{"rounds down", 30, 0.416, 12},  // 12.48
		{"rounds up", 30, 0.45, 14},     // 13.5 rounds to 14
		{"half rate", 15, 2, 30},
		{"fractional rate", 29.97, 10, 300}, // 299.7
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FrameNumber(tt.rate, tt.seconds); got != tt.want {
				t.Errorf("FrameNumber(%v, %v) = %d, want %d", tt.rate, tt.seconds, got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		frame, count, want int
	}{
		{-5, 300, 0},
		{0, 300, 0},
		{150, 300, 150},
		{299, 300, 299},
		{300, 300, 299},
		{1000, 300, 299},
	}
	for _, tt := range tests {
		if got := Clamp(tt.frame, tt.count); got != tt.want {
			t.Errorf("Clamp(%d, %d) = %d, want %d", tt.frame, tt.count, got, tt.want)
		}
	}
}

func TestSegmentIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		frame, group, want int
	}{
		{0, 1, 0},
		{17, 0, 17},  // no grouping is identity
		{17, 1, 17},
		{0, 5, 0},
		{4, 5, 0},
		{5, 5, 1},
		{119, 10, 11},
	}
	for _, tt := range tests {
		if got := SegmentIndex(tt.frame, tt.group); got != tt.want {
			t.Errorf("SegmentIndex(%d, %d) = %d, want %d", tt.frame, tt.group, got, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	if got := Duration(300, 30); got != 10 {
		t.Errorf("Duration(300, 30) = %v, want 10", got)
	}
	if got := Duration(300, 0); got != 0 {
		t.Errorf("Duration with zero rate = %v, want 0", got)
	}
}
