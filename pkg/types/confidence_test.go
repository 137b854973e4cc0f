package types

import (
	"math"
	"testing"
)

func TestConfidenceInterval_Validate(t *testing.T) {
	tests := []struct {
		name    string
		lo, hi  float64
		wantErr bool
	}{
		{"valid", 0.3, 0.8, false},
		{"point interval", 0.5, 0.5, false},
		{"full range", 0, 1, false},
		{"inverted", 0.8, 0.3, true},
		{"lo below zero", -0.1, 0.5, true},
		{"hi above one", 0.5, 1.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfidenceInterval(tt.lo, tt.hi)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewConfidenceInterval(%v, %v) error = %v, wantErr %v", tt.lo, tt.hi, err, tt.wantErr)
			}
		})
	}
}

func TestConfidenceInterval_Midpoint(t *testing.T) {
	ci := ConfidenceInterval{Lo: 0.6, Hi: 0.8}
	if got := ci.Midpoint(); math.Abs(got-0.7) > 1e-9 {
		t.Errorf("Midpoint() = %v, want 0.7", got)
	}
}

func TestConfidenceInterval_Width(t *testing.T) {
	ci := ConfidenceInterval{Lo: 0.5, Hi: 0.9}
	if got := ci.Width(); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("Width() = %v, want 0.4", got)
	}
}

func TestConfidenceInterval_Contains(t *testing.T) {
	ci := ConfidenceInterval{Lo: 0.2, Hi: 0.6}

	for _, v := range []float64{0.2, 0.4, 0.6} {
		if !ci.Contains(v) {
			t.Errorf("Contains(%v) = false, want true", v)
		}
	}
	for _, v := range []float64{0.1, 0.7} {
		if ci.Contains(v) {
			t.Errorf("Contains(%v) = true, want false", v)
		}
	}
}

func TestConfidenceInterval_Clamp(t *testing.T) {
	ci := ConfidenceInterval{Lo: 1.2, Hi: 0.9}.Clamp()
	if ci.Lo > ci.Hi {
		t.Errorf("Clamp() left Lo %v > Hi %v", ci.Lo, ci.Hi)
	}
	if ci.Lo < 0 || ci.Hi > 1 {
		t.Errorf("Clamp() left bounds outside [0, 1]: %+v", ci)
	}
}
