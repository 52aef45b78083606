package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("got %v", v)
	}

	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestSquaredL2AndDot(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 6, 3}
	if got := SquaredL2(a, b); got != 25 {
		t.Errorf("SquaredL2 = %v, want 25", got)
	}
	if got := SquaredL2(a, a); got != 0 {
		t.Errorf("SquaredL2(a,a) = %v", got)
	}
	if got := Dot(a, b); got != 25 {
		t.Errorf("Dot = %v, want 25", got)
	}
}
