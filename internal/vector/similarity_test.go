package vector

import (
	"math"
	"testing"

	"github.com/nrcae/ai-s3-search/internal/models"
)

func TestDistanceScore(t *testing.T) {
	if got := distanceScore(0); got != 1 {
		t.Errorf("distanceScore(0)=%v, want 1", got)
	}
	if got := distanceScore(1); got != 0.5 {
		t.Errorf("distanceScore(1)=%v, want 0.5", got)
	}
	if got := distanceScore(-0.1); got != 1 {
		t.Errorf("negative distance should clamp to 1, got %v", got)
	}
}

func TestRescale(t *testing.T) {
	hits := []models.Hit{{Score: 0.5}, {Score: 0.4}, {Score: 0.2}}
	rescale(hits)
	want := []float64{1, 2.0 / 3.0, 0}
	for i, w := range want {
		if math.Abs(hits[i].Score-w) > 1e-9 {
			t.Errorf("hits[%d].Score=%v, want %v", i, hits[i].Score, w)
		}
	}
}

func TestRescale_AllEqual(t *testing.T) {
	hits := []models.Hit{{Score: 0.3}, {Score: 0.3 + 1e-12}}
	rescale(hits)
	for i, h := range hits {
		if h.Score != 1 {
			t.Errorf("hits[%d].Score=%v, want 1", i, h.Score)
		}
	}

	single := []models.Hit{{Score: 0.01}}
	rescale(single)
	if single[0].Score != 1 {
		t.Errorf("single hit score=%v, want 1", single[0].Score)
	}
}

func TestResultKey_SortsParams(t *testing.T) {
	q := []float32{1, 2}
	a := resultKey(q, 3, map[string]string{"b": "2", "a": "1"})
	b := resultKey(q, 3, map[string]string{"a": "1", "b": "2"})
	if a != b {
		t.Error("keys differ for same params in different order")
	}
	if resultKey(q, 3, nil) == resultKey(q, 4, nil) {
		t.Error("top_k not part of key")
	}
	if resultKey(q, 3, nil) == resultKey([]float32{1, 2.5}, 3, nil) {
		t.Error("query bytes not part of key")
	}
}
