package vector

import (
	"fmt"
	"math"

	"github.com/nrcae/ai-s3-search/internal/models"
	"github.com/nrcae/ai-s3-search/pkg/utils"
)

// Metric selects the distance function of a flat index.
type Metric string

const (
	// MetricL2 is squared Euclidean distance.
	MetricL2 Metric = "l2"
	// MetricCosine is 1 - dot product, for unit-length vectors.
	MetricCosine Metric = "cosine"
)

// ParseMetric maps a config value to a Metric. Empty defaults to l2.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricL2, "":
		return MetricL2, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown metric: %s (supported: l2, cosine)", s)
	}
}

func (m Metric) distance(a, b []float32) float32 {
	if m == MetricCosine {
		return 1 - utils.Dot(a, b)
	}
	return utils.SquaredL2(a, b)
}

// scoreEpsilon is the tolerance under which all raw scores count as equal.
const scoreEpsilon = 1e-9

// distanceScore maps a non-negative distance into (0, 1], closer being higher.
func distanceScore(d float32) float64 {
	if d < 0 {
		d = 0
	}
	return 1 / (1 + float64(d))
}

// rescale maps hit scores linearly so the minimum becomes 0 and the maximum 1.
// When every score is within scoreEpsilon of the others, all become 1.
func rescale(hits []models.Hit) {
	if len(hits) == 0 {
		return
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, h := range hits {
		lo = math.Min(lo, h.Score)
		hi = math.Max(hi, h.Score)
	}
	span := hi - lo
	for i := range hits {
		if span <= scoreEpsilon {
			hits[i].Score = 1
			continue
		}
		hits[i].Score = (hits[i].Score - lo) / span
	}
}
