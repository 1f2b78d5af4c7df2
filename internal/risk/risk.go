package risk

import (
	"fmt"

	"github.com/samber/lo"

	"trivy-plugin-exposure-risk/internal/score"
)

// DefaultLambda is the default amplification of impact by exploitation probability.
const DefaultLambda = 0.3

// Rating is a per-dimension asset value on the ordinal scale 1 (low) to 3 (high).
type Rating int

const (
	Low      Rating = 1
	Moderate Rating = 2
	High     Rating = 3
)

func (r Rating) String() string {
	switch r {
	case Low:
		return "Low"
	case Moderate:
		return "Moderate"
	case High:
		return "High"
	default:
		return fmt.Sprintf("Rating(%d)", int(r))
	}
}

// ExposureFactor amplifies the impact score B by the composite exploitation
// probability P: EF = B * (1 + lambda*P). lambda must lie in [0, 1].
func ExposureFactor(impact, probability score.Value, lambda float64) (float64, error) {
	if lambda < 0 || lambda > 1 {
		return 0, score.Invalid("lambda must be within [0, 1], got %v", lambda)
	}
	b, ok := impact.Get()
	if !ok {
		return 0, fmt.Errorf("exposure factor: impact score: %w", score.ErrUnavailable)
	}
	p, ok := probability.Get()
	if !ok {
		return 0, fmt.Errorf("exposure factor: composite probability: %w", score.ErrUnavailable)
	}
	return b * (1 + lambda*p), nil
}

// AssetValue is the mean of the confidentiality, integrity and availability asset ratings.
func AssetValue(c, i, a Rating) (float64, error) {
	for _, r := range []Rating{c, i, a} {
		if r < Low || r > High {
			return 0, score.Invalid("asset rating must be 1, 2 or 3, got %d", int(r))
		}
	}
	return float64(c+i+a) / 3, nil
}

// Risk is the ALE style product asset value * EF * occurrence rate.
func Risk(assetValue float64, ef score.Value, occurrenceRate float64) (float64, error) {
	if occurrenceRate < 0 {
		return 0, score.Invalid("occurrence rate must not be negative, got %v", occurrenceRate)
	}
	v, ok := ef.Get()
	if !ok {
		return 0, fmt.Errorf("risk: exposure factor: %w", score.ErrUnavailable)
	}
	return assetValue * v * occurrenceRate, nil
}

// MeanExposureFactor averages the available exposure factors of several CVEs.
// It is unavailable when none of them is.
func MeanExposureFactor(efs []score.Value) score.Value {
	available := lo.FilterMap(efs, func(v score.Value, _ int) (float64, bool) {
		return v.Get()
	})
	if len(available) == 0 {
		return score.Unavailable()
	}
	return score.Of(lo.Sum(available) / float64(len(available)))
}
