package cvss

import (
	"fmt"
	"strings"

	"trivy-plugin-exposure-risk/internal/score"
)

// Scheme is the qualitative rating scheme of an impact vector.
type Scheme string

const (
	// Legacy is the CVSS 2.0 none/partial/complete scheme.
	Legacy Scheme = "2.0"
	// Modern is the CVSS 3.x none/low/high scheme.
	Modern Scheme = "3.x"
)

// ErrInvalidWeights is returned when the impact weights cannot form a weighted mean.
var ErrInvalidWeights = fmt.Errorf("%w: impact weights", score.ErrInvalidParameter)

var severityValues = map[Scheme]map[string]float64{
	Legacy: {"N": 0.0, "P": 0.275, "C": 0.66},
	Modern: {"N": 0.0, "L": 0.22, "H": 0.56},
}

// Ratings holds the qualitative confidentiality, integrity and availability impact.
type Ratings struct {
	C, I, A string
}

// Weights of the confidentiality, integrity and availability ratings.
type Weights struct {
	C, I, A float64
}

// DefaultWeights weighs all three ratings equally.
func DefaultWeights() Weights {
	return Weights{C: 1, I: 1, A: 1}
}

// Severity maps a single qualitative rating to its numeric severity.
func Severity(scheme Scheme, rating string) (float64, error) {
	table, ok := severityValues[scheme]
	if !ok {
		return 0, fmt.Errorf("%w: unknown rating scheme %q", score.ErrUnavailable, scheme)
	}
	v, ok := table[strings.ToUpper(rating)]
	if !ok {
		return 0, fmt.Errorf("%w: rating %q is not part of scheme %s", score.ErrUnavailable, rating, scheme)
	}
	return v, nil
}

// ImpactScore combines the three ratings into the weighted impact score B.
// A missing or unmapped rating makes the score unavailable; it is never
// replaced by a default.
func ImpactScore(r Ratings, scheme Scheme, w Weights) (float64, error) {
	if w.C < 0 || w.I < 0 || w.A < 0 {
		return 0, fmt.Errorf("%w: negative weight in %+v", ErrInvalidWeights, w)
	}
	total := w.C + w.I + w.A
	if total == 0 {
		return 0, fmt.Errorf("%w: total weight is zero", ErrInvalidWeights)
	}

	c, err := Severity(scheme, r.C)
	if err != nil {
		return 0, fmt.Errorf("confidentiality: %w", err)
	}
	i, err := Severity(scheme, r.I)
	if err != nil {
		return 0, fmt.Errorf("integrity: %w", err)
	}
	a, err := Severity(scheme, r.A)
	if err != nil {
		return 0, fmt.Errorf("availability: %w", err)
	}

	return (c*w.C + i*w.I + a*w.A) / total, nil
}
