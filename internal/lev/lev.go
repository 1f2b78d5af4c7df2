// Package lev estimates the probability that a vulnerability has been
// exploited at least once between its disclosure and an evaluation date,
// from periodic point-in-time exploitation probabilities (EPSS samples).
//
// Exploitation in disjoint windows is assumed independent: each retained
// sample contributes a factor 1 - epss(di)*weight(di, dn) to the probability
// of never having been exploited, and the estimate is the complement of the
// product of those factors.
package lev

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"trivy-plugin-exposure-risk/internal/feed"
	"trivy-plugin-exposure-risk/internal/score"
)

// DefaultWindow is the sampling window in days.
const DefaultWindow = 30

// Sample is one retained point-in-time probability.
type Sample struct {
	Date   time.Time `json:"date" yaml:"date"`
	Value  float64   `json:"value" yaml:"value"`
	Weight float64   `json:"weight" yaml:"weight"`
}

// Estimate is the result of a cumulative computation.
type Estimate struct {
	Probability float64  `json:"probability" yaml:"probability"`
	Samples     []Sample `json:"samples" yaml:"samples"`
	// Attempted is the number of generated sample dates.
	Attempted int `json:"attempted" yaml:"attempted"`
}

// Retained returns the number of dates a sample was obtained for.
func (e Estimate) Retained() int {
	return len(e.Samples)
}

// Peak returns the retained sample with the highest value.
func (e Estimate) Peak() (Sample, bool) {
	if len(e.Samples) == 0 {
		return Sample{}, false
	}
	peak := e.Samples[0]
	for _, s := range e.Samples[1:] {
		if s.Value > peak.Value {
			peak = s
		}
	}
	return peak, true
}

// Estimator computes cumulative exploitation probabilities from a score feed.
type Estimator struct {
	scores feed.ScoreFeed
}

func NewEstimator(scores feed.ScoreFeed) *Estimator {
	return &Estimator{scores: scores}
}

// SampleDates returns d0, d0+window, ... up to and including dn. dn is not
// appended when the last step does not land on it. The result is empty when d0 is after dn.
func SampleDates(d0, dn time.Time, window int) ([]time.Time, error) {
	if window <= 0 {
		return nil, score.Invalid("window must be a positive number of days, got %d", window)
	}
	d0, dn = feed.Day(d0), feed.Day(dn)
	var dates []time.Time
	for current := d0; !current.After(dn); current = current.AddDate(0, 0, window) {
		dates = append(dates, current)
	}
	return dates, nil
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(feed.Day(b).Sub(feed.Day(a)).Hours() / 24))
}

// Weight down-weights a window that is cut short by dn.
func Weight(di, dn time.Time, window int) float64 {
	effective := min(window, DaysBetween(di, dn)+1)
	return float64(effective) / float64(window)
}

// Cumulative returns the probability that cveID has been exploited at least
// once between d0 and dn. Dates without a sample, or whose fetch failed, are
// skipped. It never fails on missing data; only a non-positive window is an error.
func (e *Estimator) Cumulative(ctx context.Context, cveID string, d0, dn time.Time, window int) (Estimate, error) {
	dates, err := SampleDates(d0, dn, window)
	if err != nil {
		return Estimate{}, err
	}

	est := Estimate{Attempted: len(dates)}
	product := 1.0
	for _, di := range dates {
		v, err := e.scores.Score(ctx, cveID, di)
		if err != nil {
			if !errors.Is(err, feed.ErrNoData) {
				slog.Debug("skipping sample", "cve", cveID, "date", di.Format(feed.DateLayout), "err", err)
			}
			continue
		}
		w := Weight(di, dn, window)
		product *= 1 - v*w
		est.Samples = append(est.Samples, Sample{Date: di, Value: v, Weight: w})
	}

	if len(est.Samples) == 0 {
		return est, nil
	}
	est.Probability = 1 - product
	return est, nil
}
