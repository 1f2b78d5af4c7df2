// Package composite combines the three exploitation signals of a CVE into a
// single probability: the point-in-time EPSS score, the KEV membership
// indicator and the cumulative LEV estimate.
package composite

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"trivy-plugin-exposure-risk/internal/feed"
	"trivy-plugin-exposure-risk/internal/lev"
	"trivy-plugin-exposure-risk/internal/score"
)

// Clock returns the current time. It is the only wall-clock read of an evaluation.
type Clock func() time.Time

// Result of one evaluation.
type Result struct {
	CVE  string
	Date time.Time
	// Disclosed is zero when the metadata feed could not provide it.
	Disclosed      time.Time
	Composite      float64
	PointInTime    feed.Observation
	KnownExploited feed.Observation
	Cumulative     lev.Estimate
}

// MetadataAvailable reports whether the disclosure date was obtained.
func (r Result) MetadataAvailable() bool {
	return !r.Disclosed.IsZero()
}

// Engine evaluates composite exploitation probabilities.
type Engine struct {
	metadata  feed.MetadataFeed
	scores    feed.ScoreFeed
	kev       feed.KnownExploitedFeed
	estimator *lev.Estimator
	now       Clock
	window    int
}

type Option func(*Engine)

// WithClock replaces time.Now as the source of the default evaluation date.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.now = c }
}

// WithWindow sets the LEV sampling window in days.
func WithWindow(days int) Option {
	return func(e *Engine) { e.window = days }
}

func NewEngine(metadata feed.MetadataFeed, scores feed.ScoreFeed, kev feed.KnownExploitedFeed, opts ...Option) (*Engine, error) {
	e := &Engine{
		metadata:  metadata,
		scores:    scores,
		kev:       kev,
		estimator: lev.NewEstimator(scores),
		now:       time.Now,
		window:    lev.DefaultWindow,
	}
	for _, o := range opts {
		o(e)
	}
	if e.window <= 0 {
		return nil, score.Invalid("window must be a positive number of days, got %d", e.window)
	}
	return e, nil
}

// Today returns the current date according to the engine's clock.
func (e *Engine) Today() time.Time {
	return feed.Day(e.now())
}

// Evaluate fetches the metadata of cveID and evaluates it on date, or today when date is nil.
func (e *Engine) Evaluate(ctx context.Context, cveID string, date *time.Time) Result {
	rec, err := e.metadata.Metadata(ctx, cveID)
	return e.EvaluateRecord(ctx, cveID, rec, err, date)
}

// EvaluateRecord evaluates cveID with metadata that was already fetched.
// A metadata error collapses every signal to zero.
func (e *Engine) EvaluateRecord(ctx context.Context, cveID string, rec feed.Record, metaErr error, date *time.Time) Result {
	dn := e.Today()
	if date != nil {
		dn = feed.Day(*date)
	}
	res := Result{CVE: cveID, Date: dn}

	if metaErr != nil || rec.Published.IsZero() {
		slog.Warn("no disclosure date, exploitation signals default to zero", "cve", cveID, "err", metaErr)
		return res
	}
	res.Disclosed = feed.Day(rec.Published)

	res.PointInTime = feed.Observe(e.scores.Score(ctx, cveID, dn))
	if res.PointInTime.State == feed.Failed {
		slog.Warn("could not fetch point-in-time score", "cve", cveID, "date", dn.Format(feed.DateLayout), "err", res.PointInTime.Err)
	}

	res.KnownExploited = e.knownExploited(ctx, cveID, dn)

	// the window is validated in NewEngine, so the estimator cannot fail
	res.Cumulative, _ = e.estimator.Cumulative(ctx, cveID, res.Disclosed, dn, e.window)

	res.Composite = Aggregate(res.PointInTime, res.KnownExploited, feed.Observe(res.Cumulative.Probability, nil))
	return res
}

func (e *Engine) knownExploited(ctx context.Context, cveID string, dn time.Time) feed.Observation {
	listed, err := e.kev.KnownExploitedAsOf(ctx, dn)
	if err != nil {
		slog.Warn("could not fetch known exploited list", "date", dn.Format(feed.DateLayout), "err", err)
		return feed.Observe(0, err)
	}
	if _, ok := listed[strings.ToUpper(cveID)]; ok {
		return feed.Observe(1, nil)
	}
	return feed.Observe(0, nil)
}

// Aggregate is the single place absent or failed signals are folded into a
// number: they count as 0.0, and the strongest present signal wins.
func Aggregate(signals ...feed.Observation) float64 {
	return lo.Max(lo.Map(signals, func(o feed.Observation, _ int) float64 {
		if v, ok := o.Get(); ok {
			return v
		}
		return 0
	}))
}
