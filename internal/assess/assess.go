// Package assess runs complete evaluations: the impact score of a CVE, its
// composite exploitation probability, the exposure factor and optionally the
// risk for an asset. Every exposure factor in the module is computed here.
package assess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dbTypes "github.com/aquasecurity/trivy-db/pkg/types"

	"trivy-plugin-exposure-risk/internal/composite"
	"trivy-plugin-exposure-risk/internal/cvss"
	"trivy-plugin-exposure-risk/internal/feed"
	"trivy-plugin-exposure-risk/internal/risk"
	"trivy-plugin-exposure-risk/internal/score"
)

// Parameters of an evaluation.
type Parameters struct {
	Weights cvss.Weights
	Impact  cvss.ImpactOptions
	Lambda  float64
}

// DefaultParameters returns equal weights and the default lambda.
func DefaultParameters() Parameters {
	return Parameters{Weights: cvss.DefaultWeights(), Lambda: risk.DefaultLambda}
}

// Asset describes what is at stake for the risk computation.
type Asset struct {
	C, I, A        risk.Rating
	OccurrenceRate float64
}

// Assessment is the outcome of evaluating one CVE on one date.
type Assessment struct {
	CVE         string
	Description string
	Vector      string
	Scheme      cvss.Scheme
	Ratings     cvss.Ratings
	Severity    dbTypes.Severity
	// Impact is the weighted CIA score B.
	Impact         score.Value
	Probability    composite.Result
	ExposureFactor score.Value
	// Err explains why the exposure factor is unavailable.
	Err error
}

// Caveat summarises how many LEV samples were available.
func (a Assessment) Caveat() string {
	c := a.Probability.Cumulative
	if !a.Probability.MetadataAvailable() {
		return "disclosure date unavailable, exploitation signals set to 0"
	}
	return fmt.Sprintf("%d of %d data points available", c.Retained(), c.Attempted)
}

// KEVDates looks up the day a CVE was added to the known exploited list.
type KEVDates interface {
	DateAdded(ctx context.Context, cveID string) (time.Time, error)
}

// Assessor evaluates CVEs against the feeds of an engine.
type Assessor struct {
	metadata feed.MetadataFeed
	engine   *composite.Engine
	params   Parameters
	kevDates KEVDates
}

type Option func(*Assessor)

// WithKEVDates enables the kev marker of timelines.
func WithKEVDates(k KEVDates) Option {
	return func(a *Assessor) { a.kevDates = k }
}

func New(metadata feed.MetadataFeed, engine *composite.Engine, params Parameters, opts ...Option) *Assessor {
	a := &Assessor{metadata: metadata, engine: engine, params: params}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Today is the default evaluation date.
func (a *Assessor) Today() time.Time {
	return a.engine.Today()
}

// ExposureFactor evaluates cveID on date (today when nil). An unavailable
// impact or probability is reported through Assessment.Err; only invalid
// parameters are returned as error.
func (a *Assessor) ExposureFactor(ctx context.Context, cveID string, date *time.Time) (Assessment, error) {
	rec, metaErr := a.metadata.Metadata(ctx, cveID)
	base := a.impact(cveID, rec, metaErr)
	if errors.Is(base.Err, score.ErrInvalidParameter) {
		return base, base.Err
	}
	return a.exposureFactorAt(ctx, base, rec, metaErr, date)
}

// exposureFactorAt completes an assessment whose impact is already known.
func (a *Assessor) exposureFactorAt(ctx context.Context, out Assessment, rec feed.Record, metaErr error, date *time.Time) (Assessment, error) {
	out.Probability = a.engine.EvaluateRecord(ctx, out.CVE, rec, metaErr, date)

	ef, err := risk.ExposureFactor(out.Impact, score.Of(out.Probability.Composite), a.params.Lambda)
	if err != nil {
		if errors.Is(err, score.ErrInvalidParameter) {
			return out, err
		}
		if out.Err == nil {
			out.Err = err
		}
		return out, nil
	}
	out.ExposureFactor = score.Of(ef)
	return out, nil
}

func (a *Assessor) impact(cveID string, rec feed.Record, metaErr error) Assessment {
	out := Assessment{CVE: cveID}
	if metaErr != nil {
		out.Err = fmt.Errorf("%w: metadata for %s: %v", score.ErrUnavailable, cveID, metaErr)
		return out
	}
	out.Description = rec.Description
	out.Vector = rec.Vector
	out.Severity = cvss.SeverityOf(rec.BaseScore)
	if rec.Vector == "" {
		out.Err = fmt.Errorf("%w: %s has no CVSS vector", score.ErrUnavailable, cveID)
		return out
	}

	vector := rec.Vector
	if _, err := cvss.GetCVSSVersion(vector); err != nil {
		out.Err = fmt.Errorf("%w: %v", score.ErrUnavailable, err)
		return out
	}
	if !a.params.Impact.Empty() {
		applied, err := cvss.ApplyImpact(vector, a.params.Impact)
		if err != nil {
			out.Err = fmt.Errorf("%w: modified impact: %v", score.ErrInvalidParameter, err)
			return out
		}
		vector = applied
		out.Vector = applied
	}

	ratings, scheme, err := cvss.RatingsFromVector(vector)
	if err != nil {
		out.Err = err
		return out
	}
	out.Ratings, out.Scheme = ratings, scheme

	b, err := cvss.ImpactScore(ratings, scheme, a.params.Weights)
	if err != nil {
		slog.Debug("impact score unavailable", "cve", cveID, "err", err)
		out.Err = err
		return out
	}
	out.Impact = score.Of(b)
	return out
}

// RiskAssessment is an exposure factor scaled by asset value and occurrence rate.
type RiskAssessment struct {
	Assessment
	AssetValue     float64
	OccurrenceRate float64
	Risk           score.Value
}

// Risk evaluates cveID for asset.
func (a *Assessor) Risk(ctx context.Context, cveID string, date *time.Time, asset Asset) (RiskAssessment, error) {
	av, err := risk.AssetValue(asset.C, asset.I, asset.A)
	if err != nil {
		return RiskAssessment{}, err
	}
	if asset.OccurrenceRate < 0 {
		return RiskAssessment{}, score.Invalid("occurrence rate must not be negative, got %v", asset.OccurrenceRate)
	}

	ef, err := a.ExposureFactor(ctx, cveID, date)
	if err != nil {
		return RiskAssessment{}, err
	}
	out := RiskAssessment{Assessment: ef, AssetValue: av, OccurrenceRate: asset.OccurrenceRate}
	r, err := risk.Risk(av, ef.ExposureFactor, asset.OccurrenceRate)
	if err != nil {
		if out.Err == nil {
			out.Err = err
		}
		return out, nil
	}
	out.Risk = score.Of(r)
	return out, nil
}
