package report

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"trivy-plugin-exposure-risk/internal/assess"
	"trivy-plugin-exposure-risk/internal/composite"
	"trivy-plugin-exposure-risk/internal/epss"
	"trivy-plugin-exposure-risk/internal/feed"
	"trivy-plugin-exposure-risk/internal/lev"
	"trivy-plugin-exposure-risk/internal/score"
)

type ProbabilityView struct {
	Disclosed       string   `json:"disclosed,omitempty" yaml:"disclosed,omitempty"`
	Composite       float64  `json:"composite" yaml:"composite"`
	EPSS            *float64 `json:"epss" yaml:"epss"`
	EPSSState       string   `json:"epssState" yaml:"epssState"`
	ExploitMaturity string   `json:"exploitMaturity" yaml:"exploitMaturity"`
	KnownExploited  bool     `json:"knownExploited" yaml:"knownExploited"`
	KEVState        string   `json:"kevState" yaml:"kevState"`
	LEV             float64  `json:"lev" yaml:"lev"`
}

type AssessmentView struct {
	CVE             string          `json:"cve" yaml:"cve"`
	Date            string          `json:"date" yaml:"date"`
	Description     string          `json:"description,omitempty" yaml:"description,omitempty"`
	Vector          string          `json:"vector,omitempty" yaml:"vector,omitempty"`
	Scheme          string          `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Severity        string          `json:"severity" yaml:"severity"`
	Confidentiality string          `json:"confidentiality,omitempty" yaml:"confidentiality,omitempty"`
	Integrity       string          `json:"integrity,omitempty" yaml:"integrity,omitempty"`
	Availability    string          `json:"availability,omitempty" yaml:"availability,omitempty"`
	Impact          *float64        `json:"impact" yaml:"impact"`
	Probability     ProbabilityView `json:"probability" yaml:"probability"`
	ExposureFactor  *float64        `json:"exposureFactor" yaml:"exposureFactor"`
	Caveat          string          `json:"caveat" yaml:"caveat"`
	Error           string          `json:"error,omitempty" yaml:"error,omitempty"`
}

func NewAssessmentView(a assess.Assessment) AssessmentView {
	return AssessmentView{
		CVE:             a.CVE,
		Date:            formatDate(a.Probability.Date),
		Description:     a.Description,
		Vector:          a.Vector,
		Scheme:          string(a.Scheme),
		Severity:        a.Severity.String(),
		Confidentiality: a.Ratings.C,
		Integrity:       a.Ratings.I,
		Availability:    a.Ratings.A,
		Impact:          valuePtr(a.Impact),
		Probability:     newProbabilityView(a.Probability),
		ExposureFactor:  valuePtr(a.ExposureFactor),
		Caveat:          a.Caveat(),
		Error:           errString(a.Err),
	}
}

func newProbabilityView(r composite.Result) ProbabilityView {
	kev, _ := r.KnownExploited.Get()
	return ProbabilityView{
		Disclosed:       formatDate(r.Disclosed),
		Composite:       r.Composite,
		EPSS:            observationPtr(r.PointInTime),
		EPSSState:       r.PointInTime.State.String(),
		ExploitMaturity: epss.ExploitMaturity(r.PointInTime),
		KnownExploited:  kev == 1,
		KEVState:        r.KnownExploited.State.String(),
		LEV:             r.Cumulative.Probability,
	}
}

type RiskView struct {
	AssessmentView `yaml:",inline"`
	AssetValue     float64  `json:"assetValue" yaml:"assetValue"`
	OccurrenceRate float64  `json:"occurrenceRate" yaml:"occurrenceRate"`
	Risk           *float64 `json:"risk" yaml:"risk"`
}

func NewRiskView(r assess.RiskAssessment) RiskView {
	return RiskView{
		AssessmentView: NewAssessmentView(r.Assessment),
		AssetValue:     r.AssetValue,
		OccurrenceRate: r.OccurrenceRate,
		Risk:           valuePtr(r.Risk),
	}
}

type BatchView struct {
	Date               string           `json:"date" yaml:"date"`
	Assessments        []AssessmentView `json:"assessments" yaml:"assessments"`
	Skipped            []string         `json:"skipped" yaml:"skipped"`
	MeanExposureFactor float64          `json:"meanExposureFactor" yaml:"meanExposureFactor"`
	AssetValue         float64          `json:"assetValue" yaml:"assetValue"`
	OccurrenceRate     float64          `json:"occurrenceRate" yaml:"occurrenceRate"`
	Risk               float64          `json:"risk" yaml:"risk"`
}

func NewBatchView(b assess.BatchResult) BatchView {
	return BatchView{
		Date:               formatDate(b.Date),
		Assessments:        lo.Map(b.Assessments, func(a assess.Assessment, _ int) AssessmentView { return NewAssessmentView(a) }),
		Skipped:            lo.Ternary(b.Skipped == nil, []string{}, b.Skipped),
		MeanExposureFactor: b.MeanExposureFactor,
		AssetValue:         b.AssetValue,
		OccurrenceRate:     b.OccurrenceRate,
		Risk:               b.Risk,
	}
}

type PointView struct {
	Date           string   `json:"date" yaml:"date"`
	Kind           string   `json:"kind" yaml:"kind"`
	ExposureFactor *float64 `json:"exposureFactor" yaml:"exposureFactor"`
	Error          string   `json:"error,omitempty" yaml:"error,omitempty"`
}

type TimelineView struct {
	CVE       string      `json:"cve" yaml:"cve"`
	Disclosed string      `json:"disclosed" yaml:"disclosed"`
	KEVAdded  string      `json:"kevAdded,omitempty" yaml:"kevAdded,omitempty"`
	Points    []PointView `json:"points" yaml:"points"`
}

func NewTimelineView(t assess.Timeline) TimelineView {
	return TimelineView{
		CVE:       t.CVE,
		Disclosed: formatDate(t.Disclosed),
		KEVAdded:  formatDate(t.KEVAdded),
		Points: lo.Map(t.Points, func(p assess.Point, _ int) PointView {
			return PointView{
				Date:           formatDate(p.Date),
				Kind:           string(p.Kind),
				ExposureFactor: valuePtr(p.ExposureFactor),
				Error:          errString(p.Err),
			}
		}),
	}
}

// LEVView reports a cumulative estimate with its samples and the strongest one.
type LEVView struct {
	CVE         string       `json:"cve" yaml:"cve"`
	Date        string       `json:"date" yaml:"date"`
	Disclosed   string       `json:"disclosed,omitempty" yaml:"disclosed,omitempty"`
	Probability float64      `json:"probability" yaml:"probability"`
	Attempted   int          `json:"attempted" yaml:"attempted"`
	Retained    int          `json:"retained" yaml:"retained"`
	Peak        *lev.Sample  `json:"peak" yaml:"peak"`
	Samples     []lev.Sample `json:"samples" yaml:"samples"`
}

func NewLEVView(r composite.Result) LEVView {
	est := r.Cumulative
	v := LEVView{
		CVE:         r.CVE,
		Date:        formatDate(r.Date),
		Disclosed:   formatDate(r.Disclosed),
		Probability: est.Probability,
		Attempted:   est.Attempted,
		Retained:    est.Retained(),
		Samples:     lo.Ternary(est.Samples == nil, []lev.Sample{}, est.Samples),
	}
	if peak, ok := est.Peak(); ok {
		v.Peak = &peak
	}
	return v
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(feed.DateLayout)
}

func valuePtr(v score.Value) *float64 {
	if f, ok := v.Get(); ok {
		return &f
	}
	return nil
}

func observationPtr(o feed.Observation) *float64 {
	if f, ok := o.Get(); ok {
		return &f
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func formatValue(f *float64) string {
	if f == nil {
		return "not available"
	}
	return fmt.Sprintf("%.4f", *f)
}
