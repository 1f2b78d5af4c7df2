// Package feed defines the contracts of the external threat-intelligence
// feeds and the tri-state observation the rest of the module works with.
package feed

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoData means the feed has no sample for the requested date.
	ErrNoData = errors.New("no data")
	// ErrNotFound means the feed does not know the requested CVE.
	ErrNotFound = errors.New("not found")
	// ErrFeedUnavailable marks network or service failures.
	ErrFeedUnavailable = errors.New("feed unavailable")
)

// DateLayout is the calendar date format used by every feed.
const DateLayout = "2006-01-02"

// Record is the vulnerability metadata needed for a single evaluation.
type Record struct {
	ID        string
	Published time.Time
	// Vector is the CVSS vector string the impact ratings come from.
	Vector      string
	BaseScore   float64
	Description string
}

// MetadataFeed returns vulnerability metadata for a CVE.
type MetadataFeed interface {
	Metadata(ctx context.Context, cveID string) (Record, error)
}

// ScoreFeed returns the point-in-time exploitation probability of a CVE on a date.
// It returns ErrNoData when the feed holds no sample for that date.
type ScoreFeed interface {
	Score(ctx context.Context, cveID string, date time.Time) (float64, error)
}

// KnownExploitedFeed returns the set of CVE ids listed as known exploited on or before date.
type KnownExploitedFeed interface {
	KnownExploitedAsOf(ctx context.Context, date time.Time) (map[string]struct{}, error)
}

// State of an observation.
type State int

const (
	Absent State = iota
	Present
	Failed
)

func (s State) String() string {
	switch s {
	case Present:
		return "present"
	case Failed:
		return "error"
	default:
		return "absent"
	}
}

// Observation is one signal as read from a feed: present with a value,
// absent, or failed with an error.
type Observation struct {
	State State
	Value float64
	Err   error
}

// Observe classifies the result of a feed call. ErrNoData and ErrNotFound
// become Absent, any other error becomes Failed.
func Observe(v float64, err error) Observation {
	switch {
	case err == nil:
		return Observation{State: Present, Value: v}
	case errors.Is(err, ErrNoData), errors.Is(err, ErrNotFound):
		return Observation{State: Absent}
	default:
		return Observation{State: Failed, Err: err}
	}
}

// Get returns the value and whether it is present.
func (o Observation) Get() (float64, bool) {
	return o.Value, o.State == Present
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a feed date. Timestamps are accepted and cut to their date part.
func ParseDate(s string) (time.Time, error) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Unavailable marks err as a feed failure while keeping the cause.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{err: err}
}

type unavailableError struct {
	err error
}

func (e *unavailableError) Error() string { return e.err.Error() }

func (e *unavailableError) Unwrap() []error { return []error{ErrFeedUnavailable, e.err} }
