package assess

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"trivy-plugin-exposure-risk/internal/feed"
	"trivy-plugin-exposure-risk/internal/lev"
	"trivy-plugin-exposure-risk/internal/score"
)

// DefaultTimelineStep is the distance in days between regular timeline points.
const DefaultTimelineStep = 90

// PointKind labels notable timeline dates.
type PointKind string

const (
	Publication PointKind = "publication"
	KEV         PointKind = "kev"
	Today       PointKind = "today"
	Regular     PointKind = "regular"
)

// Point is the exposure factor on one date.
type Point struct {
	Date           time.Time
	Kind           PointKind
	ExposureFactor score.Value
	Err            error
}

// Timeline is the evolution of the exposure factor of a CVE since its disclosure.
type Timeline struct {
	CVE       string
	Disclosed time.Time
	// KEVAdded is zero when the CVE is not known exploited.
	KEVAdded time.Time
	Points   []Point
}

// Timeline evaluates cveID every step days from its disclosure until today,
// plus on the disclosure date, today and the date it was listed as known exploited.
// Dates whose exposure factor is unavailable are kept with their error.
func (a *Assessor) Timeline(ctx context.Context, cveID string, step int) (Timeline, error) {
	if step <= 0 {
		return Timeline{}, score.Invalid("timeline step must be a positive number of days, got %d", step)
	}
	rec, metaErr := a.metadata.Metadata(ctx, cveID)
	if metaErr != nil || rec.Published.IsZero() {
		return Timeline{}, fmt.Errorf("%w: publication date of %s: %v", score.ErrUnavailable, cveID, metaErr)
	}
	base := a.impact(cveID, rec, nil)
	if base.Err != nil {
		return Timeline{}, base.Err
	}

	today := a.Today()
	tl := Timeline{CVE: cveID, Disclosed: feed.Day(rec.Published)}
	dates, err := lev.SampleDates(tl.Disclosed, today, step)
	if err != nil {
		return Timeline{}, err
	}
	dates = append(dates, tl.Disclosed, today)

	if a.kevDates != nil {
		added, err := a.kevDates.DateAdded(ctx, cveID)
		if err == nil {
			tl.KEVAdded = feed.Day(added)
			dates = append(dates, tl.KEVAdded)
		} else {
			slog.Debug("no kev date", "cve", cveID, "err", err)
		}
	}

	slices.SortFunc(dates, func(x, y time.Time) int { return x.Compare(y) })
	dates = slices.CompactFunc(dates, func(x, y time.Time) bool { return x.Equal(y) })

	for _, d := range dates {
		d := d
		p := Point{Date: d, Kind: tl.kind(d, today)}
		res, err := a.exposureFactorAt(ctx, base, rec, nil, &d)
		if err != nil {
			return Timeline{}, err
		}
		p.ExposureFactor, p.Err = res.ExposureFactor, res.Err
		tl.Points = append(tl.Points, p)
	}
	return tl, nil
}

func (tl Timeline) kind(d, today time.Time) PointKind {
	switch {
	case d.Equal(tl.Disclosed):
		return Publication
	case !tl.KEVAdded.IsZero() && d.Equal(tl.KEVAdded):
		return KEV
	case d.Equal(today):
		return Today
	default:
		return Regular
	}
}
