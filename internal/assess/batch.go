package assess

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"trivy-plugin-exposure-risk/internal/risk"
	"trivy-plugin-exposure-risk/internal/score"
)

// DefaultWorkers caps the number of CVEs evaluated concurrently.
const DefaultWorkers = 4

// ErrNoAssessments is returned when no CVE of a batch has an exposure factor.
var ErrNoAssessments = errors.New("no exposure factor could be calculated")

// BatchResult is the risk of an asset exposed to several CVEs.
type BatchResult struct {
	Date        time.Time
	Assessments []Assessment
	// Skipped lists the CVEs without exposure factor.
	Skipped            []string
	MeanExposureFactor float64
	AssetValue         float64
	OccurrenceRate     float64
	Risk               float64
}

// Batch evaluates every CVE independently on the same date and combines the
// available exposure factors: risk = AV * mean(EF) * ARO.
func (a *Assessor) Batch(ctx context.Context, cveIDs []string, date *time.Time, asset Asset, workers int) (BatchResult, error) {
	av, err := risk.AssetValue(asset.C, asset.I, asset.A)
	if err != nil {
		return BatchResult{}, err
	}
	if workers <= 0 {
		return BatchResult{}, score.Invalid("workers must be positive, got %d", workers)
	}

	dn := a.Today()
	if date != nil {
		dn = *date
	}
	cveIDs = lo.Uniq(cveIDs)

	assessments := make([]Assessment, len(cveIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(len(cveIDs), workers)))
	for i, id := range cveIDs {
		i, id := i, id
		g.Go(func() error {
			res, err := a.ExposureFactor(gctx, id, &dn)
			if err != nil {
				return err
			}
			assessments[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	out := BatchResult{Date: dn, Assessments: assessments, AssetValue: av, OccurrenceRate: asset.OccurrenceRate}
	efs := make([]score.Value, 0, len(assessments))
	for _, res := range assessments {
		if !res.ExposureFactor.Available() {
			slog.Warn("skipping CVE, missing data", "cve", res.CVE, "err", res.Err)
			out.Skipped = append(out.Skipped, res.CVE)
			continue
		}
		efs = append(efs, res.ExposureFactor)
	}

	mean := risk.MeanExposureFactor(efs)
	if !mean.Available() {
		return out, ErrNoAssessments
	}
	out.MeanExposureFactor, _ = mean.Get()
	r, err := risk.Risk(av, mean, asset.OccurrenceRate)
	if err != nil {
		return out, err
	}
	out.Risk = r
	return out, nil
}
