// Package report reads Trivy JSON reports and renders assessments as a table,
// json or yaml. Unavailable values are rendered as null in json and yaml.
package report

import (
	"encoding/json"
	"io"

	"github.com/aquasecurity/trivy/pkg/types"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"trivy-plugin-exposure-risk/internal/assess"
)

// customKey is the entry of DetectedVulnerability.Custom the exposure factor is stored under.
const customKey = "ExposureFactor"

// Decode reads a Trivy JSON report.
func Decode(r io.Reader) (types.Report, error) {
	var rep types.Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return types.Report{}, errors.Wrap(err, "failed to parse trivy report")
	}
	return rep, nil
}

// CollectCVEIDs returns the deduplicated vulnerability IDs of a Trivy report, in report order.
func CollectCVEIDs(rep types.Report) []string {
	var out []string
	for _, res := range rep.Results {
		for _, vuln := range res.Vulnerabilities {
			if vuln.VulnerabilityID != "" {
				out = append(out, vuln.VulnerabilityID)
			}
		}
	}
	return lo.Uniq(out)
}

// Enrich stores the assessment of every vulnerability under Custom.ExposureFactor.
// Vulnerabilities without an assessment are left untouched.
func Enrich(rep *types.Report, assessments []assess.Assessment) {
	byID := lo.KeyBy(assessments, func(a assess.Assessment) string { return a.CVE })
	for i := range rep.Results {
		vulns := rep.Results[i].Vulnerabilities
		for j := range vulns {
			a, ok := byID[vulns[j].VulnerabilityID]
			if !ok {
				continue
			}
			setCustom(&vulns[j], NewAssessmentView(a))
		}
	}
}

func setCustom(vuln *types.DetectedVulnerability, view AssessmentView) {
	custom, ok := vuln.Custom.(map[string]any)
	if !ok || custom == nil {
		custom = make(map[string]any)
	}
	custom[customKey] = view
	vuln.Custom = custom
}
