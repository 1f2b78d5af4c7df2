package epss

import "trivy-plugin-exposure-risk/internal/feed"

const (
	ThresholdUnproven   = 0.05
	ThresholdPoC        = 0.20
	ThresholdFunctional = 0.50
)

// ExploitMaturity maps an EPSS observation to the CVSS v3 Exploit Code Maturity
// letter (U, P, F, H). Anything but a present, non-negative score is Not Defined (X).
func ExploitMaturity(o feed.Observation) string {
	score, ok := o.Get()
	switch {
	case !ok || score < 0:
		return "X"
	case score < ThresholdUnproven:
		return "U"
	case score < ThresholdPoC:
		return "P"
	case score < ThresholdFunctional:
		return "F"
	default:
		return "H"
	}
}
