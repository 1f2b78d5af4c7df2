package cvss

import (
	"fmt"
	"strings"

	dbTypes "github.com/aquasecurity/trivy-db/pkg/types"
	gocvss20 "github.com/pandatix/go-cvss/20"
	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"
	gocvss40 "github.com/pandatix/go-cvss/40"

	"trivy-plugin-exposure-risk/internal/score"
)

// Version of a CVSS vector.
type Version string

const (
	V20 Version = "CVSS 2.0"
	V30 Version = "CVSS 3.0"
	V31 Version = "CVSS 3.1"
	V40 Version = "CVSS 4.0"
)

// Given a Vector String, determine the CVSS Version and validate the vector.
// It could either be CVSS 2.0, 3.0, 3.1 or 4.0
func GetCVSSVersion(vector string) (Version, error) {
	switch {
	case strings.HasPrefix(vector, "CVSS:4.0"):
		if _, err := gocvss40.ParseVector(vector); err != nil {
			return "", fmt.Errorf("invalid CVSS 4.0 vector: %w", err)
		}
		return V40, nil

	case strings.HasPrefix(vector, "CVSS:3.1"):
		if _, err := gocvss31.ParseVector(vector); err != nil {
			return "", fmt.Errorf("invalid CVSS 3.1 vector: %w", err)
		}
		return V31, nil

	case strings.HasPrefix(vector, "CVSS:3.0"):
		if _, err := gocvss30.ParseVector(vector); err != nil {
			return "", fmt.Errorf("invalid CVSS 3.0 vector: %w", err)
		}
		return V30, nil

	default:
		if _, err := gocvss20.ParseVector(vector); err != nil {
			return "", fmt.Errorf("unknown or invalid vector format: %w", err)
		}
		return V20, nil
	}
}

type metricGetter interface {
	Get(abv string) (string, error)
}

// RatingsFromVector reads the confidentiality, integrity and availability
// impact ratings of a vector together with the rating scheme they belong to.
// For 3.x vectors a defined modified impact (MC, MI, MA) takes precedence
// over the base metric. CVSS 4.0 vectors have no mapping and are unavailable.
func RatingsFromVector(vector string) (Ratings, Scheme, error) {
	version, err := GetCVSSVersion(vector)
	if err != nil {
		return Ratings{}, "", fmt.Errorf("%w: %v", score.ErrUnavailable, err)
	}

	var (
		getter   metricGetter
		scheme   Scheme
		modified bool
	)
	switch version {
	case V20:
		getter, _ = gocvss20.ParseVector(vector)
		scheme = Legacy
	case V30:
		getter, _ = gocvss30.ParseVector(vector)
		scheme, modified = Modern, true
	case V31:
		getter, _ = gocvss31.ParseVector(vector)
		scheme, modified = Modern, true
	default:
		return Ratings{}, "", fmt.Errorf("%w: no impact mapping for %s", score.ErrUnavailable, version)
	}

	read := func(base string) string {
		if modified {
			if v, err := getter.Get("M" + base); err == nil && v != "" && v != "X" {
				return v
			}
		}
		v, err := getter.Get(base)
		if err != nil {
			return ""
		}
		return v
	}

	return Ratings{C: read("C"), I: read("I"), A: read("A")}, scheme, nil
}

// Given a CVSS base score, return the corresponding trivy-db severity.
// A score of 0.0 has no severity and is reported as unknown.
func SeverityOf(baseScore float64) dbTypes.Severity {
	switch {
	case baseScore >= 9.0 && baseScore <= 10.0:
		return dbTypes.SeverityCritical
	case baseScore >= 7.0:
		return dbTypes.SeverityHigh
	case baseScore >= 4.0:
		return dbTypes.SeverityMedium
	case baseScore >= 0.1:
		return dbTypes.SeverityLow
	default:
		return dbTypes.SeverityUnknown
	}
}
