// In CVSS 3.0/3.1, the Modified impact metrics MC, MI and MA can be applied to the base vector.
// The impact scorer reads them in place of C, I and A, so a caller can describe how much
// a vulnerability actually hurts in its own environment.
// refer to: https://www.first.org/cvss/v3-1/specification-document#Environmental-Metrics

package cvss

import (
	"fmt"
	"strings"
)

// ImpactOptions defines the modified impact values to apply to the vector.
type ImpactOptions struct {
	MC, MI, MA string
	Smart      bool
}

// Empty reports whether no modified impact was requested.
func (o ImpactOptions) Empty() bool {
	return o.MC == "" && o.MI == "" && o.MA == ""
}

var impactWeights = map[string]int{"H": 3, "L": 2, "N": 1}

var envToBaseMap = map[string]string{
	"MC": "C",
	"MI": "I",
	"MA": "A",
}

// ApplyImpact takes a base vector and appends the requested modified impact metrics.
// Vectors other than 3.0/3.1 are returned unchanged.
func ApplyImpact(baseVectorStr string, opts ImpactOptions) (string, error) {
	cvssVersion, err := GetCVSSVersion(baseVectorStr)
	if err != nil {
		return "", err
	}
	if cvssVersion != V30 && cvssVersion != V31 {
		return baseVectorStr, nil
	}

	var sb strings.Builder
	sb.WriteString(baseVectorStr)
	baseMetrics := parseBaseVector(baseVectorStr)

	modified := []struct{ Key, Val string }{
		{"MC", opts.MC}, {"MI", opts.MI}, {"MA", opts.MA},
	}
	for _, m := range modified {
		if m.Val == "" {
			continue
		}
		upperVal := strings.ToUpper(m.Val)
		if _, ok := baseMetrics[m.Key]; ok {
			// already present in the vector, go-cvss rejects duplicates
			continue
		}
		if shouldApplyMetric(m.Key, upperVal, baseMetrics, opts.Smart) {
			sb.WriteString(fmt.Sprintf("/%s:%s", m.Key, upperVal))
		}
	}

	out := sb.String()
	if _, err := GetCVSSVersion(out); err != nil {
		return "", err
	}
	return out, nil
}

// in smart mode a modified impact may only lower the base impact, never raise it
func shouldApplyMetric(metricKey, metricVal string, baseMetrics map[string]string, smart bool) bool {
	if metricVal == "X" || !smart {
		return true
	}
	baseVal, ok := baseMetrics[envToBaseMap[metricKey]]
	if !ok {
		return true
	}
	baseWeight, baseOk := impactWeights[baseVal]
	modWeight, modOk := impactWeights[metricVal]
	if baseOk && modOk && modWeight > baseWeight {
		return false
	}
	return true
}

// parseBaseVector splits "CVSS:3.1/AV:N/AC:L..." into {"AV":"N", "AC":"L"}
func parseBaseVector(vector string) map[string]string {
	m := make(map[string]string)
	vector = strings.TrimPrefix(vector, "CVSS:3.1/")
	vector = strings.TrimPrefix(vector, "CVSS:3.0/")
	for _, part := range strings.Split(vector, "/") {
		kv := strings.Split(part, ":")
		if len(kv) == 2 {
			m[kv[0]] = kv[1]
		}
	}
	return m
}
