package nvd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"trivy-plugin-exposure-risk/internal/feed"
)

const (
	nvdAPIBase     = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	requestTimeout = 15 * time.Second
)

// NVD allows 5 requests per 30 seconds without a key and 50 with one.
const (
	anonymousThrottle = 6 * time.Second
	keyedThrottle     = time.Second
)

type cvssMetric struct {
	Type     string `json:"type"`
	CVSSData struct {
		VectorString string  `json:"vectorString"`
		BaseScore    float64 `json:"baseScore"`
	} `json:"cvssData"`
}

type nvdResponse struct {
	Vulnerabilities []struct {
		CVE struct {
			ID           string `json:"id"`
			Published    string `json:"published"`
			Descriptions []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"descriptions"`
			Metrics struct {
				CVSSMetricV31 []cvssMetric `json:"cvssMetricV31"`
				CVSSMetricV30 []cvssMetric `json:"cvssMetricV30"`
				CVSSMetricV2  []cvssMetric `json:"cvssMetricV2"`
			} `json:"metrics"`
		} `json:"cve"`
	} `json:"vulnerabilities"`
}

// Credentials authenticate against the NVD API. The zero value is anonymous access.
type Credentials struct {
	APIKey string
}

// Client fetches CVE metadata from NVD.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	creds      Credentials
	limiter    *rate.Limiter
}

// NewClient returns a client throttled to the NVD rate limit that matches creds.
func NewClient(creds Credentials, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = requestTimeout
	}
	throttle := anonymousThrottle
	if creds.APIKey != "" {
		throttle = keyedThrottle
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    nvdAPIBase,
		creds:      creds,
		limiter:    rate.NewLimiter(rate.Every(throttle), 1),
	}
}

// Metadata implements feed.MetadataFeed. The vector is the primary CVSS v3.1
// vector, then v3.0, then v2. It returns feed.ErrNotFound for unknown CVEs.
func (c *Client) Metadata(ctx context.Context, cveID string) (feed.Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return feed.Record{}, feed.Unavailable(errors.Wrap(err, "nvd rate limit"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?cveId="+url.QueryEscape(cveID), nil)
	if err != nil {
		return feed.Record{}, errors.Wrap(err, "nvd request")
	}
	if c.creds.APIKey != "" {
		req.Header.Set("apiKey", c.creds.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return feed.Record{}, feed.Unavailable(errors.Wrap(err, "nvd request"))
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return feed.Record{}, errors.Wrap(feed.ErrNotFound, cveID)
	case http.StatusTooManyRequests:
		return feed.Record{}, feed.Unavailable(errors.New("nvd rate limit (429)"))
	default:
		return feed.Record{}, feed.Unavailable(errors.Errorf("nvd api: status %s", resp.Status))
	}

	var body nvdResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return feed.Record{}, feed.Unavailable(errors.Wrap(err, "nvd decode"))
	}
	if len(body.Vulnerabilities) == 0 {
		return feed.Record{}, errors.Wrap(feed.ErrNotFound, cveID)
	}

	cve := body.Vulnerabilities[0].CVE
	rec := feed.Record{ID: cve.ID}
	if rec.ID == "" {
		rec.ID = cveID
	}
	published, err := feed.ParseDate(cve.Published)
	if err != nil {
		return feed.Record{}, feed.Unavailable(errors.Wrapf(err, "nvd published date %q", cve.Published))
	}
	rec.Published = published

	for _, d := range cve.Descriptions {
		if d.Lang == "en" {
			rec.Description = d.Value
			break
		}
	}

	for _, metrics := range [][]cvssMetric{cve.Metrics.CVSSMetricV31, cve.Metrics.CVSSMetricV30, cve.Metrics.CVSSMetricV2} {
		if m, ok := pickMetric(metrics); ok {
			rec.Vector = strings.ReplaceAll(m.CVSSData.VectorString, `\/`, "/")
			rec.BaseScore = m.CVSSData.BaseScore
			break
		}
	}
	return rec, nil
}

// pickMetric prefers the Primary entry and falls back to the first one with a vector.
func pickMetric(entries []cvssMetric) (cvssMetric, bool) {
	var first *cvssMetric
	for i, e := range entries {
		if e.CVSSData.VectorString == "" {
			continue
		}
		if strings.EqualFold(e.Type, "Primary") {
			return e, true
		}
		if first == nil {
			first = &entries[i]
		}
	}
	if first != nil {
		return *first, true
	}
	return cvssMetric{}, false
}
