package nvd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"trivy-plugin-exposure-risk/internal/feed"
)

const log4shell = `{
  "resultsPerPage": 1,
  "totalResults": 1,
  "vulnerabilities": [{
    "cve": {
      "id": "CVE-2021-44228",
      "published": "2021-12-10T10:15:09.143",
      "descriptions": [
        {"lang": "es", "value": "Apache Log4j2 ..."},
        {"lang": "en", "value": "Apache Log4j2 JNDI features do not protect against attacker controlled LDAP."}
      ],
      "metrics": {
        "cvssMetricV31": [
          {"type": "Secondary", "cvssData": {"vectorString": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L", "baseScore": 9.0}},
          {"type": "Primary", "cvssData": {"vectorString": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H", "baseScore": 10.0}}
        ],
        "cvssMetricV2": [
          {"type": "Primary", "cvssData": {"vectorString": "AV:N/AC:M/Au:N/C:C/I:C/A:C", "baseScore": 9.3}}
        ]
      }
    }
  }]
}`

func newTestClient(t *testing.T, creds Credentials, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(creds, time.Second)
	c.BaseURL = srv.URL
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func TestNewClient(t *testing.T) {
	anon := NewClient(Credentials{}, 0)
	assert.Equal(t, requestTimeout, anon.HTTPClient.Timeout)
	assert.Equal(t, nvdAPIBase, anon.BaseURL)
	assert.Equal(t, rate.Every(anonymousThrottle), anon.limiter.Limit())

	keyed := NewClient(Credentials{APIKey: "secret"}, 3*time.Second)
	assert.Equal(t, 3*time.Second, keyed.HTTPClient.Timeout)
	assert.Equal(t, rate.Every(keyedThrottle), keyed.limiter.Limit())
}

func TestClientMetadata(t *testing.T) {
	t.Run("parses the primary v3.1 vector and publication date", func(t *testing.T) {
		c := newTestClient(t, Credentials{APIKey: "secret"}, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "CVE-2021-44228", r.URL.Query().Get("cveId"))
			assert.Equal(t, "secret", r.Header.Get("apiKey"))
			_, _ = w.Write([]byte(log4shell))
		})
		rec, err := c.Metadata(context.Background(), "CVE-2021-44228")
		require.NoError(t, err)
		assert.Equal(t, "CVE-2021-44228", rec.ID)
		assert.Equal(t, "2021-12-10", rec.Published.Format(feed.DateLayout))
		assert.Equal(t, "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H", rec.Vector)
		assert.Equal(t, 10.0, rec.BaseScore)
		assert.Contains(t, rec.Description, "JNDI")
	})

	t.Run("falls back to v2", func(t *testing.T) {
		c := newTestClient(t, Credentials{}, func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("apiKey"))
			_, _ = w.Write([]byte(`{"vulnerabilities":[{"cve":{"id":"CVE-2010-0001","published":"2010-01-14T19:30:00.000","metrics":{"cvssMetricV2":[{"type":"Primary","cvssData":{"vectorString":"AV:N/AC:L/Au:N/C:P/I:P/A:P","baseScore":7.5}}]}}}]}`))
		})
		rec, err := c.Metadata(context.Background(), "CVE-2010-0001")
		require.NoError(t, err)
		assert.Equal(t, "AV:N/AC:L/Au:N/C:P/I:P/A:P", rec.Vector)
	})

	t.Run("empty result is not found", func(t *testing.T) {
		c := newTestClient(t, Credentials{}, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"vulnerabilities":[]}`))
		})
		_, err := c.Metadata(context.Background(), "CVE-1999-9999")
		assert.ErrorIs(t, err, feed.ErrNotFound)
	})

	t.Run("rate limiting marks the feed unavailable", func(t *testing.T) {
		c := newTestClient(t, Credentials{}, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		_, err := c.Metadata(context.Background(), "CVE-2021-44228")
		assert.ErrorIs(t, err, feed.ErrFeedUnavailable)
	})
}

func TestPickMetric(t *testing.T) {
	var secondary, primary cvssMetric
	secondary.Type = "Secondary"
	secondary.CVSSData.VectorString = "a"
	primary.Type = "Primary"
	primary.CVSSData.VectorString = "b"

	m, ok := pickMetric([]cvssMetric{secondary, primary})
	require.True(t, ok)
	assert.Equal(t, "b", m.CVSSData.VectorString)

	m, ok = pickMetric([]cvssMetric{secondary})
	require.True(t, ok)
	assert.Equal(t, "a", m.CVSSData.VectorString)

	_, ok = pickMetric(nil)
	assert.False(t, ok)
}
