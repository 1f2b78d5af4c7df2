package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nvdLog4shell = `{
  "vulnerabilities": [{
    "cve": {
      "id": "CVE-2021-44228",
      "published": "2021-12-10T10:15:09.143",
      "metrics": {
        "cvssMetricV31": [
          {"type": "Primary", "cvssData": {"vectorString": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H", "baseScore": 10.0}}
        ]
      }
    }
  }]
}`

const kevCatalog = `{
  "vulnerabilities": [
    {"cveID": "CVE-2021-44228", "dateAdded": "2021-12-10"}
  ]
}`

type feeds struct {
	nvd, epss, kev *httptest.Server
}

func newFeeds(t *testing.T) feeds {
	t.Helper()
	f := feeds{
		nvd: httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("cveId") != "CVE-2021-44228" {
				_, _ = w.Write([]byte(`{"vulnerabilities": []}`))
				return
			}
			_, _ = w.Write([]byte(nvdLog4shell))
		})),
		epss: httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			fmt.Fprintf(w, `{"data":[{"cve":%q,"epss":"0.5","percentile":"0.9","date":%q}]}`, q.Get("cve"), q.Get("date"))
		})),
		kev: httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(kevCatalog))
		})),
	}
	t.Cleanup(func() {
		f.nvd.Close()
		f.epss.Close()
		f.kev.Close()
	})
	return f
}

func run(t *testing.T, f feeds, stdin string, args ...string) (string, error) {
	t.Helper()
	a := &app{
		v:     viper.New(),
		clock: func() time.Time { return time.Date(2021, 12, 20, 12, 0, 0, 0, time.UTC) },
	}
	root := newRootCommand(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args,
		"--logLevel", "error",
		"--nvd-api-key", "test",
		"--nvd-url", f.nvd.URL,
		"--epss-url", f.epss.URL,
		"--kev-url", f.kev.URL,
	))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	return v
}

func TestExposureFactorCommand(t *testing.T) {
	f := newFeeds(t)
	out, err := run(t, f, "", "ef", "CVE-2021-44228", "-o", "json")
	require.NoError(t, err)

	v := decode(t, out)
	assert.Equal(t, "2021-12-20", v["date"])
	assert.Equal(t, "CRITICAL", v["severity"])
	assert.InDelta(t, 0.56, v["impact"], 1e-9)
	assert.InDelta(t, 0.56*1.3, v["exposureFactor"], 1e-9)
	prob := v["probability"].(map[string]any)
	assert.Equal(t, true, prob["knownExploited"])
	assert.Equal(t, "H", prob["exploitMaturity"])
}

func TestRiskCommand(t *testing.T) {
	f := newFeeds(t)
	out, err := run(t, f, "", "risk", "CVE-2021-44228", "-o", "json", "--av-c", "3", "--av-i", "3", "--av-a", "3", "--aro", "2", "--lambda", "0")
	require.NoError(t, err)

	v := decode(t, out)
	assert.InDelta(t, 3.0, v["assetValue"], 1e-9)
	assert.InDelta(t, 3*0.56*2, v["risk"], 1e-9)
}

func TestRiskCommandRejectsInvalidParameters(t *testing.T) {
	f := newFeeds(t)
	_, err := run(t, f, "", "risk", "CVE-2021-44228", "--av-c", "4")
	assert.Error(t, err)

	_, err = run(t, f, "", "ef", "CVE-2021-44228", "--lambda", "2")
	assert.Error(t, err)
}

func TestLEVCommand(t *testing.T) {
	f := newFeeds(t)
	out, err := run(t, f, "", "lev", "CVE-2021-44228", "-o", "json")
	require.NoError(t, err)

	v := decode(t, out)
	// a single sample on the disclosure day, 11 of 30 days into its window
	assert.InDelta(t, 0.5*11.0/30, v["probability"], 1e-9)
	assert.EqualValues(t, 1, v["retained"])
	assert.Equal(t, "2021-12-10", v["disclosed"])
}

func TestTimelineCommand(t *testing.T) {
	f := newFeeds(t)
	out, err := run(t, f, "", "timeline", "CVE-2021-44228", "-o", "json", "--step", "5")
	require.NoError(t, err)

	v := decode(t, out)
	assert.Equal(t, "2021-12-10", v["kevAdded"])
	points := v["points"].([]any)
	require.Len(t, points, 3)
	assert.Equal(t, "publication", points[0].(map[string]any)["kind"])
	assert.Equal(t, "today", points[2].(map[string]any)["kind"])
}

func TestAssessCommand(t *testing.T) {
	f := newFeeds(t)
	trivyReport := `{"SchemaVersion": 2, "Results": [{"Target": "app", "Vulnerabilities": [
		{"VulnerabilityID": "CVE-2021-44228", "PkgName": "log4j-core"},
		{"VulnerabilityID": "CVE-2099-0001", "PkgName": "other"}
	]}]}`

	t.Run("batch risk", func(t *testing.T) {
		out, err := run(t, f, trivyReport, "assess", "-o", "json")
		require.NoError(t, err)
		v := decode(t, out)
		assert.Equal(t, []any{"CVE-2099-0001"}, v["skipped"])
		assert.InDelta(t, 0.56*1.3, v["meanExposureFactor"], 1e-9)
	})

	t.Run("enriched report", func(t *testing.T) {
		out, err := run(t, f, trivyReport, "assess", "--enrich")
		require.NoError(t, err)
		assert.Contains(t, out, `"ExposureFactor"`)
		assert.Contains(t, out, `"exposureFactor": 0.72`)
	})

	t.Run("empty report", func(t *testing.T) {
		_, err := run(t, f, `{"Results": []}`, "assess")
		assert.Error(t, err)
	})
}

func TestBatchCommandTable(t *testing.T) {
	f := newFeeds(t)
	out, err := run(t, f, "", "batch", "CVE-2021-44228")
	require.NoError(t, err)
	assert.Contains(t, out, "CVE-2021-44228")
	assert.Contains(t, out, "0.7280")
}
