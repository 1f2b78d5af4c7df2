package epss

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"trivy-plugin-exposure-risk/internal/feed"
)

const (
	apiBaseURL     = "https://api.first.org/data/v1/epss"
	requestTimeout = 15 * time.Second
)

type epssResponse struct {
	Data []struct {
		CVE        string `json:"cve"`
		EPSS       string `json:"epss"`
		Date       string `json:"date"`
		Percentile string `json:"percentile"`
	} `json:"data"`
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Data holds EPSS score, percentile, and date for a CVE.
type Data struct {
	Score      float64
	Percentile float64
	Date       string
}

// Client fetches point-in-time EPSS scores from the FIRST API.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

// NewClient returns a client. A zero timeout uses the default.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = requestTimeout
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    apiBaseURL,
	}
}

// Score implements feed.ScoreFeed.
func (c *Client) Score(ctx context.Context, cveID string, date time.Time) (float64, error) {
	d, err := c.FetchOn(ctx, cveID, date)
	if err != nil {
		return 0, err
	}
	return d.Score, nil
}

// FetchOn returns the EPSS data published for cveID on date.
// It returns feed.ErrNoData when FIRST has no score for that day.
func (c *Client) FetchOn(ctx context.Context, cveID string, date time.Time) (Data, error) {
	params := url.Values{}
	params.Set("cve", cveID)
	params.Set("date", date.Format(feed.DateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Data{}, errors.Wrap(err, "epss request")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Data{}, feed.Unavailable(errors.Wrap(err, "epss request"))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Data{}, feed.Unavailable(errors.Errorf("epss api: status %s", resp.Status))
	}

	var body epssResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Data{}, feed.Unavailable(errors.Wrap(err, "epss decode"))
	}
	for _, d := range body.Data {
		if !strings.EqualFold(d.CVE, cveID) {
			continue
		}
		score, err := strconv.ParseFloat(d.EPSS, 64)
		if err != nil {
			return Data{}, feed.Unavailable(errors.Wrapf(err, "epss score %q", d.EPSS))
		}
		percentile, _ := strconv.ParseFloat(d.Percentile, 64)
		return Data{Score: score, Percentile: percentile, Date: d.Date}, nil
	}
	return Data{}, feed.ErrNoData
}
