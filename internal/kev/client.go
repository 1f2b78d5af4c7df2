package kev

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"trivy-plugin-exposure-risk/internal/feed"
)

const (
	catalogURL     = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"
	requestTimeout = 15 * time.Second
)

// Catalog is the body of the CISA known exploited vulnerabilities feed.
type Catalog struct {
	Title           string  `json:"title"`
	CatalogVersion  string  `json:"catalogVersion"`
	DateReleased    string  `json:"dateReleased"`
	Count           int     `json:"count"`
	Vulnerabilities []Entry `json:"vulnerabilities"`
}

// Entry is a single catalog entry.
type Entry struct {
	CVEID                      string `json:"cveID"`
	VendorProject              string `json:"vendorProject"`
	Product                    string `json:"product"`
	VulnerabilityName          string `json:"vulnerabilityName"`
	DateAdded                  string `json:"dateAdded"`
	DueDate                    string `json:"dueDate"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
}

// Client reads the CISA KEV catalog. Each call downloads the catalog again.
type Client struct {
	HTTPClient *http.Client
	URL        string
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = requestTimeout
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		URL:        catalogURL,
	}
}

// Fetch downloads and decodes the catalog.
func (c *Client) Fetch(ctx context.Context) (Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return Catalog{}, errors.Wrap(err, "kev request")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Catalog{}, feed.Unavailable(errors.Wrap(err, "kev request"))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Catalog{}, feed.Unavailable(errors.Errorf("kev feed: status %s", resp.Status))
	}

	var catalog Catalog
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return Catalog{}, feed.Unavailable(errors.Wrap(err, "could not parse kev catalog"))
	}
	return catalog, nil
}

// KnownExploitedAsOf implements feed.KnownExploitedFeed. Entries whose
// dateAdded cannot be parsed are never considered listed.
func (c *Client) KnownExploitedAsOf(ctx context.Context, date time.Time) (map[string]struct{}, error) {
	catalog, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.ListedAsOf(date), nil
}

// DateAdded returns the day cveID was added to the catalog, or feed.ErrNotFound.
func (c *Client) DateAdded(ctx context.Context, cveID string) (time.Time, error) {
	catalog, err := c.Fetch(ctx)
	if err != nil {
		return time.Time{}, err
	}
	for _, e := range catalog.Vulnerabilities {
		if !strings.EqualFold(e.CVEID, cveID) {
			continue
		}
		added, err := feed.ParseDate(e.DateAdded)
		if err != nil {
			return time.Time{}, errors.Wrapf(feed.ErrNotFound, "kev dateAdded %q for %s", e.DateAdded, cveID)
		}
		return added, nil
	}
	return time.Time{}, errors.Wrap(feed.ErrNotFound, cveID)
}

// ListedAsOf returns the ids of entries added on or before date.
func (c Catalog) ListedAsOf(date time.Time) map[string]struct{} {
	limit := feed.Day(date)
	out := make(map[string]struct{}, len(c.Vulnerabilities))
	for _, e := range c.Vulnerabilities {
		added, err := feed.ParseDate(e.DateAdded)
		if err != nil {
			slog.Warn("could not parse dateAdded", "cve", e.CVEID, "date", e.DateAdded)
			continue
		}
		if added.After(limit) {
			continue
		}
		out[strings.ToUpper(e.CVEID)] = struct{}{}
	}
	return out
}
