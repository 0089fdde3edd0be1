// Package ckanapi is a small client for the parts of the CKAN HTTP API the
// CSW sync reads: harvested dataset search, harvest object content and tag
// counts.
package ckanapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ckan/ckanext-spatial/pkg/domain"
)

// DefaultURL is the CKAN site used when none is given.
const DefaultURL = "http://localhost"

// PageSize is the number of datasets requested per search call.
const PageSize = 1000

// NormalizeURL strips every trailing slash and appends exactly one.
func NormalizeURL(raw string) string {
	return strings.TrimRight(raw, "/") + "/"
}

// Client talks to one CKAN site.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL. A nil httpClient gets a traced default.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{baseURL: NormalizeURL(baseURL), http: httpClient}
}

// BaseURL returns the normalised site URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type searchQuery struct {
	Fields string `json:"fl"`
	Query  string `json:"q"`
	Limit  int    `json:"limit"`
	Start  int    `json:"start"`
}

type searchResult struct {
	ID               string            `json:"id"`
	MetadataModified string            `json:"metadata_modified"`
	Extras           map[string]string `json:"extras"`
	HarvestObjectID  string            `json:"extras_harvest_object_id"`
	MetadataSource   string            `json:"extras_metadata_source"`
}

// SearchHarvested returns one page of harvested datasets starting at offset
// start. An empty slice marks the end of the results.
func (c *Client) SearchHarvested(ctx context.Context, start int) ([]domain.HarvestedDataset, error) {
	q, err := json.Marshal(searchQuery{
		Fields: "id,metadata_modified,extras_harvest_object_id,extras_metadata_source",
		Query:  `harvest_object_id:["" TO *]`,
		Limit:  PageSize,
		Start:  start,
	})
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "api/search/dataset?qjson="+url.QueryEscape(string(q)))
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWrongAPIResponse, err)
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, domain.ErrWrongAPIResponse
	}

	var resp struct {
		Results []searchResult `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWrongAPIResponse, err)
	}

	out := make([]domain.HarvestedDataset, 0, len(resp.Results))
	for _, r := range resp.Results {
		d := domain.HarvestedDataset{
			ID:               r.ID,
			MetadataModified: r.MetadataModified,
			HarvestObjectID:  r.HarvestObjectID,
			Source:           r.MetadataSource,
		}
		if v, ok := r.Extras["harvest_object_id"]; ok {
			d.HarvestObjectID = v
		}
		if v, ok := r.Extras["metadata_source"]; ok {
			d.Source = v
		}
		out = append(out, d)
	}
	return out, nil
}

// HarvestObject returns the raw content of a harvest object.
func (c *Client) HarvestObject(ctx context.Context, id string) ([]byte, error) {
	return c.get(ctx, "harvest/object/"+url.PathEscape(id))
}

// TagCounts returns every tag with the number of datasets using it.
func (c *Client) TagCounts(ctx context.Context) ([]domain.TagCount, error) {
	body, err := c.get(ctx, "api/tag_counts")
	if err != nil {
		return nil, err
	}

	var pairs [][]json.RawMessage
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWrongAPIResponse, err)
	}

	counts := make([]domain.TagCount, 0, len(pairs))
	for _, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("%w: tag count entry has %d items", domain.ErrWrongAPIResponse, len(p))
		}
		var tc domain.TagCount
		if err := json.Unmarshal(p[0], &tc.Name); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrWrongAPIResponse, err)
		}
		if err := json.Unmarshal(p[1], &tc.Count); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrWrongAPIResponse, err)
		}
		counts = append(counts, tc)
	}
	return counts, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/xml;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Redacted(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", req.URL.Redacted(), resp.StatusCode)
	}
	return body, nil
}
