// Package catalog is the Select Star metadata and lineage API client.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/selectstar/dbt-impact-report-action/internal/model"
)

const (
	identityQuery = "{guid,extra,table_type}"
	tableQuery    = "{guid,name,data_type,database{guid,name,data_source{guid,name,type}},schema{guid,name}}"
)

// lineageParams requests one-hop, rightward edges grouped by data source,
// with edges from other ETL and BI tools folded in.
var lineageParams = url.Values{
	"dbt_links":                {"true"},
	"direction":                {"right"},
	"group_by_data_source":     {"true"},
	"include_borderline_edges": {"true"},
	"looker_db_lineage":        {"true"},
	"looker_view_lineage":      {"true"},
	"max_depth":                {"1"},
	"mode":                     {"table"},
	"mode_lineage":             {"false"},
	"tableau_table_lineage":    {"true"},
}

// APIError is returned for any non-success response. It is not retried.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected response. URL %s. Code %d. Message %s", e.URL, e.StatusCode, e.Body)
}

// Client talks to the Select Star REST API.
type Client struct {
	httpClient     *http.Client
	apiURL         string
	token          string
	datasourceGUID string
	log            *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a Client. The default http.Client has no timeout.
func NewClient(apiURL, token, datasourceGUID string, opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{},
		apiURL:         strings.TrimRight(apiURL, "/"),
		token:          token,
		datasourceGUID: datasourceGUID,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get issues a GET and returns the body of a 200 response. When allowNotFound
// is set, a 404 yields a nil body and no error.
func (c *Client) get(ctx context.Context, path string, params url.Values, allowNotFound bool) ([]byte, error) {
	u := c.apiURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("User-Agent", model.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("closing response body", zap.Error(err), zap.String("url", u))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	c.log.Debug("catalog request", zap.String("url", u), zap.Int("status", resp.StatusCode))

	if allowNotFound && resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Method: http.MethodGet, URL: u, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// FindTables looks up catalogued tables by a batch of filenames within the
// configured data source.
func (c *Client) FindTables(ctx context.Context, filenames []string) ([]model.CatalogTable, error) {
	params := url.Values{
		"query":       {identityQuery},
		"filename":    {strings.Join(filenames, ",")},
		"datasources": {c.datasourceGUID},
	}
	body, err := c.get(ctx, "/v1/tables/", params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding table lookup: %w", err)
	}

	tables := make([]model.CatalogTable, 0, len(resp.Results))
	for _, raw := range resp.Results {
		t, err := model.ParseCatalogTable(raw)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// WarehouseMappings returns the warehouse links of a dbt model. The API
// answers either with a bare list or with a {results: [...]} page.
func (c *Client) WarehouseMappings(ctx context.Context, guid string) ([]model.WarehouseMapping, error) {
	body, err := c.get(ctx, "/v1/dbt/warehouse-link/"+url.PathEscape(guid)+"/", nil, false)
	if err != nil {
		return nil, err
	}

	raws, err := decodeList(body)
	if err != nil {
		return nil, fmt.Errorf("decoding warehouse links for %s: %w", guid, err)
	}

	mappings := make([]model.WarehouseMapping, 0, len(raws))
	for _, raw := range raws {
		m, err := model.ParseWarehouseMapping(raw)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// PhysicalTable returns the physical table detail, or nil when the table no
// longer exists.
func (c *Client) PhysicalTable(ctx context.Context, guid string) (*model.WarehousePhysicalTable, error) {
	body, err := c.get(ctx, "/v1/tables/"+url.PathEscape(guid)+"/", url.Values{"query": {tableQuery}}, true)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}
	return model.ParsePhysicalTable(body)
}

// Downstream returns the one-hop downstream consumers of a node.
func (c *Client) Downstream(ctx context.Context, guid string) ([]model.DownstreamConsumer, error) {
	body, err := c.get(ctx, "/v1/lineage/"+url.PathEscape(guid)+"/", lineageParams, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		TableLineage []json.RawMessage `json:"table_lineage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding lineage for %s: %w", guid, err)
	}

	consumers := make([]model.DownstreamConsumer, 0, len(resp.TableLineage))
	for _, raw := range resp.TableLineage {
		dc, err := model.ParseDownstreamConsumer(raw)
		var perr *model.ParseError
		if errors.As(err, &perr) && perr.Field == "guid" {
			c.log.Warn("skipping lineage entry without guid", zap.String("node", guid))
			continue
		}
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, dc)
	}
	return consumers, nil
}

func decodeList(body []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var page struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}
