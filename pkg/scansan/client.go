// Package scansan talks to the ScanSan property data API. Responses are
// cached durably so repeated lookups survive restarts, and a disabled
// client still resolves plain UK outward codes offline.
package scansan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jarz/rentagent/pkg/toolcache"
)

const (
	defaultBaseURL = "https://api.scansan.com"
	maxRetries     = 3
)

// outwardCode matches UK outward postcode districts like NW1, E14, SW1A.
var outwardCode = regexp.MustCompile(`^[A-Z]{1,2}\d{1,2}[A-Z]?$`)

type Client struct {
	baseURL  string
	apiKey   string
	enabled  bool
	http     *http.Client
	cache    toolcache.Store
	cacheTTL time.Duration

	// sleep is swappable in tests so backoff does not slow them down.
	sleep func(time.Duration)
}

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithCache(store toolcache.Store, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = store
		c.cacheTTL = ttl
	}
}

// NewClient builds a client. An empty apiKey puts the client in offline
// mode, where only the outward-code fallback works.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  defaultBaseURL,
		apiKey:   apiKey,
		enabled:  apiKey != "",
		http:     &http.Client{Timeout: 30 * time.Second},
		cacheTTL: toolcache.DefaultTTL,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request performs a GET against endpoint, consulting the durable cache
// first. Rate limits back off exponentially before giving up.
func (c *Client) request(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if !c.enabled {
		return nil, nil
	}

	cacheKey := c.cacheKey(endpoint, params)
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, cacheKey); ok {
			slog.Debug("ScanSan cache hit", "endpoint", endpoint)
			return cached, nil
		}
	}

	reqURL := c.baseURL + normalizeEndpoint(c.baseURL, endpoint)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Auth-Token", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.sleep(time.Second)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited by %s", endpoint)
			c.sleep(time.Duration(1<<attempt) * time.Second)
			continue
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("scansan %s: status %d", endpoint, resp.StatusCode)
		case readErr != nil:
			return nil, fmt.Errorf("scansan %s: reading response: %w", endpoint, readErr)
		}

		if c.cache != nil {
			if err := c.cache.Set(ctx, cacheKey, body, c.cacheTTL); err != nil {
				slog.Debug("ScanSan cache write failed", "endpoint", endpoint, "error", err)
			}
		}
		return body, nil
	}

	return nil, fmt.Errorf("scansan %s: %d attempts failed: %w", endpoint, maxRetries, lastErr)
}

func (c *Client) cacheKey(endpoint string, params url.Values) string {
	pairs := make([]string, 0, len(params))
	for k, vs := range params {
		pairs = append(pairs, k+"="+strings.Join(vs, ","))
	}
	sort.Strings(pairs)
	return toolcache.Key("scansan:"+endpoint, fmt.Sprintf(`{"params":%q}`, strings.Join(pairs, "&")))
}

// normalizeEndpoint keeps /v1 from doubling when the configured base URL
// already carries the version segment.
func normalizeEndpoint(base, endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	if strings.HasSuffix(base, "/v1") && strings.HasPrefix(endpoint, "/v1/") {
		return strings.TrimPrefix(endpoint, "/v1")
	}
	return endpoint
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func unwrap(raw json.RawMessage) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	return env.Data, nil
}

// SearchAreaCodes resolves a free-text location query to an area code.
// Returns (nil, nil) when nothing matched.
func (c *Client) SearchAreaCodes(ctx context.Context, query string) (*ResolvedLocation, error) {
	raw, err := c.request(ctx, "/v1/area_codes/search", url.Values{"area_name": {query}})
	if err != nil {
		return nil, err
	}

	if raw == nil && !c.enabled {
		return offlineResolve(query), nil
	}
	if raw == nil {
		return nil, nil
	}

	data, err := unwrap(raw)
	if err != nil || data == nil {
		return nil, err
	}

	// The search payload nests area code objects inside an array of arrays.
	var groups [][]struct {
		AreaCode struct {
			District string   `json:"area_code_district"`
			List     []string `json:"area_code_list"`
		} `json:"area_code"`
		Ward []string `json:"ward"`
	}
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("decoding area code search: %w", err)
	}
	if len(groups) == 0 || len(groups[0]) == 0 {
		return nil, nil
	}

	first := groups[0][0]
	district := first.AreaCode.District
	ward := query
	if len(first.Ward) > 0 {
		ward = first.Ward[0]
	}

	return &ResolvedLocation{
		AreaCode:         district,
		AreaCodeDistrict: district,
		DisplayName:      fmt.Sprintf("%s, %s", ward, district),
	}, nil
}

// offlineResolve accepts outward codes (and full postcodes, keeping the
// outward part) when the API is unavailable.
func offlineResolve(query string) *ResolvedLocation {
	raw := strings.ToUpper(strings.TrimSpace(query))
	if raw == "" {
		return nil
	}
	outward := strings.Fields(raw)[0]
	if !outwardCode.MatchString(outward) {
		return nil
	}
	return &ResolvedLocation{
		AreaCode:         outward,
		AreaCodeDistrict: outward,
		DisplayName:      outward,
	}
}

// AreaSummary returns summary rent statistics for an area code.
func (c *Client) AreaSummary(ctx context.Context, areaCode string) (json.RawMessage, error) {
	raw, err := c.request(ctx, fmt.Sprintf("/v1/area_codes/%s/summary", areaCode), nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return unwrap(raw)
}

// RentListings returns current rental listings for an area code.
func (c *Client) RentListings(ctx context.Context, areaCode string) (json.RawMessage, error) {
	raw, err := c.request(ctx, fmt.Sprintf("/v1/area_codes/%s/rent/listings", areaCode), nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return unwrap(raw)
}

// SaleListings returns current sale listings for an area code.
func (c *Client) SaleListings(ctx context.Context, areaCode string) (json.RawMessage, error) {
	raw, err := c.request(ctx, fmt.Sprintf("/v1/area_codes/%s/sale/listings", areaCode), nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return unwrap(raw)
}

// DistrictDemand returns rental demand figures for a district.
func (c *Client) DistrictDemand(ctx context.Context, district string) (json.RawMessage, error) {
	raw, err := c.request(ctx, fmt.Sprintf("/v1/district/%s/rent/demand", district), nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return unwrap(raw)
}

// DistrictGrowth returns historical growth data for a district.
func (c *Client) DistrictGrowth(ctx context.Context, district string) (json.RawMessage, error) {
	raw, err := c.request(ctx, fmt.Sprintf("/v1/district/%s/growth", district), nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return unwrap(raw)
}

// SaleDemand returns sales demand figures for a district.
func (c *Client) SaleDemand(ctx context.Context, district string) (json.RawMessage, error) {
	raw, err := c.request(ctx, fmt.Sprintf("/v1/district/%s/sale/demand", district), nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return unwrap(raw)
}

// Amenities returns the nearest amenities for a postcode.
func (c *Client) Amenities(ctx context.Context, postcode string) (json.RawMessage, error) {
	clean := strings.ToUpper(strings.ReplaceAll(postcode, " ", ""))
	raw, err := c.request(ctx, fmt.Sprintf("/v1/postcode/%s/amenities", clean), nil)
	if err != nil || raw == nil {
		return nil, err
	}
	return unwrap(raw)
}

// Neighbors would return comparable nearby areas. The upstream API has no
// such endpoint, so callers always get an empty list.
func (c *Client) Neighbors(ctx context.Context, areaCode string, k int) ([]Neighbor, error) {
	slog.Debug("No neighbors endpoint upstream, returning empty list", "area_code", areaCode)
	return nil, nil
}
