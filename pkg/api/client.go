package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energyadvisor/pkg/common"
	"github.com/raterudder/energyadvisor/pkg/log"
	"github.com/raterudder/energyadvisor/pkg/types"
)

// Endpoint is a path on the energy API relative to the base URL.
type Endpoint string

const (
	EndpointCurrentStatus   Endpoint = "/current-status"
	EndpointForecast        Endpoint = "/forecast"
	EndpointHistoricalData  Endpoint = "/historical-data"
	EndpointRecommendations Endpoint = "/recommendations"
)

// unwrapPaths lists the endpoints whose payload is nested inside an envelope.
// If the envelope doesn't match, the result is an empty list.
var unwrapPaths = map[Endpoint]string{
	EndpointHistoricalData:  "$.data",
	EndpointRecommendations: "$.suggestions",
}

const (
	defaultBaseURL      = "https://renergyapi-production-4b89.up.railway.app/api/v1"
	defaultMaxRetries   = 2
	defaultRetryBackoff = 2 * time.Second
)

// Params are query parameters. Nil values, including nil pointers, are
// omitted and other pointers are dereferenced.
type Params map[string]any

// Encode returns the query string with keys sorted. Two Params with the same
// encoding are considered the same request.
func (p Params) Encode() string {
	values := url.Values{}
	for k, v := range p {
		rv := reflect.ValueOf(v)
		for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
			if rv.IsNil() {
				rv = reflect.Value{}
				break
			}
			rv = rv.Elem()
		}
		if !rv.IsValid() {
			continue
		}
		values.Set(k, fmt.Sprint(rv.Interface()))
	}
	return values.Encode()
}

// Client talks to the energy API.
type Client struct {
	baseURL      string
	client       *http.Client
	maxRetries   int
	retryBackoff time.Duration
}

// NewClient returns a client for baseURL using the default retry policy.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = common.HTTPClient(30 * time.Second)
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       httpClient,
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
	}
}

// Configured sets up the API client from flags.
func Configured() *Client {
	c := &Client{}
	baseURL := lflag.String("api-base-url", defaultBaseURL, "Base URL of the energy management API")
	timeout := lflag.Duration("api-timeout", 30*time.Second, "Timeout for a single API request")
	maxRetries := lflag.Int("api-max-retries", defaultMaxRetries, "Automatic retries for 5xx responses")
	retryBackoff := lflag.Duration("api-retry-backoff", defaultRetryBackoff, "Backoff multiplied by the retry attempt number")

	lflag.Do(func() {
		c.baseURL = strings.TrimRight(*baseURL, "/")
		c.client = common.HTTPClient(*timeout)
		c.maxRetries = *maxRetries
		c.retryBackoff = *retryBackoff
		if err := c.Validate(); err != nil {
			panic(fmt.Sprintf("api client validation failed: %v", err))
		}
	})

	return c
}

// Validate ensures the configuration is valid.
func (c *Client) Validate() error {
	if c.baseURL == "" {
		return fmt.Errorf("api-base-url is required")
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("failed to parse api url (%s): %w", c.baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url must be http or https: %s", c.baseURL)
	}
	if c.maxRetries < 0 {
		return fmt.Errorf("api-max-retries cannot be negative")
	}
	return nil
}

// SetRetryPolicy overrides the number of 5xx retries and the backoff unit.
func (c *Client) SetRetryPolicy(maxRetries int, backoff time.Duration) {
	c.maxRetries = maxRetries
	c.retryBackoff = backoff
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) url(endpoint Endpoint, params Params) (string, error) {
	u, err := url.Parse(c.baseURL + string(endpoint))
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// Get fetches endpoint and decodes the unwrapped payload into out.
func (c *Client) Get(ctx context.Context, endpoint Endpoint, params Params, out any) error {
	_, err := c.get(ctx, endpoint, params, out, nil)
	return err
}

// get runs one fetch cycle including retries. onRetry is called with the retry
// number before each retry is scheduled. It returns the number of retries made.
func (c *Client) get(ctx context.Context, endpoint Endpoint, params Params, out any, onRetry func(int)) (int, error) {
	u, err := c.url(endpoint, params)
	if err != nil {
		return 0, err
	}

	for attempt := 0; ; attempt++ {
		payload, err := c.do(ctx, u)
		var herr *HTTPError
		if errors.As(err, &herr) && herr.StatusCode >= 500 && attempt < c.maxRetries {
			retry := attempt + 1
			log.Ctx(ctx).WarnContext(
				ctx,
				"retrying api request",
				slog.String("url", u),
				slog.Int("status", herr.StatusCode),
				slog.Int("retry", retry),
			)
			if onRetry != nil {
				onRetry(retry)
			}
			t := time.NewTimer(c.retryBackoff * time.Duration(retry))
			select {
			case <-ctx.Done():
				t.Stop()
				return retry, ctx.Err()
			case <-t.C:
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				// superseded or shut down, not worth an error log
				return attempt, err
			}
			log.Ctx(ctx).ErrorContext(
				ctx,
				"api request failed",
				slog.String("url", u),
				slog.Int("retries", attempt),
				slog.Any("error", err),
			)
			return attempt, err
		}

		payload = unwrap(ctx, endpoint, payload)
		if out == nil {
			return attempt, nil
		}
		// round trip through json to land the generic payload in the typed value
		b, err := json.Marshal(payload)
		if err != nil {
			return attempt, fmt.Errorf("failed to encode %s payload: %w", endpoint, err)
		}
		if err := json.Unmarshal(b, out); err != nil {
			return attempt, fmt.Errorf("failed to decode %s payload: %w", endpoint, err)
		}
		return attempt, nil
	}
}

// do performs a single GET and returns the decoded JSON body.
func (c *Client) do(ctx context.Context, u string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	log.Ctx(ctx).DebugContext(ctx, "fetching", slog.String("url", u))

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	log.Ctx(ctx).DebugContext(ctx, "api response", slog.String("url", u), slog.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(resp)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isJSON(contentType) {
		return nil, &ContentTypeError{ContentType: contentType}
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return payload, nil
}

// unwrap pulls the list out of the endpoint's envelope. A mismatched envelope
// resolves to an empty list rather than an error.
func unwrap(ctx context.Context, endpoint Endpoint, payload any) any {
	path, ok := unwrapPaths[endpoint]
	if !ok {
		return payload
	}
	v, err := jsonpath.Get(path, payload)
	if err == nil {
		if list, ok := v.([]any); ok {
			return list
		}
	}
	log.Ctx(ctx).WarnContext(
		ctx,
		"endpoint returned unexpected structure",
		slog.String("endpoint", string(endpoint)),
		slog.String("path", path),
		slog.Any("keys", topLevelKeys(payload)),
	)
	return []any{}
}

func topLevelKeys(payload any) []string {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ping makes one GET to /current-status without retries. It returns nil for
// any 2xx response, an *HTTPError otherwise and a *NetworkError when the
// server could not be reached.
func (c *Client) Ping(ctx context.Context) error {
	u, err := c.url(EndpointCurrentStatus, nil)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp)
	}
	return nil
}

// CurrentStatus returns the current KPIs and energy mix.
func (c *Client) CurrentStatus(ctx context.Context) (types.CurrentStatus, error) {
	var s types.CurrentStatus
	err := c.Get(ctx, EndpointCurrentStatus, nil, &s)
	return s, err
}

// Forecast returns the next hour, today and week forecasts.
func (c *Client) Forecast(ctx context.Context) (types.Forecast, error) {
	var f types.Forecast
	err := c.Get(ctx, EndpointForecast, nil, &f)
	return f, err
}

// HistoricalQuery selects a range of historical data. Dates are YYYY-MM-DD.
type HistoricalQuery struct {
	StartDate        string
	EndDate          string
	AggregationLevel types.AggregationLevel
}

// DateLayout is the date format the API uses for query parameters.
const DateLayout = "2006-01-02"

// Validate checks that both dates are present and ordered and that the
// aggregation level, if set, is known.
func (q HistoricalQuery) Validate() error {
	if q.StartDate == "" || q.EndDate == "" {
		return errors.New("start_date and end_date are required")
	}
	start, err := time.Parse(DateLayout, q.StartDate)
	if err != nil {
		return errors.New("start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse(DateLayout, q.EndDate)
	if err != nil {
		return errors.New("end_date must be YYYY-MM-DD")
	}
	if start.After(end) {
		return errors.New("start_date cannot be after end_date")
	}
	if q.AggregationLevel != "" && !q.AggregationLevel.Valid() {
		return errors.New("aggregation_level must be hourly or daily")
	}
	return nil
}

// Params converts the query into request parameters.
func (q HistoricalQuery) Params() Params {
	p := Params{
		"start_date": q.StartDate,
		"end_date":   q.EndDate,
	}
	if q.AggregationLevel != "" {
		p["aggregation_level"] = string(q.AggregationLevel)
	}
	return p
}

// HistoricalData returns the data points for the query.
func (c *Client) HistoricalData(ctx context.Context, q HistoricalQuery) ([]types.HistoricalDataPoint, error) {
	var points []types.HistoricalDataPoint
	err := c.Get(ctx, EndpointHistoricalData, q.Params(), &points)
	return points, err
}

// RecommendationParams returns the parameters for the recommendations endpoint.
func RecommendationParams(goal types.OptimizationGoal, period types.Period) Params {
	return Params{
		"optimization_goal": string(goal),
		"period":            string(period),
	}
}

// Recommendations returns the suggestions for goal and period.
func (c *Client) Recommendations(ctx context.Context, goal types.OptimizationGoal, period types.Period) ([]types.Recommendation, error) {
	var recs []types.Recommendation
	err := c.Get(ctx, EndpointRecommendations, RecommendationParams(goal, period), &recs)
	return recs, err
}
