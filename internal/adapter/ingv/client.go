package ingv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-map-etl/internal/domain"
	"github.com/couchcryptid/quake-map-etl/internal/observability"
)

// DefaultBaseURL is the INGV FDSN event endpoint.
const DefaultBaseURL = "https://webservices.ingv.it/fdsnws/event/1/query"

// fdsnTime is the FDSN time layout. The service interprets it as UTC.
const fdsnTime = "2006-01-02T15:04:05"

// Query selects events from the FDSN event service. Zero fields are omitted
// from the request, leaving the server defaults in place.
type Query struct {
	Start  time.Time
	End    time.Time
	MinMag float64
	Limit  int
	Bounds *domain.BoundingBox
}

// Values encodes the query as FDSN request parameters. Times are truncated to
// the minute, so queries issued within the same minute share a cache entry.
func (q Query) Values() url.Values {
	v := url.Values{"format": {"geojson"}, "orderby": {"time"}}
	if !q.Start.IsZero() {
		v.Set("starttime", q.Start.UTC().Truncate(time.Minute).Format(fdsnTime))
	}
	if !q.End.IsZero() {
		v.Set("endtime", q.End.UTC().Truncate(time.Minute).Format(fdsnTime))
	}
	if q.MinMag > 0 {
		v.Set("minmag", strconv.FormatFloat(q.MinMag, 'f', -1, 64))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if b := q.Bounds; b != nil {
		v.Set("minlat", strconv.FormatFloat(b.MinLat, 'f', -1, 64))
		v.Set("maxlat", strconv.FormatFloat(b.MaxLat, 'f', -1, 64))
		v.Set("minlon", strconv.FormatFloat(b.MinLng, 'f', -1, 64))
		v.Set("maxlon", strconv.FormatFloat(b.MaxLng, 'f', -1, 64))
	}
	return v
}

// Source returns earthquake features matching a query.
type Source interface {
	Query(ctx context.Context, q Query) ([]domain.Feature, error)
}

// Client implements Source against the INGV FDSN event web service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an FDSN event client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Query fetches the events matching q. A 204 response means no event matched
// and yields an empty slice.
func (c *Client) Query(ctx context.Context, q Query) ([]domain.Feature, error) {
	start := time.Now()
	defer func() {
		c.metrics.FeedAPIDuration.Observe(time.Since(start).Seconds())
	}()

	features, err := c.doRequest(ctx, c.baseURL+"?"+q.Values().Encode())
	switch {
	case err != nil:
		c.metrics.FeedRequests.WithLabelValues("error").Inc()
		c.logger.Warn("ingv query failed", "error", err)
		return nil, err
	case len(features) == 0:
		c.metrics.FeedRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.FeedRequests.WithLabelValues("success").Inc()
	}
	c.logger.Debug("ingv query", "features", len(features), "duration", time.Since(start))
	return features, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.Feature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingv event request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return []domain.Feature{}, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ingv API error: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("ingv API returned an empty body")
	}
	features, err := domain.ParseFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if features == nil {
		features = []domain.Feature{}
	}
	return features, nil
}
