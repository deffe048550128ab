// Package client provides the HTTP record fetcher used by batch tasks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/batchdl/pkg/fetch"
	"github.com/Sternrassler/batchdl/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for record requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchdl_http_requests_total",
		Help: "Total record requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchdl_http_request_duration_seconds",
		Help:    "Record request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchdl_http_errors_total",
		Help: "Total record request errors by class",
	}, []string{"class"})
)

// maxBodyBytes bounds the size of a decoded record.
const maxBodyBytes = 1 << 20

// Config holds the client configuration.
type Config struct {
	// BaseURL is the record endpoint; the decimal ID is appended to it.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per request. Zero uses DefaultTimeout.
	Timeout time.Duration

	// IDField is set on every returned record to the decimal ID.
	IDField string

	// PresenceField, when set, must appear in the body for the record to
	// count as found. A body without it is treated as absent.
	PresenceField string

	// RequiredFields must all appear in a found record.
	RequiredFields []string
}

// DefaultTimeout is the per-request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultConfig returns a configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "batchdl/1.0",
		Timeout:   DefaultTimeout,
		IDField:   "number",
	}
}

// Client fetches single records over HTTP. It implements fetch.Fetcher and
// performs exactly one request per call; retries belong to fetch.RetryingFetcher.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new record client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("base url must be http(s) (got %q)", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.IDField == "" {
		cfg.IDField = "number"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logging.NewLogger("record-client"),
	}, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// URL returns the request URL for id.
func (c *Client) URL(id int) string {
	return c.config.BaseURL + strconv.Itoa(id)
}

// Fetch implements fetch.Fetcher.
func (c *Client) Fetch(ctx context.Context, id int) (fetch.Record, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Debug().Err(err).Int("id", id).Msg("HTTP request failed")
		return nil, &fetch.ConnectionError{ID: id, Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusNoContent:
		return nil, fmt.Errorf("record %d: %w", id, fetch.ErrAbsent)
	case resp.StatusCode >= 400:
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Int("id", id).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Record request error")
		return nil, &StatusError{ID: id, StatusCode: resp.StatusCode, ErrorClass: class, Message: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		// The response started but the body was cut off.
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &fetch.ConnectionError{ID: id, Err: fmt.Errorf("read body: %w", err)}
	}

	record, err := decodeRecord(body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, fmt.Errorf("record %d: %w: %v", id, fetch.ErrMissingFields, err)
	}

	if c.config.PresenceField != "" {
		if _, ok := record[c.config.PresenceField]; !ok {
			return nil, fmt.Errorf("record %d has no %q: %w", id, c.config.PresenceField, fetch.ErrAbsent)
		}
	}
	for _, field := range c.config.RequiredFields {
		if _, ok := record[field]; !ok {
			errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
			return nil, fmt.Errorf("record %d: %w: %q", id, fetch.ErrMissingFields, field)
		}
	}

	record[c.config.IDField] = strconv.Itoa(id)
	return record, nil
}

// decodeRecord parses a flat JSON object. Scalars are stringified; null
// becomes the empty string. Nested values are rejected.
func decodeRecord(body []byte) (fetch.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if raw == nil {
		return nil, errors.New("body is not an object")
	}

	record := make(fetch.Record, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			record[k] = val
		case json.Number:
			record[k] = val.String()
		case bool:
			record[k] = strconv.FormatBool(val)
		case nil:
			record[k] = ""
		default:
			return nil, fmt.Errorf("field %q is not a scalar", k)
		}
	}
	return record, nil
}
