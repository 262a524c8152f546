// Package server provides the live network backend: events are POSTed as
// gzipped JSON to the aisen collector API over HTTPS.
package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// DefaultEndpoint is the collector API base URL.
const DefaultEndpoint = "https://api.aisen.dev"

const (
	noticesPath = "/v1/notices"
	pingPath    = "/v1/ping"

	// maxErrorBody bounds how much of a failure response is kept for logs.
	maxErrorBody = 512
)

// ErrNoAPIKey is returned by Ping when the backend has no credentials.
var ErrNoAPIKey = errors.New("aisen: api key is required")

// Option configures the server backend.
type Option func(*Backend)

// WithEndpoint sets the collector base URL.
func WithEndpoint(endpoint string) Option {
	return func(b *Backend) {
		if endpoint != "" {
			b.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client, e.g. for tests or proxies.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Backend) {
		if client != nil {
			b.client = client
		}
	}
}

// WithTimeout bounds each HTTP request.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Backend) {
		if timeout > 0 {
			b.client.Timeout = timeout
		}
	}
}

// WithServerInfo sets the reporting host details sent with every notice.
func WithServerInfo(info ServerInfo) Option {
	return func(b *Backend) {
		b.server = info
	}
}

// WithoutCompression sends plain JSON bodies.
func WithoutCompression() Option {
	return func(b *Backend) {
		b.gzip = false
	}
}

// Backend delivers events to the collector API.
type Backend struct {
	apiKey   string
	endpoint string
	client   *http.Client
	server   ServerInfo
	gzip     bool
}

var _ aisen.Backend = (*Backend)(nil)

// New creates a server backend authenticating with apiKey.
func New(apiKey string, opts ...Option) *Backend {
	b := &Backend{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		gzip: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Endpoint returns the configured collector base URL.
func (b *Backend) Endpoint() string {
	return b.endpoint
}

// Ping performs the handshake: GET /v1/ping must answer 2xx.
func (b *Backend) Ping(ctx context.Context) error {
	if b.apiKey == "" {
		return ErrNoAPIKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+pingPath, nil)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	b.setHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ping: HTTP %d: %s", resp.StatusCode, errorBody(resp.Body))
	}
	return nil
}

// Deliver POSTs one notice. The status code decides the outcome; see
// aisen.Classify.
func (b *Backend) Deliver(ctx context.Context, event aisen.ErrorEvent) aisen.Response {
	body, err := b.encode(event)
	if err != nil {
		return aisen.Fatal(fmt.Errorf("encode notice: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+noticesPath, bytes.NewReader(body))
	if err != nil {
		return aisen.Fatal(fmt.Errorf("build request: %w", err))
	}
	b.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	if b.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return aisen.ResponseFor(0, fmt.Errorf("post notice: %w", err))
	}
	defer resp.Body.Close()

	var deliverErr error
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		deliverErr = fmt.Errorf("post notice: HTTP %d: %s", resp.StatusCode, errorBody(resp.Body))
	} else {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	}

	result := aisen.ResponseFor(resp.StatusCode, deliverErr)
	if result.Retryable {
		result.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return result
}

func (b *Backend) setHeaders(req *http.Request) {
	req.Header.Set("X-API-Key", b.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", aisen.NotifierName+"/"+aisen.Version)
}

func (b *Backend) encode(event aisen.ErrorEvent) ([]byte, error) {
	payload, err := json.Marshal(newNotice(event, b.server))
	if err != nil {
		return nil, err
	}
	if !b.gzip {
		return payload, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form. Unparseable or past values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		return max(at.Sub(now), 0)
	}
	return 0
}

func errorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}
