// Package fetch is the HTTP client shared by the perimeter downloaders:
// rate limited, guarded by a circuit breaker, and without retries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/observability"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects requests after
	// repeated upstream failures.
	ErrCircuitOpen = errors.New("circuit breaker open")
	errServerError = errors.New("server error")
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client issues GET requests against one upstream service.
type Client struct {
	name    string
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
}

// New creates a client for the upstream called name. rps is the request
// rate limit; fractional values allow less than one request per second.
// Breaker state changes are logged to logger.
func New(name string, timeout time.Duration, rps float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		name:    name,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "upstream", name, "from", from.String(), "to", to.String())
			},
		}),
		metrics: metrics,
	}
}

// Get fetches url and returns the open response body. The caller closes it.
// Client errors (4xx) come back as *StatusError without tripping the breaker.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	start := time.Now()
	result, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: GET %s: %d", errServerError, url, resp.StatusCode)
		}
		return resp, nil
	})
	c.metrics.DownloadDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metrics.DownloadRequests.WithLabelValues(c.name, "circuit_open").Inc()
		return nil, fmt.Errorf("%s: %w: %v", c.name, ErrCircuitOpen, err)
	}
	if err != nil {
		c.metrics.DownloadRequests.WithLabelValues(c.name, "error").Inc()
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		c.metrics.DownloadRequests.WithLabelValues(c.name, "error").Inc()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	c.metrics.DownloadRequests.WithLabelValues(c.name, "success").Inc()
	return resp.Body, nil
}

// GetBytes fetches url and reads the whole body.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}

// Download streams url into dst through a temp file in the same folder, so
// dst is either the previous file or the complete new one.
func (c *Client) Download(ctx context.Context, url, dst string) (int64, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, err
	}
	return n, nil
}
