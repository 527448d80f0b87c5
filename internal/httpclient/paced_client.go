package httpclient

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/seamline/ingest/errors"
)

// PacedClient wraps a SaferClient with a request-rate limiter. Used for
// calls against partner endpoints that throttle or ban aggressive clients.
type PacedClient struct {
	client  *SaferClient
	limiter *rate.Limiter
}

// NewPacedClient creates a rate-limited HTTP client.
// requestsPerMinute <= 0 means unlimited.
func NewPacedClient(timeout time.Duration, requestsPerMinute int) *PacedClient {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}

	return &PacedClient{
		client:  NewSaferClient(timeout),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// WrapPaced wraps an existing SaferClient with pacing. Used in tests to
// combine httptest servers with the rate limiter.
func WrapPaced(client *SaferClient, requestsPerMinute int) *PacedClient {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}

	return &PacedClient{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Get waits for rate-limiter clearance then performs a GET.
func (p *PacedClient) Get(ctx context.Context, urlStr string) (*http.Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	return p.client.Do(req)
}
