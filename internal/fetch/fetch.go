// Package fetch implements spec §4.2's StorageFetcher: fetching bytes by
// ContentHash from a decentralized storage gateway, with timeout, retry
// across a gateway list, and a registry keyed by origin.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chainproof/verify/internal/contenthash"
	"github.com/chainproof/verify/internal/observability/metrics"
	"github.com/chainproof/verify/internal/verifyerr"
)

// DefaultTimeout is the per-attempt timeout applied to a single gateway
// request.
const DefaultTimeout = 30 * time.Second

// Fetcher fetches bytes for a ContentHash from one storage origin.
type Fetcher interface {
	Fetch(ctx context.Context, ch contenthash.ContentHash) ([]byte, error)
}

// GatewayFetcher tries an ordered list of gateway base URLs, each given
// DefaultTimeout (or Timeout, if set) to respond. A client error (4xx)
// fails immediately with fetch-permanent; network errors and 5xx move
// to the next gateway; exhausting the list yields fetch-unavailable.
type GatewayFetcher struct {
	Gateways []string
	Timeout  time.Duration
	Client   *http.Client
}

// NewGatewayFetcher builds a GatewayFetcher over the given base URLs,
// each of which is concatenated with the content hash's hex or raw form
// to build the request URL.
func NewGatewayFetcher(gateways []string) *GatewayFetcher {
	return &GatewayFetcher{
		Gateways: gateways,
		Timeout:  DefaultTimeout,
		Client:   &http.Client{},
	}
}

func (g *GatewayFetcher) timeout() time.Duration {
	if g.Timeout > 0 {
		return g.Timeout
	}
	return DefaultTimeout
}

func (g *GatewayFetcher) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

// Fetch implements Fetcher.
func (g *GatewayFetcher) Fetch(ctx context.Context, ch contenthash.ContentHash) ([]byte, error) {
	if len(g.Gateways) == 0 {
		return nil, verifyerr.New(verifyerr.KindFetchUnavailable, "no gateways configured")
	}

	suffix := gatewaySuffix(ch)
	var lastErr error
	for _, base := range g.Gateways {
		url := strings.TrimSuffix(base, "/") + "/" + suffix
		body, err := g.attempt(ctx, url)
		if err == nil {
			metrics.RecordFetchAttempt(string(ch.Origin), "success")
			return body, nil
		}
		if perr, ok := verifyerr.As(err); ok && perr.Kind == verifyerr.KindFetchPermanent {
			metrics.RecordFetchAttempt(string(ch.Origin), "permanent-failure")
			return nil, err
		}
		metrics.RecordFetchAttempt(string(ch.Origin), "retry")
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no gateways attempted")
	}
	return nil, verifyerr.Wrap(verifyerr.KindFetchUnavailable, lastErr)
}

func gatewaySuffix(ch contenthash.ContentHash) string {
	switch ch.Origin {
	case contenthash.OriginIPFS:
		return string(ch.Hash)
	default:
		return fmt.Sprintf("%x", ch.Hash)
	}
}

func (g *GatewayFetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := g.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, verifyerr.New(verifyerr.KindFetchPermanent, fmt.Sprintf("gateway returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}
	return body, nil
}

// Registry maps a ContentHash origin to the Fetcher that serves it.
type Registry struct {
	fetchers map[contenthash.Origin]Fetcher
}

// NewRegistry builds a Registry over explicit per-origin fetchers.
func NewRegistry(fetchers map[contenthash.Origin]Fetcher) *Registry {
	return &Registry{fetchers: fetchers}
}

// Resolve returns the Fetcher for origin, or a no-fetcher error.
func (r *Registry) Resolve(origin contenthash.Origin) (Fetcher, error) {
	f, ok := r.fetchers[origin]
	if !ok {
		return nil, verifyerr.New(verifyerr.KindNoFetcher, fmt.Sprintf("no fetcher registered for origin %q", origin))
	}
	return f, nil
}

// Fetch resolves the origin and fetches in one step.
func (r *Registry) Fetch(ctx context.Context, ch contenthash.ContentHash) ([]byte, error) {
	f, err := r.Resolve(ch.Origin)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, ch)
}
