// Package social resolves a provider access token, obtained by the client
// through the provider's own OAuth flow, into a stable provider identity.
package social

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/logging"
	"github.com/dmitrijs2005/travelplanner/internal/server/metrics"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

// Profile is the identity a provider vouches for. SubjectID is stable per
// provider; Email and Name may be empty.
type Profile struct {
	Provider  string
	SubjectID string
	Email     string
	Name      string
}

// maxBody caps how much of a provider response is read.
const maxBody = 1 << 20

// Verifier calls provider user-info endpoints. It holds no per-request
// state and is safe for concurrent use.
type Verifier struct {
	providers  map[string]Provider
	httpClient *http.Client
	timeout    time.Duration
	retries    uint64
	backoff    time.Duration
	metrics    *metrics.Metrics
	logger     logging.Logger
}

type Option func(*Verifier)

// WithHTTPClient sets the base client used under the oauth2 transport.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.httpClient = c }
}

// WithBackoff sets the pause between attempts.
func WithBackoff(d time.Duration) Option {
	return func(v *Verifier) { v.backoff = d }
}

// WithMetrics counts every provider call by outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// NewVerifier registers providers and bounds every attempt by timeout.
// Only ErrProviderUnavailable outcomes are retried, at most retries times.
func NewVerifier(providers []Provider, timeout time.Duration, retries int, logger logging.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		providers:  make(map[string]Provider, len(providers)),
		httpClient: http.DefaultClient,
		timeout:    timeout,
		backoff:    200 * time.Millisecond,
		logger:     logger.With("module", "social"),
	}
	if retries > 0 {
		v.retries = uint64(retries)
	}
	for _, p := range providers {
		v.providers[p.Name] = p
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Supported reports whether provider is registered.
func (v *Verifier) Supported(provider string) bool {
	_, ok := v.providers[strings.ToLower(provider)]
	return ok
}

// Verify asks provider who owns token.
//
// Errors:
//   - common.ErrInvalidProviderToken: unknown provider, empty token, the
//     provider rejected the token, or it returned no subject id.
//   - common.ErrProviderUnavailable: network failure, timeout, 5xx or 429,
//     after retries are used up.
func (v *Verifier) Verify(ctx context.Context, provider, token string) (*Profile, error) {
	p, ok := v.providers[strings.ToLower(provider)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider %q", common.ErrInvalidProviderToken, provider)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: empty token", common.ErrInvalidProviderToken)
	}

	var profile *Profile
	attempt := 0
	backoff := retry.WithMaxRetries(v.retries, retry.NewConstant(v.backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pr, err := v.fetch(ctx, p, token)
		v.metrics.ProviderCall(p.Name, err)
		if err != nil {
			if errors.Is(err, common.ErrProviderUnavailable) {
				v.logger.Warn(ctx, "provider call failed", "provider", p.Name, "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		profile = pr
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", common.ErrProviderUnavailable, err)
		}
		return nil, err
	}

	profile.Provider = p.Name
	return profile, nil
}

func (v *Verifier) fetch(ctx context.Context, p Provider, token string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", common.ErrProviderUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vals := range p.Header {
		req.Header[k] = vals
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrProviderUnavailable, p.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", common.ErrProviderUnavailable, p.Name, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s returned %d", common.ErrProviderUnavailable, p.Name, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s returned %d", common.ErrInvalidProviderToken, p.Name, resp.StatusCode)
	}

	profile, err := p.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrInvalidProviderToken, p.Name, err)
	}
	if profile.SubjectID == "" {
		return nil, fmt.Errorf("%w: %s returned no subject id", common.ErrInvalidProviderToken, p.Name)
	}
	return profile, nil
}
