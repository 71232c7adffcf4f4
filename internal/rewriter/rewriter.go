// Package rewriter generates SEO titles, keywords and descriptions for product
// names through a hosted language model.
package rewriter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 3.0
)

var ErrMissingAPIKey = fmt.Errorf("%w: AI API key is not configured", common.ErrUpstreamUnavailable)

// Credentials select the provider and account for one batch.
type Credentials struct {
	Provider string
	APIKey   string
	Model    string
}

// Result is the rewritten product copy. Category may be empty.
type Result struct {
	Title       string `json:"title"`
	Keywords    string `json:"keywords"`
	Description string `json:"description"`
	Slug        string `json:"slug"`
	Category    string `json:"category"`
}

// APIError is a non-2xx answer from a provider.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rewriter API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

type backend interface {
	complete(ctx context.Context, creds Credentials, system, user string) (string, error)
}

// Client rewrites product names. Calls are rate limited and go through a
// circuit breaker shared by all providers.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	backends   map[string]backend

	openAIBaseURL    string
	anthropicBaseURL string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets requests per second; burst equals the rounded-up rate.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		burst := int(rps)
		if float64(burst) < rps {
			burst++
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithOpenAIBaseURL(u string) Option {
	return func(c *Client) { c.openAIBaseURL = u }
}

func WithAnthropicBaseURL(u string) Option {
	return func(c *Client) { c.anthropicBaseURL = u }
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), int(DefaultRateLimit)),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rewriter",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	c.backends = map[string]backend{
		ProviderOpenAI:    &openAIBackend{httpClient: c.httpClient, baseURL: c.openAIBaseURL},
		ProviderAnthropic: &anthropicBackend{httpClient: c.httpClient, baseURL: c.anthropicBaseURL},
	}
	return c
}

// Rewrite produces SEO copy for a product name. It returns (nil, nil) when the
// model answered without a usable title.
func (c *Client) Rewrite(ctx context.Context, name string, creds Credentials) (*Result, error) {
	if creds.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	b, ok := c.backends[creds.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown AI provider %q", creds.Provider)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return b.complete(ctx, creds, systemPrompt, userPrompt(name))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	return parseResult(out.(string))
}
