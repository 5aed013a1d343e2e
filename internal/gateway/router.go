// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// =============================================================================
// OPTIONS
// =============================================================================

const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of attempts for transient failures.
	DefaultMaxRetries = 3

	// DefaultMaxTokens is the reply cap sent to providers that require one.
	DefaultMaxTokens = 4096

	// DefaultGoogleURL is the Generative Language API base URL.
	DefaultGoogleURL = "https://generativelanguage.googleapis.com"

	// DefaultAnthropicURL is the Anthropic API base URL.
	DefaultAnthropicURL = "https://api.anthropic.com"
)

// Options configures the provider clients.
type Options struct {
	// Base URLs; empty means the provider default.
	OpenAIBaseURL    string
	GoogleBaseURL    string
	AnthropicBaseURL string

	// Timeout bounds non-streaming requests. Streams are bounded by ctx.
	Timeout time.Duration

	// MaxRetries is the number of attempts on 429 and 5xx before a body is read.
	MaxRetries int

	// MaxTokens caps replies on providers that require a cap.
	MaxTokens int

	// RequestsPerSecond limits calls per provider; 0 disables limiting.
	RequestsPerSecond float64
	Burst             int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// DefaultOptions returns options pointing at the public provider APIs.
func DefaultOptions() Options {
	return Options{
		GoogleBaseURL:     DefaultGoogleURL,
		AnthropicBaseURL:  DefaultAnthropicURL,
		Timeout:           DefaultTimeout,
		MaxRetries:        DefaultMaxRetries,
		MaxTokens:         DefaultMaxTokens,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// sharedStreamingClient has no timeout; streams are controlled via context.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// =============================================================================
// PROVIDER PORT
// =============================================================================

// provider is one vendor's client.
type provider interface {
	// complete answers prompt under system in a single request.
	complete(ctx context.Context, m model.Model, key, system, prompt string) (string, error)

	// stream starts a streamed reply.
	stream(ctx context.Context, req StreamRequest) (Stream, error)
}

// imageProvider is a provider that can render images.
type imageProvider interface {
	generateImage(ctx context.Context, prompt, key string) (Image, error)
}

// =============================================================================
// ROUTER
// =============================================================================

// Router implements Gateway by dispatching on the model's provider.
type Router struct {
	providers map[model.Provider]provider
	limiters  map[model.Provider]*rate.Limiter
	timeout   time.Duration
	logger    *slog.Logger
}

// NewRouter creates a router over the OpenAI, Google and Anthropic clients.
func NewRouter(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = sharedStreamingClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.GoogleBaseURL == "" {
		opts.GoogleBaseURL = DefaultGoogleURL
	}
	if opts.AnthropicBaseURL == "" {
		opts.AnthropicBaseURL = DefaultAnthropicURL
	}

	r := &Router{
		providers: map[model.Provider]provider{
			model.ProviderOpenAI:    newOpenAIProvider(opts),
			model.ProviderGoogle:    newGoogleProvider(opts),
			model.ProviderAnthropic: newAnthropicProvider(opts),
		},
		limiters: make(map[model.Provider]*rate.Limiter),
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		for _, p := range model.Providers {
			r.limiters[p] = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		}
	}
	return r
}

func (r *Router) provider(ctx context.Context, p model.Provider) (provider, error) {
	impl, ok := r.providers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, p)
	}
	if lim := r.limiters[p]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for %s rate limit: %w", p, err)
		}
	}
	return impl, nil
}

// ClassifyImageIntent implements Gateway.
func (r *Router) ClassifyImageIntent(ctx context.Context, text string, m model.Model, key string) (bool, error) {
	if !m.Has(model.CapImageOutput) {
		return false, nil
	}

	// Image-only models cannot answer the classifier; ask the provider's
	// text model with the same key instead.
	classifier := m
	if !m.Has(model.CapTextOutput) {
		tm, ok := model.TextModelFor(m.Provider)
		if !ok {
			return false, fmt.Errorf("%w: no text model for %s", ErrUnsupported, m.Provider)
		}
		classifier = tm
	}

	impl, err := r.provider(ctx, classifier.Provider)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	answer, err := impl.complete(ctx, classifier, key, imageIntentPrompt, text)
	if err != nil {
		return false, fmt.Errorf("classifying image intent: %w", err)
	}
	r.logger.Debug("image intent classified", "model", classifier.Name, "answer", answer)
	return expectsImage(answer), nil
}

// GenerateImage implements Gateway.
func (r *Router) GenerateImage(ctx context.Context, prompt, key string) (Image, error) {
	m, ok := model.Lookup(model.ImageModelName)
	if !ok {
		return Image{}, fmt.Errorf("%w: image model missing from catalog", ErrUnsupported)
	}
	impl, err := r.provider(ctx, m.Provider)
	if err != nil {
		return Image{}, err
	}
	gen, ok := impl.(imageProvider)
	if !ok {
		return Image{}, fmt.Errorf("%w: %s cannot generate images", ErrUnsupported, m.Provider)
	}
	r.logger.Info("generating image", "model", m.Name)
	return gen.generateImage(ctx, prompt, key)
}

// StreamText implements Gateway.
func (r *Router) StreamText(ctx context.Context, req StreamRequest) (Stream, error) {
	if !req.Model.Has(model.CapTextOutput) {
		return nil, fmt.Errorf("%w: %s does not produce text", ErrUnsupported, req.Model.Name)
	}
	impl, err := r.provider(ctx, req.Model.Provider)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("starting stream",
		"provider", req.Model.Provider,
		"model", req.Model.Name,
		"history", len(req.History),
		"grounding", req.Grounding)
	return impl.stream(ctx, req)
}

// GenerateTitle implements Gateway.
func (r *Router) GenerateTitle(ctx context.Context, firstText string, m model.Model, key string) (string, error) {
	impl, err := r.provider(ctx, m.Provider)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	title, err := impl.complete(ctx, m, key, titlePrompt, firstText)
	if err != nil {
		return "", fmt.Errorf("generating title: %w", err)
	}
	return title, nil
}

var _ Gateway = (*Router)(nil)
