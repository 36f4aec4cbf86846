// Package ollama provides an embedding client for Ollama's HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/WessleyAI/wessley-docsearch/pkg/fn"
	"github.com/WessleyAI/wessley-docsearch/pkg/resilience"
)

// DefaultModel is the sentence embedding model used when none is configured.
const DefaultModel = "all-minilm"

// ErrBadResponse reports a response that cannot be used as an embedding.
var ErrBadResponse = errors.New("ollama: bad response")

// StatusError is a non-200 reply from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama embed: status %d: %s", e.Code, e.Body)
}

// EmbedClient embeds texts through Ollama's /api/embeddings endpoint, one
// request per text.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *resilience.Limiter
	breaker *resilience.Breaker
	retry   fn.RetryOpts
	log     *slog.Logger
}

// Option configures an EmbedClient.
type Option func(*EmbedClient)

// WithLimiter throttles outgoing requests.
func WithLimiter(l *resilience.Limiter) Option { return func(e *EmbedClient) { e.limiter = l } }

// WithBreaker guards requests with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option { return func(e *EmbedClient) { e.breaker = b } }

// WithRetry overrides the retry policy.
func WithRetry(opts fn.RetryOpts) Option { return func(e *EmbedClient) { e.retry = opts } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *EmbedClient) { e.log = l } }

// NewEmbedClient creates an Ollama embedding client.
func NewEmbedClient(baseURL, model string, timeout time.Duration, opts ...Option) *EmbedClient {
	if model == "" {
		model = DefaultModel
	}
	c := &EmbedClient{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: resilience.NewLimiter(resilience.LimiterOpts{}),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		retry:   fn.DefaultRetry,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.Retryable == nil {
		c.retry.Retryable = retryable
	}
	return c
}

// Name identifies the provider and model.
func (c *EmbedClient) Name() string { return "ollama/" + c.model }

// Model returns the configured model name.
func (c *EmbedClient) Model() string { return c.model }

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns one vector per text, in order.
func (c *EmbedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		r := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[[]float32] {
			return resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[[]float32] {
				if err := c.limiter.Wait(ctx); err != nil {
					return fn.Err[[]float32](err)
				}
				return fn.FromPair(c.embed(ctx, text))
			})
		})
		vec, err := r.Unwrap()
		if err != nil {
			return nil, fmt.Errorf("ollama embed [%d]: %w", i, err)
		}
		out[i] = vec
	}
	c.log.Debug("ollama embed done", "model", c.model, "texts", len(texts))
	return out, nil
}

func (c *EmbedClient) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedReq{Model: c.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	var result embedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %v: %w", err, ErrBadResponse)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding: %w", ErrBadResponse)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// retryable retries transport errors and 5xx/429 replies only.
func retryable(err error) bool {
	if errors.Is(err, ErrBadResponse) || errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}
