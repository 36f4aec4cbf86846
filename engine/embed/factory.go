package embed

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
	"github.com/WessleyAI/wessley-docsearch/pkg/ollama"
	"github.com/WessleyAI/wessley-docsearch/pkg/resilience"
)

// Provider names accepted by New.
const (
	ProviderTFIDF  = "tfidf"
	ProviderOllama = "ollama"
)

// Options selects and configures a provider.
type Options struct {
	Provider  string
	Model     string
	BaseURL   string
	BatchSize int
	// Rate caps remote requests per second; zero means unlimited.
	Rate    float64
	Timeout time.Duration
	Logger  *slog.Logger
}

// New builds the configured provider, wrapped for batching. The returned
// provider is scoped to one run.
func New(opts Options) (Provider, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var p Provider
	switch opts.Provider {
	case "", ProviderTFIDF:
		p = NewTFIDF()
	case ProviderOllama:
		breaker := resilience.NewBreaker(resilience.BreakerOpts{
			FailThreshold: 5,
			Timeout:       30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				log.Warn("embed: ollama breaker", "from", from.String(), "to", to.String())
			},
		})
		p = ollama.NewEmbedClient(opts.BaseURL, opts.Model, opts.Timeout,
			ollama.WithLimiter(resilience.NewLimiter(resilience.LimiterOpts{Rate: opts.Rate, Burst: 1})),
			ollama.WithBreaker(breaker),
			ollama.WithLogger(log),
		)
	default:
		return nil, fmt.Errorf("embed: unknown provider %q: %w", opts.Provider, domain.ErrMalformedInput)
	}

	log.Info("embedding provider ready", "provider", p.Name())
	return Batched(p, opts.BatchSize), nil
}
