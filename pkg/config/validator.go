package config

import (
	"fmt"
	"log/slog"
	"net/url"
)

// ValidationError names an invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every invalid setting.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if c.Workers < 1 {
		add("workers", "workers must be positive")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		add("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		add("log.format", "format must be text or json")
	}

	switch c.Embedding.Provider {
	case "tfidf":
	case "ollama":
		if u, err := url.Parse(c.Embedding.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("embedding.base_url", "invalid Ollama base URL")
		}
		if c.Embedding.Model == "" {
			add("embedding.model", "model is required for ollama")
		}
	default:
		add("embedding.provider", fmt.Sprintf("unknown provider %q", c.Embedding.Provider))
	}
	if c.Embedding.BatchSize < 1 {
		add("embedding.batch_size", "batch_size must be positive")
	}
	if c.Embedding.Rate < 0 {
		add("embedding.rate", "rate must not be negative")
	}
	if c.Embedding.Timeout <= 0 {
		add("embedding.timeout", "timeout must be positive")
	}

	if c.Index.TopK < 1 {
		add("index.top_k", "top_k must be positive")
	}

	if c.Pgvector.URL != "" {
		if _, err := url.Parse(c.Pgvector.URL); err != nil {
			add("pgvector.url", "invalid database URL")
		}
	}
	if c.Neo4j.URI != "" && c.Neo4j.User == "" {
		add("neo4j.user", "user is required when neo4j.uri is set")
	}
	return errs
}
