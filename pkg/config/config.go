// Package config loads docsearch settings from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
)

// SearchPaths are tried in order when no config file is given.
var SearchPaths = []string{"docsearch.yaml", filepath.Join("config", "docsearch.yaml")}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Embedding struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	BatchSize int           `yaml:"batch_size"`
	Rate      float64       `yaml:"rate"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Index struct {
	TopK int `yaml:"top_k"`
}

type Metrics struct {
	// Addr serves /metrics during a run when set.
	Addr string `yaml:"addr"`
	// File receives the final metrics in text format when set.
	File string `yaml:"file"`
}

type Qdrant struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

type Pgvector struct {
	URL   string `yaml:"url"`
	Table string `yaml:"table"`
}

type Neo4j struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type NATS struct {
	URL string `yaml:"url"`
}

// Config is the full settings tree. Mirrors and events stay disabled while
// their address is empty.
type Config struct {
	BaseDir   string    `yaml:"base_dir"`
	Workers   int       `yaml:"workers"`
	Log       Log       `yaml:"log"`
	Embedding Embedding `yaml:"embedding"`
	Index     Index     `yaml:"index"`
	Metrics   Metrics   `yaml:"metrics"`
	Qdrant    Qdrant    `yaml:"qdrant"`
	Pgvector  Pgvector  `yaml:"pgvector"`
	Neo4j     Neo4j     `yaml:"neo4j"`
	NATS      NATS      `yaml:"nats"`
}

// Load reads path, or the first of SearchPaths that exists when path is
// empty, then applies .env, environment overrides and defaults. With no file
// at all the defaults are used.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		for _, p := range SearchPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	cfg := &Config{}
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	mergeWithEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: %s: %w", path, domain.ErrMissingFile)
	}
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %v: %w", path, err, domain.ErrMalformedInput)
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.BaseDir == "" {
		c.BaseDir = "."
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "tfidf"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "all-minilm"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://localhost:11434"
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 100
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = 30 * time.Second
	}
	if c.Index.TopK == 0 {
		c.Index.TopK = 5
	}
	if c.Qdrant.Collection == "" {
		c.Qdrant.Collection = "docsearch_sections"
	}
	if c.Pgvector.Table == "" {
		c.Pgvector.Table = "docsearch_sections"
	}
	if c.Neo4j.User == "" {
		c.Neo4j.User = "neo4j"
	}
}

func mergeWithEnv(c *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("DOCSEARCH_BASE_DIR", &c.BaseDir)
	str("DOCSEARCH_LOG_LEVEL", &c.Log.Level)
	str("DOCSEARCH_LOG_FORMAT", &c.Log.Format)
	str("DOCSEARCH_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("DOCSEARCH_METRICS_ADDR", &c.Metrics.Addr)
	str("DOCSEARCH_METRICS_FILE", &c.Metrics.File)
	str("OLLAMA_BASE_URL", &c.Embedding.BaseURL)
	str("OLLAMA_MODEL", &c.Embedding.Model)
	str("QDRANT_ADDR", &c.Qdrant.Addr)
	str("DATABASE_URL", &c.Pgvector.URL)
	str("NEO4J_URI", &c.Neo4j.URI)
	str("NEO4J_USER", &c.Neo4j.User)
	str("NEO4J_PASSWORD", &c.Neo4j.Password)
	str("NATS_URL", &c.NATS.URL)

	if v := os.Getenv("DOCSEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
}
