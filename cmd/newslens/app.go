package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/TobiSchelling/newslens/internal/database"
	"github.com/TobiSchelling/newslens/internal/llm"
	"github.com/TobiSchelling/newslens/internal/monitor"
	"github.com/TobiSchelling/newslens/internal/pipeline"
	"github.com/TobiSchelling/newslens/internal/publish"
	"github.com/TobiSchelling/newslens/internal/retrieval"
	"github.com/TobiSchelling/newslens/internal/source"
	"github.com/TobiSchelling/newslens/internal/synthesize"
)

// app holds the collaborators built from the loaded config.
type app struct {
	db        *database.DB
	store     *retrieval.Store
	sources   *source.Provider
	pipeline  *pipeline.Pipeline
	publisher *publish.WordPress
	closers   []func() error
}

func newApp(ctx context.Context) (*app, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	a := &app{db: db, closers: []func() error{db.Close}}

	embedder := llm.CreateEmbedder(llm.EmbedderOptions{
		Provider:     cfg.Embedding.Provider,
		Model:        cfg.Embedding.Model,
		Dimension:    cfg.Embedding.Dimension,
		OllamaURL:    cfg.LLM.OllamaURL,
		OpenAIKeyEnv: cfg.LLM.OpenAIKeyEnv,
	})
	a.store, err = retrieval.New(ctx, db, embedder, cfg.Embedding.Dimension)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening retrieval store: %w", err)
	}

	registry, err := source.RegistryFromConfig(cfg.Sources)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sources = source.NewProvider(registry, searchers(), nil, nil)
	if cfg.Search.MaxResults > 0 {
		a.sources.MaxResults = cfg.Search.MaxResults
	}

	provider := llm.CreateProvider(llm.ProviderOptions{
		Provider:        cfg.LLM.Provider,
		Model:           cfg.LLM.Model,
		OllamaURL:       cfg.LLM.OllamaURL,
		OpenAIModel:     cfg.LLM.OpenAIModel,
		OpenAIKeyEnv:    cfg.LLM.OpenAIKeyEnv,
		AnthropicModel:  cfg.LLM.AnthropicModel,
		AnthropicKeyEnv: cfg.LLM.AnthropicKeyEnv,
		Temperature:     cfg.LLM.Temperature,
	})

	deps := pipeline.Deps{
		Sources:            a.sources,
		Store:              a.store,
		Synth:              synthesize.NewSynthesizer(provider),
		Reports:            db,
		RetrievalLimit:     cfg.Retrieval.Limit,
		RetrievalThreshold: cfg.Retrieval.Threshold,
	}
	if cfg.WordPressEnabled() {
		wp := publish.NewWordPress(cfg.WordPress)
		if wp.IsConfigured() {
			a.publisher = wp
			deps.Publisher = wp
		} else {
			slog.Warn("wordpress password not set", "env", cfg.WordPress.PasswordEnv)
		}
	}
	a.pipeline = pipeline.New(deps)
	return a, nil
}

func searchers() []source.Searcher {
	var out []source.Searcher
	if cfg.Search.Serper.Enabled {
		out = append(out, source.NewSerperClient(cfg.Search.Serper.APIKeyEnv))
	}
	if cfg.Search.NewsAPI.Enabled {
		out = append(out, source.NewNewsAPIClient(cfg.Search.NewsAPI.APIKeyEnv))
	}
	return out
}

// feedMonitor builds the monitor, backed by Redis when a URL is configured.
func (a *app) feedMonitor(ctx context.Context) (*monitor.Monitor, error) {
	var seen monitor.SeenSet
	if cfg.Monitor.RedisURL != "" {
		rs, err := monitor.NewRedisSeen(ctx, cfg.Monitor.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		seen = rs
	}
	return monitor.New(a.sources, a.store, seen), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closing resource failed", "error", err)
		}
	}
}

func openDB() (*database.DB, error) {
	if cfg.Store.Driver == "postgres" || cfg.Store.Driver == "postgresql" {
		return database.OpenDriver(cfg.Store.Driver, os.ExpandEnv(cfg.Store.DSN))
	}
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.OpenDriver(cfg.Store.Driver, filepath.Join(dataDir, "newslens.db"))
}

func storeTarget() string {
	if cfg.Store.Driver == "postgres" || cfg.Store.Driver == "postgresql" {
		return "postgres"
	}
	return filepath.Join(cfg.GetDataDir(), "newslens.db")
}
