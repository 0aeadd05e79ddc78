package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dyike/StockChat/config"
	"github.com/dyike/StockChat/internal/assistant"
	"github.com/dyike/StockChat/internal/classifier"
	"github.com/dyike/StockChat/internal/llm"
	"github.com/dyike/StockChat/internal/markup"
	"github.com/dyike/StockChat/internal/quotes"
	"github.com/dyike/StockChat/pkg/dataflows"
)

// Engine is everything one config produces. It is immutable once built.
type Engine struct {
	Config       config.Config
	Orchestrator *assistant.Orchestrator
	Fetcher      *quotes.Fetcher
	BuiltAt      time.Time
	Version      uint64
}

var engineSeq atomic.Uint64

// BuildEngine wires provider, fetcher, classifier, model client and renderer
// from cfg. cfg is expected to carry environment overrides already.
func BuildEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := dataflows.New(&cfg)
	if err != nil {
		return nil, fmt.Errorf("market data provider: %w", err)
	}
	fetcher := quotes.NewFetcher(provider,
		quotes.WithTimeout(cfg.QuoteTimeout()),
		quotes.WithLogger(logger),
	)

	client, err := llm.New(ctx, &cfg, logger)
	if err != nil {
		return nil, err
	}

	renderer, err := markup.New(cfg.Formatter)
	if err != nil {
		return nil, err
	}

	orch := assistant.New(
		classifier.New(fetcher, classifier.DefaultOptions(), logger),
		fetcher,
		client,
		assistant.WithModel(cfg.LLMModel),
		assistant.WithCallTimeout(cfg.LLMTimeout()),
		assistant.WithRenderer(renderer),
		assistant.WithLogger(logger),
	)

	return &Engine{
		Config:       cfg,
		Orchestrator: orch,
		Fetcher:      fetcher,
		BuiltAt:      time.Now(),
		Version:      engineSeq.Add(1),
	}, nil
}

func (e *Engine) Respond(ctx context.Context, query string) *assistant.Reply {
	return e.Orchestrator.Respond(ctx, query)
}

func (e *Engine) TokenDelay() time.Duration {
	return e.Config.TokenDelay()
}
