package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dyike/StockChat/config"
)

type EngineBuilder func(context.Context, config.Config, *slog.Logger) (*Engine, error)

type Option func(*Runtime)

func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.builder = builder
		}
	}
}

// WithNotifier receives "engine.reloaded" and "engine.reload_failed" events
// with a JSON payload.
func WithNotifier(fn func(topic, payload string)) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithoutWatch skips the config file watcher, for one-shot commands.
func WithoutWatch() Option {
	return func(r *Runtime) {
		r.watch = false
	}
}

// Runtime holds the current Engine and swaps it whenever the config file
// changes. A failed rebuild keeps the previous engine.
type Runtime struct {
	cfgMgr *config.Manager
	engine atomic.Pointer[Engine]

	builder EngineBuilder
	notify  func(string, string)
	logger  *slog.Logger
	watch   bool
	cancel  context.CancelFunc
}

func NewRuntime(ctx context.Context, cfgMgr *config.Manager, opts ...Option) (*Runtime, error) {
	if cfgMgr == nil {
		return nil, fmt.Errorf("config manager is required")
	}

	rt := &Runtime{
		cfgMgr:  cfgMgr,
		builder: BuildEngine,
		logger:  slog.Default(),
		watch:   true,
	}

	for _, opt := range opts {
		opt(rt)
	}

	if err := rt.reload(ctx, cfgMgr.Effective()); err != nil {
		return nil, err
	}

	if !rt.watch {
		return rt, nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	if err := cfgMgr.Watch(watchCtx, func(ch config.Change) {
		if ch.CredentialsChanged() {
			rt.logger.Info("credentials changed, rebuilding clients")
		}
		if err := rt.reload(watchCtx, cfgMgr.Effective()); err != nil {
			rt.logger.Error("engine reload failed", "error", err)
		}
	}); err != nil {
		cancel()
		return nil, err
	}

	return rt, nil
}

func (r *Runtime) Engine() *Engine {
	return r.engine.Load()
}

func (r *Runtime) Close() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runtime) reload(ctx context.Context, cfg config.Config) error {
	engine, err := r.builder(ctx, cfg, r.logger)
	if err != nil {
		r.notifyFailure(err)
		return err
	}
	r.engine.Store(engine)
	r.logger.Info("engine ready",
		"version", engine.Version,
		"llm_provider", cfg.LLMProvider,
		"model", cfg.LLMModel,
		"market_data", cfg.MarketDataProvider,
	)
	r.notifySuccess(engine)
	return nil
}

func (r *Runtime) notifySuccess(engine *Engine) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"version":  engine.Version,
		"built_at": engine.BuiltAt.UTC().Format(time.RFC3339),
	})
	r.notify("engine.reloaded", string(payload))
}

func (r *Runtime) notifyFailure(err error) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
	})
	r.notify("engine.reload_failed", string(payload))
}
