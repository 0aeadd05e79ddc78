// Package assistant runs one chat turn: domain check, first model call,
// quote lookups for requested tickers, second model call, formatting.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/StockChat/internal/llm"
	"github.com/dyike/StockChat/internal/markup"
	"github.com/dyike/StockChat/internal/metrics"
	"github.com/dyike/StockChat/internal/quotes"
	"github.com/dyike/StockChat/internal/stream"
	"github.com/google/uuid"
)

const (
	RefusalText       = "I can only answer questions about stocks, cryptocurrency, or trading. Please ask about one of those topics!"
	NoResponseText    = "No response received from the API"
	UnprocessableText = "Error: Unable to process the response"
)

var errMissingTicker = errors.New("tool arguments carry no ticker")

type Outcome string

const (
	OutcomeRefused           Outcome = "refused"
	OutcomeAnswered          Outcome = "answered"
	OutcomeAnsweredWithTools Outcome = "answered_with_tools"
	OutcomeToolFallback      Outcome = "tool_fallback"
	OutcomeNoResponse        Outcome = "no_response"
	OutcomeUnprocessable     Outcome = "unprocessable"
)

// Failed reports whether the turn ended in one of the fixed error messages.
func (o Outcome) Failed() bool {
	return o == OutcomeNoResponse || o == OutcomeUnprocessable
}

type Classifier interface {
	IsInDomain(ctx context.Context, query string) bool
}

type PriceFetcher interface {
	GetPrice(ctx context.Context, ticker string) quotes.Quote
}

// Reply is the result of one turn. Its token sequence is computed up front.
type Reply struct {
	TurnID  string
	Outcome Outcome
	// Text is the formatted answer, or the fixed message for refusals and
	// errors.
	Text   string
	Quotes *quotes.Result
	tokens []string
}

func (r *Reply) Tokens() iter.Seq[string] {
	return stream.Seq(r.tokens)
}

// Content is what a consumer ends up with after reading every token.
func (r *Reply) Content() string {
	return strings.Join(r.tokens, "")
}

type Orchestrator struct {
	classifier  Classifier
	fetcher     PriceFetcher
	client      llm.Client
	renderer    markup.Renderer
	model       string
	callTimeout time.Duration
	tools       []*schema.ToolInfo
	logger      *slog.Logger
}

type Option func(*Orchestrator)

func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

// WithCallTimeout bounds each model call. Zero means no bound.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.callTimeout = d }
}

func WithRenderer(r markup.Renderer) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.renderer = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func New(classifier Classifier, fetcher PriceFetcher, client llm.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		classifier:  classifier,
		fetcher:     fetcher,
		client:      client,
		renderer:    markup.Subset{},
		callTimeout: 60 * time.Second,
		tools:       llm.DefaultTools(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Respond never returns an error: every failure becomes a reply carrying one
// of the fixed messages.
func (o *Orchestrator) Respond(ctx context.Context, query string) *Reply {
	reply := &Reply{TurnID: uuid.NewString()}
	logger := o.logger.With("turn_id", reply.TurnID)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("turn panicked", "panic", r)
			o.fixed(reply, OutcomeNoResponse, NoResponseText)
		}
		elapsed := time.Since(start)
		metrics.Turns.WithLabelValues(string(reply.Outcome)).Inc()
		metrics.TurnDuration.WithLabelValues(string(reply.Outcome)).Observe(elapsed.Seconds())
		logger.Info("turn finished", "outcome", reply.Outcome, "elapsed", elapsed)
	}()

	if !o.classifier.IsInDomain(ctx, query) {
		o.fixed(reply, OutcomeRefused, RefusalText)
		return reply
	}

	input, err := LoadPromptWithContext(promptFirstCall, map[string]string{"Query": query})
	if err != nil {
		logger.Error("first prompt unavailable", "error", err)
		o.fixed(reply, OutcomeNoResponse, NoResponseText)
		return reply
	}

	first, err := o.call(ctx, logger, "first", input)
	if err != nil || first == nil || len(first.Output) == 0 {
		o.fixed(reply, OutcomeNoResponse, NoResponseText)
		return reply
	}

	if calls := first.FunctionCalls(); len(calls) > 0 {
		o.resolveTools(ctx, logger, reply, query, calls)
		return reply
	}

	if text, ok := first.Output[0].Text(); ok && strings.TrimSpace(text) != "" {
		o.formatted(reply, OutcomeAnswered, text)
		return reply
	}

	o.fixed(reply, OutcomeUnprocessable, UnprocessableText)
	return reply
}

func (o *Orchestrator) resolveTools(ctx context.Context, logger *slog.Logger, reply *Reply, query string, calls []llm.OutputItem) {
	result := quotes.NewResult()
	for _, call := range calls {
		if call.Name != llm.StockPriceToolName {
			logger.Warn("ignoring unknown tool call", "name", call.Name, "call_id", call.CallID)
			continue
		}
		ticker, err := parseTicker(call.Arguments)
		if err != nil {
			logger.Warn("malformed tool arguments", "arguments", call.Arguments, "error", err)
			key := strings.TrimSpace(call.Arguments)
			result.Set(key, quotes.Quote{Ticker: key, Err: err})
			continue
		}
		result.Set(ticker, o.fetcher.GetPrice(ctx, ticker))
	}
	reply.Quotes = result

	summary := result.Summary()
	input, err := LoadPromptWithContext(promptSecondCall, map[string]string{
		"Query":       query,
		"ToolResults": summary,
	})
	if err != nil {
		logger.Error("second prompt unavailable", "error", err)
		o.formatted(reply, OutcomeToolFallback, summary)
		return
	}

	second, err := o.call(ctx, logger, "second", input)
	if err != nil {
		o.formatted(reply, OutcomeToolFallback, summary)
		return
	}
	if text := second.FirstText(); text != "" {
		o.formatted(reply, OutcomeAnsweredWithTools, text)
		return
	}
	o.formatted(reply, OutcomeToolFallback, summary)
}

func (o *Orchestrator) call(ctx context.Context, logger *slog.Logger, phase, input string) (*llm.Response, error) {
	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := o.client.Create(ctx, &llm.Request{
		Model:  o.model,
		Input:  input,
		Tools:  o.tools,
		Stream: false,
	})
	if err != nil {
		metrics.ModelCalls.WithLabelValues(phase, "error").Inc()
		logger.Error("model call failed", "phase", phase, "error", err)
		return nil, err
	}
	metrics.ModelCalls.WithLabelValues(phase, "ok").Inc()
	if resp == nil {
		resp = &llm.Response{}
	}

	attrs := []any{"phase", phase, "items", len(resp.Output), "elapsed", time.Since(start)}
	if resp.Usage != nil {
		attrs = append(attrs, "total_tokens", resp.Usage.TotalTokens)
	}
	logger.Debug("model call done", attrs...)
	return resp, nil
}

func (o *Orchestrator) fixed(reply *Reply, outcome Outcome, text string) {
	reply.Outcome = outcome
	reply.Text = text
	reply.tokens = stream.Fields(text)
}

func (o *Orchestrator) formatted(reply *Reply, outcome Outcome, text string) {
	reply.Outcome = outcome
	reply.Text = o.renderer.Render(text)
	reply.tokens = stream.Words(reply.Text)
}

func parseTicker(arguments string) (string, error) {
	var args llm.StockPriceArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", err
	}
	ticker := strings.ToUpper(strings.TrimSpace(args.Ticker))
	if ticker == "" {
		return "", errMissingTicker
	}
	return ticker, nil
}
