// Package quotes turns market-data provider answers into tagged price results.
package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dyike/StockChat/internal/metrics"
	"github.com/dyike/StockChat/pkg/dataflows"
	"github.com/shopspring/decimal"
)

// Quote is the outcome of one price lookup. Exactly one of Price or Err is
// meaningful: Err != nil marks a failed lookup.
type Quote struct {
	Ticker string
	Price  decimal.Decimal
	Err    error
}

func (q Quote) OK() bool { return q.Err == nil }

// String renders the price, or the failure as user-facing text. Whole
// prices keep one decimal place: 150 prints as 150.0.
func (q Quote) String() string {
	if q.Err != nil {
		return fmt.Sprintf("Error fetching price for %s: %v", q.Ticker, q.Err)
	}
	if q.Price.Exponent() >= 0 || q.Price.Equal(q.Price.Truncate(0)) {
		return q.Price.StringFixed(1)
	}
	return q.Price.String()
}

// Fetcher resolves tickers to their most recent closing price.
type Fetcher struct {
	provider dataflows.Provider
	timeout  time.Duration
	logger   *slog.Logger
}

type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

func NewFetcher(provider dataflows.Provider, opts ...Option) *Fetcher {
	f := &Fetcher{
		provider: provider,
		timeout:  15 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetPrice never fails: provider errors come back inside the Quote.
func (f *Fetcher) GetPrice(ctx context.Context, ticker string) (q Quote) {
	q.Ticker = ticker
	symbol := strings.ToUpper(strings.TrimSpace(ticker))

	defer func() {
		if r := recover(); r != nil {
			q = Quote{Ticker: ticker, Err: fmt.Errorf("%v", r)}
		}
		result := "ok"
		if q.Err != nil {
			result = "error"
			f.logger.Warn("quote fetch failed", "ticker", symbol, "error", q.Err)
		}
		metrics.QuoteFetches.WithLabelValues(f.provider.Name(), result).Inc()
	}()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	price, err := f.provider.LatestClose(ctx, symbol)
	if err != nil {
		q.Err = err
		return q
	}
	q.Price = price.Round(2)
	return q
}

// Lookup exposes the provider's symbol check so the fetcher can serve as a
// classifier symbol checker.
func (f *Fetcher) Lookup(ctx context.Context, symbol string) (bool, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return f.provider.Lookup(ctx, symbol)
}

// Result holds quotes keyed by upper-cased ticker. A later
// Set for an existing key replaces its value but keeps its position.
type Result struct {
	order  []string
	quotes map[string]Quote
}

func NewResult() *Result {
	return &Result{quotes: make(map[string]Quote)}
}

func (r *Result) Set(key string, q Quote) {
	if _, ok := r.quotes[key]; !ok {
		r.order = append(r.order, key)
	}
	r.quotes[key] = q
}

func (r *Result) Get(key string) (Quote, bool) {
	q, ok := r.quotes[key]
	return q, ok
}

func (r *Result) Len() int { return len(r.order) }

func (r *Result) Keys() []string {
	return append([]string(nil), r.order...)
}

// Summary renders one line per ticker in first-seen order.
func (r *Result) Summary() string {
	lines := make([]string, 0, len(r.order))
	for _, key := range r.order {
		lines = append(lines, fmt.Sprintf("The latest price for %s is $%s", key, r.quotes[key]))
	}
	return strings.Join(lines, "\n")
}
