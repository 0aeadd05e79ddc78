package dataflows

import (
	"context"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
)

// YahooFinanceClient handles Yahoo Finance data operations
type YahooFinanceClient struct {
	backend finance.Backend
	// lookback is the window of daily bars requested; it must span a long
	// weekend or holiday so the newest trading day is always included.
	lookback time.Duration
	now      func() time.Time
}

type YahooOption func(*YahooFinanceClient)

// WithYahooBackend replaces the package-wide finance-go backend.
func WithYahooBackend(b finance.Backend) YahooOption {
	return func(yf *YahooFinanceClient) {
		if b != nil {
			yf.backend = b
		}
	}
}

// NewYahooFinanceClient creates a new Yahoo Finance client
func NewYahooFinanceClient(opts ...YahooOption) *YahooFinanceClient {
	yf := &YahooFinanceClient{
		backend:  finance.GetBackend(finance.YFinBackend),
		lookback: 7 * 24 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(yf)
	}
	return yf
}

func (yf *YahooFinanceClient) Name() string { return "yahoo" }

// LatestClose returns the close of the newest daily bar.
func (yf *YahooFinanceClient) LatestClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return decimal.Zero, err
	}
	symbol = NormalizeSymbol(symbol)

	bars, err := yf.dailyBars(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := lastClose(bars)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, err)
	}
	return price, nil
}

func (yf *YahooFinanceClient) dailyBars(ctx context.Context, symbol string) ([]Bar, error) {
	end := yf.now()
	start := end.Add(-yf.lookback)

	params := &chart.Params{
		Params:   finance.Params{Context: &ctx},
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	iter := chart.Client{B: yf.backend}.Get(params)

	result := make([]Bar, 0, 7)
	for iter.Next() {
		bar := iter.Bar()
		result = append(result, Bar{
			Symbol: symbol,
			Date:   time.Unix(int64(bar.Timestamp), 0),
			Close:  bar.Close,
		})
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
	}
	return result, nil
}

// Lookup asks the quote endpoint whether the symbol exists.
func (yf *YahooFinanceClient) Lookup(ctx context.Context, symbol string) (bool, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return false, err
	}
	symbol = NormalizeSymbol(symbol)

	iter := quote.Client{B: yf.backend}.ListP(&quote.Params{
		Params:  finance.Params{Context: &ctx},
		Symbols: []string{symbol},
	})
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return false, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
		}
		return false, nil
	}
	q := iter.Quote()
	return q != nil && q.Symbol != "", nil
}
