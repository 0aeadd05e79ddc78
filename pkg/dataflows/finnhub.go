package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

// FinnhubClient handles Finnhub API operations
type FinnhubClient struct {
	client *resty.Client
	apiKey string
}

// FinnhubOption customizes a FinnhubClient.
type FinnhubOption func(*FinnhubClient)

// WithFinnhubBaseURL points the client at another host, mostly for tests.
func WithFinnhubBaseURL(url string) FinnhubOption {
	return func(fc *FinnhubClient) {
		fc.client.SetBaseURL(url)
	}
}

// NewFinnhubClient creates a new Finnhub client
func NewFinnhubClient(apiKey string, timeout time.Duration, opts ...FinnhubOption) (*FinnhubClient, error) {
	if apiKey == "" {
		return nil, errors.New("Finnhub API key not configured")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(finnhubBaseURL)
	client.SetTimeout(timeout)

	fc := &FinnhubClient{client: client, apiKey: apiKey}
	for _, opt := range opts {
		opt(fc)
	}
	return fc, nil
}

func (fc *FinnhubClient) Name() string { return "finnhub" }

// finnhubQuote is the /quote payload. Unknown symbols come back as all zeros.
type finnhubQuote struct {
	Current       float64 `json:"c"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

type finnhubProfile struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
}

// LatestClose returns the current price while the market is open and the
// last close otherwise; Finnhub's "c" field carries both.
func (fc *FinnhubClient) LatestClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return decimal.Zero, err
	}
	symbol = NormalizeSymbol(symbol)

	var q finnhubQuote
	if err := fc.get(ctx, "/quote", symbol, &q); err != nil {
		return decimal.Zero, err
	}
	if q.Current == 0 && q.Timestamp == 0 {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	if q.Current == 0 {
		return decimal.NewFromFloat(q.PreviousClose), nil
	}
	return decimal.NewFromFloat(q.Current), nil
}

// Lookup checks the company profile endpoint.
func (fc *FinnhubClient) Lookup(ctx context.Context, symbol string) (bool, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return false, err
	}
	symbol = NormalizeSymbol(symbol)

	var p finnhubProfile
	if err := fc.get(ctx, "/stock/profile2", symbol, &p); err != nil {
		return false, err
	}
	return p.Ticker != "", nil
}

func (fc *FinnhubClient) get(ctx context.Context, path, symbol string, out any) error {
	resp, err := fc.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"token":  fc.apiKey,
		}).
		Get(path)
	if err != nil {
		return fmt.Errorf("failed to fetch %s for %s: %w", path, symbol, err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}
