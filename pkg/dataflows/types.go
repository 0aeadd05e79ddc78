package dataflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/StockChat/config"
	"github.com/shopspring/decimal"
)

// Config is an alias for the main application config
type Config = config.Config

var (
	// ErrNoData means the provider answered but had no price for the symbol.
	ErrNoData = errors.New("no price data found")
	// ErrInvalidSymbol is returned before any request for malformed symbols.
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// Provider is a source of end-of-day prices.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// LatestClose returns the closing price of the most recent trading day.
	LatestClose(ctx context.Context, symbol string) (decimal.Decimal, error)
	// Lookup reports whether symbol resolves to a tradable instrument.
	Lookup(ctx context.Context, symbol string) (bool, error)
}

// Bar is one daily candle.
type Bar struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Close  decimal.Decimal `json:"close"`
}

// ValidateSymbol checks if a stock symbol is valid format
func ValidateSymbol(symbol string) error {
	symbol = NormalizeSymbol(symbol)
	if len(symbol) == 0 {
		return fmt.Errorf("symbol cannot be empty: %w", ErrInvalidSymbol)
	}
	if len(symbol) > 12 {
		return fmt.Errorf("symbol too long: %s: %w", symbol, ErrInvalidSymbol)
	}
	if strings.ContainsAny(symbol, " \t\n/?&#") {
		return fmt.Errorf("symbol contains illegal characters: %q: %w", symbol, ErrInvalidSymbol)
	}
	return nil
}

// NormalizeSymbol converts symbol to standard format
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// lastClose picks the newest bar with a positive close.
func lastClose(bars []Bar) (decimal.Decimal, error) {
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Close.IsPositive() {
			return bars[i].Close, nil
		}
	}
	return decimal.Zero, ErrNoData
}
