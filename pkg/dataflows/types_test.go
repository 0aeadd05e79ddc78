package dataflows

import (
	"testing"

	"github.com/dyike/StockChat/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSymbol(t *testing.T) {
	assert.NoError(t, ValidateSymbol("aapl"))
	assert.NoError(t, ValidateSymbol("BRK.B"))
	assert.ErrorIs(t, ValidateSymbol("  "), ErrInvalidSymbol)
	assert.ErrorIs(t, ValidateSymbol("ABCDEFGHIJKLMN"), ErrInvalidSymbol)
	assert.ErrorIs(t, ValidateSymbol("A/B"), ErrInvalidSymbol)
}

func TestLastCloseSkipsEmptyBars(t *testing.T) {
	bars := []Bar{
		{Close: decimal.RequireFromString("101.5")},
		{Close: decimal.RequireFromString("102.75")},
		{Close: decimal.Zero},
	}
	price, err := lastClose(bars)
	require.NoError(t, err)
	assert.Equal(t, "102.75", price.String())

	_, err = lastClose(nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := config.Defaults()
	p, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "yahoo", p.Name())

	cfg.MarketDataProvider = config.MarketFinnhub
	cfg.FinnhubAPIKey = "k"
	p, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "finnhub", p.Name())

	cfg.MarketDataProvider = config.MarketLongport
	_, err = New(cfg)
	assert.Error(t, err)

	cfg.MarketDataProvider = "bloomberg"
	_, err = New(cfg)
	assert.Error(t, err)
}
