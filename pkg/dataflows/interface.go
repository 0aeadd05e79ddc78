package dataflows

import (
	"fmt"

	"github.com/dyike/StockChat/config"
)

// New builds the provider selected by cfg.MarketDataProvider.
func New(cfg *Config) (Provider, error) {
	switch cfg.MarketDataProvider {
	case "", config.MarketYahoo:
		return NewYahooFinanceClient(), nil
	case config.MarketFinnhub:
		return NewFinnhubClient(cfg.FinnhubAPIKey, cfg.QuoteTimeout())
	case config.MarketLongport:
		return NewLongportClient(LongportConfig{
			AppKey:      cfg.LongportAppKey,
			AppSecret:   cfg.LongportAppSecret,
			AccessToken: cfg.LongportAccessToken,
		})
	default:
		return nil, fmt.Errorf("unsupported market data provider %q", cfg.MarketDataProvider)
	}
}
