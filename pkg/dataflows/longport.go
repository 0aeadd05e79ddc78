package dataflows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"
)

type LongportConfig struct {
	AppKey      string
	AppSecret   string
	AccessToken string
}

type LongportClient struct {
	quoteCtx *quote.QuoteContext
}

func NewLongportClient(conf LongportConfig) (*LongportClient, error) {
	if conf.AppKey == "" || conf.AppSecret == "" || conf.AccessToken == "" {
		return nil, errors.New("longport API credentials not configured")
	}

	lpConf, err := lpconfig.New(lpconfig.WithConfigKey(conf.AppKey, conf.AppSecret, conf.AccessToken))
	if err != nil {
		return nil, err
	}

	quoteContext, err := quote.NewFromCfg(lpConf)
	if err != nil {
		return nil, err
	}

	return &LongportClient{quoteCtx: quoteContext}, nil
}

func (lpc *LongportClient) Name() string { return "longport" }

// LatestClose reads the last few daily candles and returns the newest close.
func (lpc *LongportClient) LatestClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return decimal.Zero, err
	}
	symbol = longportSymbol(symbol)

	sticks, err := lpc.GetSticksWithDay(ctx, symbol, 5)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get candlesticks for %s: %w", symbol, err)
	}

	bars := make([]Bar, 0, len(sticks))
	for _, stick := range sticks {
		if stick == nil {
			continue
		}
		closePrice, _ := stick.Close.Float64()
		bars = append(bars, Bar{Symbol: symbol, Close: decimal.NewFromFloat(closePrice)})
	}
	price, err := lastClose(bars)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, err)
	}
	return price, nil
}

// Lookup reports whether Longport has static info for the symbol.
func (lpc *LongportClient) Lookup(ctx context.Context, symbol string) (bool, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return false, err
	}
	infos, err := lpc.GetStaticInfo(ctx, []string{longportSymbol(symbol)})
	if err != nil {
		return false, err
	}
	for _, info := range infos {
		if info != nil && info.Symbol != "" {
			return true, nil
		}
	}
	return false, nil
}

func (lpc *LongportClient) GetStaticInfo(ctx context.Context, symbols []string) ([]*quote.StaticInfo, error) {
	if lpc.quoteCtx != nil {
		return lpc.quoteCtx.StaticInfo(ctx, symbols)
	}
	return nil, errors.New("quote context is nil")
}

func (lpc *LongportClient) GetSticksWithDay(ctx context.Context, symbol string, count int) ([]*quote.Candlestick, error) {
	if lpc.quoteCtx != nil {
		return lpc.quoteCtx.Candlesticks(ctx, symbol, quote.PeriodDay, int32(count), quote.AdjustTypeNo)
	}
	return nil, errors.New("quote context is nil")
}

// longportSymbol qualifies bare tickers with the US market suffix.
func longportSymbol(symbol string) string {
	symbol = NormalizeSymbol(symbol)
	if !strings.Contains(symbol, ".") {
		symbol += ".US"
	}
	return symbol
}
