package dataflows

import (
	"context"
	"testing"

	"github.com/dyike/StockChat/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongportSymbol(t *testing.T) {
	assert.Equal(t, "AAPL.US", longportSymbol("aapl"))
	assert.Equal(t, "700.HK", longportSymbol("700.hk"))
}

func TestLongportClient_LatestClose(t *testing.T) {
	cfg := config.DefaultConfig()
	client, err := NewLongportClient(LongportConfig{
		AppKey:      cfg.LongportAppKey,
		AppSecret:   cfg.LongportAppSecret,
		AccessToken: cfg.LongportAccessToken,
	})
	if err != nil {
		t.Skipf("Skipping test due to missing Longport API credentials: %v", err)
	}

	ctx := context.Background()
	price, err := client.LatestClose(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, price.IsPositive())

	ok, err := client.Lookup(ctx, "700.HK")
	require.NoError(t, err)
	assert.True(t, ok)
}
