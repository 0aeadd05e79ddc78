package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dyike/StockChat/config"
)

var stringKeys = map[string]func(*config.Config, string){
	"llm_provider":          func(c *config.Config, v string) { c.LLMProvider = v },
	"llm_model":             func(c *config.Config, v string) { c.LLMModel = v },
	"llm_base_url":          func(c *config.Config, v string) { c.LLMBaseURL = v },
	"openai_api_key":        func(c *config.Config, v string) { c.OpenAIAPIKey = v },
	"deepseek_api_key":      func(c *config.Config, v string) { c.DeepSeekAPIKey = v },
	"market_data_provider":  func(c *config.Config, v string) { c.MarketDataProvider = v },
	"finnhub_api_key":       func(c *config.Config, v string) { c.FinnhubAPIKey = v },
	"longport_app_key":      func(c *config.Config, v string) { c.LongportAppKey = v },
	"longport_app_secret":   func(c *config.Config, v string) { c.LongportAppSecret = v },
	"longport_access_token": func(c *config.Config, v string) { c.LongportAccessToken = v },
	"formatter":             func(c *config.Config, v string) { c.Formatter = v },
	"http_addr":             func(c *config.Config, v string) { c.HTTPAddr = v },
	"log_level":             func(c *config.Config, v string) { c.LogLevel = v },
}

var intKeys = map[string]func(*config.Config, int){
	"llm_timeout_sec":   func(c *config.Config, v int) { c.LLMTimeoutSec = v },
	"max_tokens":        func(c *config.Config, v int) { c.MaxTokens = v },
	"quote_timeout_sec": func(c *config.Config, v int) { c.QuoteTimeoutSec = v },
	"token_delay_ms":    func(c *config.Config, v int) { c.TokenDelayMs = v },
	"eino_debug_port":   func(c *config.Config, v int) { c.EinoDebugPort = v },
}

var boolKeys = map[string]func(*config.Config, bool){
	"debug":              func(c *config.Config, v bool) { c.Debug = v },
	"eino_debug_enabled": func(c *config.Config, v bool) { c.EinoDebugEnabled = v },
}

// SetConfigValue sets a configuration value by key and writes the file. The
// manager validates the result, so an invalid value leaves the file as it
// was.
func SetConfigValue(mgr *config.Manager, key, value string) error {
	cfg := mgr.Get()
	key = strings.ToLower(strings.TrimSpace(key))

	if set, ok := stringKeys[key]; ok {
		set(&cfg, value)
	} else if set, ok := intKeys[key]; ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer", key)
		}
		set(&cfg, i)
	} else if set, ok := boolKeys[key]; ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false", key)
		}
		set(&cfg, b)
	} else {
		return fmt.Errorf("unknown configuration key: %s (valid keys: %s)", key, strings.Join(ListAvailableKeys(), ", "))
	}

	return mgr.Update(cfg)
}

// ValidateConfiguration lists problems that will stop a command later on.
func ValidateConfiguration(cfg config.Config) []string {
	var warnings []string

	if err := cfg.Validate(); err != nil {
		warnings = append(warnings, err.Error())
	}
	if _, err := cfg.APIKey(); err != nil {
		warnings = append(warnings, cfg.APIKeyName()+" not configured")
	}

	switch cfg.MarketDataProvider {
	case config.MarketFinnhub:
		if cfg.FinnhubAPIKey == "" {
			warnings = append(warnings, "FINNHUB_API_KEY not configured")
		}
	case config.MarketLongport:
		if cfg.LongportAppKey == "" || cfg.LongportAppSecret == "" || cfg.LongportAccessToken == "" {
			warnings = append(warnings, "Longport credentials incomplete")
		}
	}

	if cfg.EinoDebugEnabled && (cfg.EinoDebugPort < 1024 || cfg.EinoDebugPort > 65535) {
		warnings = append(warnings, "eino_debug_port should be between 1024-65535")
	}

	return warnings
}

// ListAvailableKeys returns all available configuration keys
func ListAvailableKeys() []string {
	keys := make([]string, 0, len(stringKeys)+len(intKeys)+len(boolKeys))
	for k := range stringKeys {
		keys = append(keys, k)
	}
	for k := range intKeys {
		keys = append(keys, k)
	}
	for k := range boolKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
