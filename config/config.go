package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenAIChat = "openai-chat"
	ProviderDeepSeek   = "deepseek"

	MarketYahoo    = "yahoo"
	MarketFinnhub  = "finnhub"
	MarketLongport = "longport"

	FormatterSubset   = "subset"
	FormatterGoldmark = "goldmark"
)

// ErrMissingAPIKey is returned when neither the config file nor the
// environment supplies a key for the selected language-model provider.
var ErrMissingAPIKey = errors.New("api key not configured")

type Config struct {
	LLMProvider   string `json:"llm_provider"`
	LLMModel      string `json:"llm_model"`
	LLMBaseURL    string `json:"llm_base_url"`
	LLMTimeoutSec int    `json:"llm_timeout_sec"`
	MaxTokens     int    `json:"max_tokens"`

	// AI Model API Keys
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`

	MarketDataProvider string `json:"market_data_provider"`
	QuoteTimeoutSec    int    `json:"quote_timeout_sec"`
	FinnhubAPIKey      string `json:"finnhub_api_key"`

	// Longport API Configuration
	LongportAppKey      string `json:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token"`

	Formatter    string `json:"formatter"`
	TokenDelayMs int    `json:"token_delay_ms"`
	HTTPAddr     string `json:"http_addr"`

	LogLevel string `json:"log_level"`
	Debug    bool   `json:"debug"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`
}

// Defaults returns the built-in configuration without consulting the
// environment.
func Defaults() *Config {
	return &Config{
		LLMProvider:   ProviderOpenAI,
		LLMModel:      "gpt-4o-mini",
		LLMBaseURL:    "",
		LLMTimeoutSec: 60,
		MaxTokens:     1024,

		MarketDataProvider: MarketYahoo,
		QuoteTimeoutSec:    15,

		Formatter:    FormatterSubset,
		TokenDelayMs: 100,
		HTTPAddr:     ":8501",

		LogLevel: "info",
		Debug:    false,

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,
	}
}

// DefaultConfig returns the defaults overlaid with .env and environment
// variables.
func DefaultConfig() *Config {
	cfg := Defaults()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()

	return cfg
}

// Overlay applies .env and environment overrides on top of c. API keys are
// only taken from the environment when c does not already carry one, so a
// key stored in the config file wins.
func (c *Config) Overlay() {
	_ = godotenv.Load()
	c.loadFromEnv()
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.LLMModel = val
	}
	if val := os.Getenv("LLM_BASE_URL"); val != "" {
		c.LLMBaseURL = val
	}
	if val := os.Getenv("LLM_TIMEOUT"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.LLMTimeoutSec = v
		}
	}
	if val := os.Getenv("LLM_MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxTokens = v
		}
	}

	if val := os.Getenv("OPENAI_API_KEY"); val != "" && c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" && c.DeepSeekAPIKey == "" {
		c.DeepSeekAPIKey = val
	}

	if val := os.Getenv("MARKET_DATA_PROVIDER"); val != "" {
		c.MarketDataProvider = val
	}
	if val := os.Getenv("QUOTE_TIMEOUT"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.QuoteTimeoutSec = v
		}
	}
	if val := os.Getenv("FINNHUB_API_KEY"); val != "" && c.FinnhubAPIKey == "" {
		c.FinnhubAPIKey = val
	}
	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" && c.LongportAppKey == "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" && c.LongportAppSecret == "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" && c.LongportAccessToken == "" {
		c.LongportAccessToken = val
	}

	if val := os.Getenv("FORMATTER"); val != "" {
		c.Formatter = val
	}
	if val := os.Getenv("TOKEN_DELAY"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.TokenDelayMs = v
		}
	}
	if val := os.Getenv("HTTP_ADDR"); val != "" {
		c.HTTPAddr = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("STOCKCHAT_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}

	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}
}

// Validate checks enumerated settings and numeric ranges.
func (c *Config) Validate() error {
	if !slices.Contains([]string{ProviderOpenAI, ProviderOpenAIChat, ProviderDeepSeek}, c.LLMProvider) {
		return fmt.Errorf("unsupported llm_provider %q", c.LLMProvider)
	}
	if strings.TrimSpace(c.LLMModel) == "" {
		return fmt.Errorf("llm_model cannot be empty")
	}
	if !slices.Contains([]string{MarketYahoo, MarketFinnhub, MarketLongport}, c.MarketDataProvider) {
		return fmt.Errorf("unsupported market_data_provider %q", c.MarketDataProvider)
	}
	if !slices.Contains([]string{FormatterSubset, FormatterGoldmark}, c.Formatter) {
		return fmt.Errorf("unsupported formatter %q", c.Formatter)
	}
	if c.LLMTimeoutSec < 0 || c.QuoteTimeoutSec < 0 || c.TokenDelayMs < 0 {
		return fmt.Errorf("timeouts and delays must not be negative")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	return nil
}

// APIKey returns the key for the configured language-model provider.
func (c *Config) APIKey() (string, error) {
	key := c.OpenAIAPIKey
	if c.LLMProvider == ProviderDeepSeek {
		key = c.DeepSeekAPIKey
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%s not found in config file or environment variables: %w", c.APIKeyName(), ErrMissingAPIKey)
	}
	return key, nil
}

// APIKeyName is the environment variable that supplies the provider key.
func (c *Config) APIKeyName() string {
	if c.LLMProvider == ProviderDeepSeek {
		return "DEEPSEEK_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.QuoteTimeoutSec) * time.Second
}

func (c *Config) TokenDelay() time.Duration {
	return time.Duration(c.TokenDelayMs) * time.Millisecond
}

// Masked returns a copy with secrets replaced, for printing.
func (c Config) Masked() Config {
	c.OpenAIAPIKey = mask(c.OpenAIAPIKey)
	c.DeepSeekAPIKey = mask(c.DeepSeekAPIKey)
	c.FinnhubAPIKey = mask(c.FinnhubAPIKey)
	c.LongportAppKey = mask(c.LongportAppKey)
	c.LongportAppSecret = mask(c.LongportAppSecret)
	c.LongportAccessToken = mask(c.LongportAccessToken)
	return c
}

func mask(s string) string {
	if len(s) <= 4 {
		if s == "" {
			return ""
		}
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
