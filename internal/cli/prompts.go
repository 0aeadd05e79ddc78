package cli

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/StockChat/config"
)

// PromptForQuery asks for the next chat message.
func PromptForQuery() (string, error) {
	var query string
	prompt := &survey.Input{
		Message: "You:",
		Help:    "Ask about a stock, a cryptocurrency or trading. Type history to review this session, clear to reset the screen, exit to quit.",
	}

	err := survey.AskOne(prompt, &query, survey.WithValidator(func(val interface{}) error {
		str, _ := val.(string)
		if strings.TrimSpace(str) == "" {
			return fmt.Errorf("message cannot be empty")
		}
		return nil
	}))
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(query), nil
}

// PromptForLLMProvider prompts the user to select the language-model backend
func PromptForLLMProvider(current string) (string, error) {
	var selected string
	prompt := &survey.Select{
		Message: "Select the language-model provider:",
		Options: []string{config.ProviderOpenAI, config.ProviderOpenAIChat, config.ProviderDeepSeek},
		Default: current,
		Description: func(value string, index int) string {
			switch value {
			case config.ProviderOpenAI:
				return "Responses API"
			case config.ProviderOpenAIChat:
				return "Chat Completions via eino"
			case config.ProviderDeepSeek:
				return "DeepSeek via eino"
			}
			return ""
		},
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return selected, nil
}

// PromptForMarketData prompts the user to select the price source
func PromptForMarketData(current string) (string, error) {
	var selected string
	prompt := &survey.Select{
		Message: "Select the market data provider:",
		Options: []string{config.MarketYahoo, config.MarketFinnhub, config.MarketLongport},
		Default: current,
		Help:    "Yahoo needs no key. Finnhub and Longport need credentials.",
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return selected, nil
}

// PromptForSecret asks for a credential without echoing it. An empty answer
// keeps the current value.
func PromptForSecret(name, current string) (string, error) {
	var secret string
	msg := fmt.Sprintf("%s:", name)
	if current != "" {
		msg = fmt.Sprintf("%s (leave empty to keep the stored value):", name)
	}
	if err := survey.AskOne(&survey.Password{Message: msg}, &secret); err != nil {
		return "", err
	}
	if strings.TrimSpace(secret) == "" {
		return current, nil
	}
	return strings.TrimSpace(secret), nil
}

// PromptForConfirmation asks a yes/no question.
func PromptForConfirmation(message string, def bool) (bool, error) {
	confirmed := false
	prompt := &survey.Confirm{
		Message: message,
		Default: def,
	}
	err := survey.AskOne(prompt, &confirmed)
	return confirmed, err
}
