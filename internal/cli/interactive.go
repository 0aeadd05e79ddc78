package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/dyike/StockChat/config"
	"github.com/dyike/StockChat/internal/server"
	"github.com/dyike/StockChat/internal/stream"
	"github.com/dyike/StockChat/pkg/app"
)

// runInteractiveMode is the terminal chat loop. Each answer is streamed word
// by word with the engine's configured delay.
func runInteractiveMode(ctx context.Context, rt *app.Runtime, out io.Writer) error {
	cfg := rt.Engine().Config
	DisplayWelcomeBanner(out, cfg.LLMProvider+"/"+cfg.LLMModel, cfg.MarketDataProvider)

	conv := server.NewConversation()
	for {
		if ctx.Err() != nil {
			return nil
		}

		query, err := PromptForQuery()
		if err != nil {
			if errors.Is(err, terminal.InterruptErr) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out, mutedStyle.Render("Goodbye!"))
				return nil
			}
			return err
		}

		switch strings.ToLower(query) {
		case "exit", "quit", "q":
			fmt.Fprintln(out, mutedStyle.Render("Goodbye!"))
			return nil
		case "clear":
			ClearScreen(out)
			continue
		case "history":
			printHistory(out, conv.Messages())
			continue
		}

		conv.Add(server.RoleUser, query)
		answer := chatTurn(ctx, rt.Engine(), query, out)
		conv.Add(server.RoleAssistant, answer)
	}
}

// chatTurn prints one streamed answer and returns its plain text.
func chatTurn(ctx context.Context, engine *app.Engine, query string, out io.Writer) string {
	reply := engine.Respond(ctx, query)
	text := PlainText(reply.Text)

	fmt.Fprint(out, assistantStyle.Render("Assistant: "))
	for tok := range stream.Pace(ctx, stream.Seq(stream.Words(text)), engine.TokenDelay()) {
		fmt.Fprint(out, tok)
	}
	fmt.Fprintln(out)

	if reply.Quotes != nil && reply.Quotes.Len() > 0 {
		fmt.Fprintln(out, mutedStyle.Render("prices looked up: "+strings.Join(reply.Quotes.Keys(), ", ")))
	}
	fmt.Fprintln(out)
	return text
}

func printHistory(out io.Writer, messages []server.Message) {
	if len(messages) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No messages yet."))
		return
	}
	for _, m := range messages {
		label := assistantStyle.Render("Assistant:")
		if m.Role == server.RoleUser {
			label = tickerStyle.Render("You:")
		}
		fmt.Fprintf(out, "%s %s %s\n", mutedStyle.Render(m.At.Format("15:04")), label, m.Content)
	}
	fmt.Fprintln(out)
}

// runConfigWizard walks through provider choice and credentials and saves the
// result.
func runConfigWizard(mgr *config.Manager) error {
	cfg := mgr.Get()

	provider, err := PromptForLLMProvider(cfg.LLMProvider)
	if err != nil {
		return err
	}
	cfg.LLMProvider = provider
	if provider == config.ProviderDeepSeek {
		if cfg.DeepSeekAPIKey, err = PromptForSecret("DeepSeek API key", cfg.DeepSeekAPIKey); err != nil {
			return err
		}
		if cfg.LLMModel == config.Defaults().LLMModel {
			cfg.LLMModel = "deepseek-chat"
		}
	} else {
		if cfg.OpenAIAPIKey, err = PromptForSecret("OpenAI API key", cfg.OpenAIAPIKey); err != nil {
			return err
		}
	}

	market, err := PromptForMarketData(cfg.MarketDataProvider)
	if err != nil {
		return err
	}
	cfg.MarketDataProvider = market
	switch market {
	case config.MarketFinnhub:
		if cfg.FinnhubAPIKey, err = PromptForSecret("Finnhub API key", cfg.FinnhubAPIKey); err != nil {
			return err
		}
	case config.MarketLongport:
		if cfg.LongportAppKey, err = PromptForSecret("Longport app key", cfg.LongportAppKey); err != nil {
			return err
		}
		if cfg.LongportAppSecret, err = PromptForSecret("Longport app secret", cfg.LongportAppSecret); err != nil {
			return err
		}
		if cfg.LongportAccessToken, err = PromptForSecret("Longport access token", cfg.LongportAccessToken); err != nil {
			return err
		}
	}

	ok, err := PromptForConfirmation("Save configuration to "+mgr.Path()+"?", true)
	if err != nil || !ok {
		return err
	}
	if err := mgr.Update(cfg); err != nil {
		return err
	}

	fmt.Println(completedStyle.Render("✓ Configuration saved"))
	for _, w := range ValidateConfiguration(mgr.Effective()) {
		fmt.Println(errorStyle.Render("! " + w))
	}
	return nil
}
