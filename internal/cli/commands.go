package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyike/StockChat/config"
	"github.com/dyike/StockChat/internal/debug"
	"github.com/dyike/StockChat/internal/logging"
	"github.com/dyike/StockChat/internal/quotes"
	"github.com/dyike/StockChat/internal/server"
	"github.com/dyike/StockChat/internal/stream"
	"github.com/dyike/StockChat/pkg/app"
	"github.com/dyike/StockChat/pkg/dataflows"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type rootOptions struct {
	configPath string
	debug      bool
	mgr        *config.Manager
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "stockchat",
		Short: "StockChat - a finance chat assistant",
		Long: `StockChat answers questions about stocks, cryptocurrency and trading.
It looks up closing prices when the model asks for them and streams the answer
to a browser page or the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager(config.WithConfigPath(opts.configPath))
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			opts.mgr = mgr

			cfg := mgr.Effective()
			level := cfg.LogLevel
			if opts.debug || cfg.Debug {
				level = "debug"
			}
			logging.Setup(level)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: start interactive chat
			return runChatCommand(cmd.Context(), opts)
		},
	}

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newAskCmd(opts))
	rootCmd.AddCommand(newChatCmd(opts))
	rootCmd.AddCommand(newQuoteCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Configuration file path")

	return rootCmd
}

// newRuntime builds the engine or reports a missing credential the way the
// user needs to see it.
func newRuntime(ctx context.Context, opts *rootOptions, extra ...app.Option) (*app.Runtime, error) {
	extra = append([]app.Option{app.WithLogger(logging.Logger())}, extra...)
	rt, err := app.NewRuntime(ctx, opts.mgr, extra...)
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			cfg := opts.mgr.Effective()
			msg := fmt.Sprintf("%s not found in config file or environment variables!", cfg.APIKeyName())
			fmt.Fprintln(os.Stderr, errorStyle.Render(msg))
			fmt.Fprintf(os.Stderr, "Add it to %s or set it in the environment.\n", opts.mgr.Path())
		}
		return nil, err
	}
	return rt, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	var origins []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat page and streaming API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var rt *app.Runtime
			srv := server.New(
				func() server.Responder { return rt.Engine() },
				server.WithLogger(logging.Logger()),
				server.WithOriginPatterns(origins...),
			)

			var err error
			rt, err = newRuntime(ctx, opts, app.WithNotifier(srv.Notify))
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg := rt.Engine().Config
			dbg := debug.NewEinoDebugger(&cfg, logging.Logger())
			if err := dbg.Initialize(ctx); err != nil {
				logging.Logger().Warn("eino debugger unavailable", "error", err)
			}

			if addr == "" {
				addr = cfg.HTTPAddr
			}
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to http_addr from config)")
	cmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "Extra host patterns allowed to open the chat WebSocket (e.g. app.example.com)")
	return cmd
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var rawHTML, noDelay bool
	cmd := &cobra.Command{
		Use:   "ask [QUERY]",
		Short: "Ask one question and print the answer",
		Example: `  stockchat ask "What is the price of AAPL?"
  stockchat ask --html "Compare MSFT and NVDA"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, opts, app.WithoutWatch())
			if err != nil {
				return err
			}
			defer rt.Close()

			engine := rt.Engine()
			reply := engine.Respond(ctx, strings.Join(args, " "))

			delay := engine.TokenDelay()
			if noDelay {
				delay = 0
			}
			tokens := reply.Tokens()
			if !rawHTML {
				tokens = stream.Seq(stream.Words(PlainText(reply.Text)))
			}
			out := cmd.OutOrStdout()
			for tok := range stream.Pace(ctx, tokens, delay) {
				fmt.Fprint(out, tok)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rawHTML, "html", false, "Print the formatted HTML tokens instead of plain text")
	cmd.Flags().BoolVar(&noDelay, "no-delay", false, "Print the answer without simulated typing")
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatCommand(cmd.Context(), opts)
		},
	}
}

func runChatCommand(ctx context.Context, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()
	return runInteractiveMode(ctx, rt, os.Stdout)
}

func newQuoteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "quote [TICKER...]",
		Short:   "Print the latest closing price of one or more tickers",
		Example: "  stockchat quote AAPL MSFT",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.mgr.Effective()
			provider, err := dataflows.New(&cfg)
			if err != nil {
				return err
			}
			fetcher := quotes.NewFetcher(provider,
				quotes.WithTimeout(cfg.QuoteTimeout()),
				quotes.WithLogger(logging.Logger()),
			)

			out := cmd.OutOrStdout()
			failed := 0
			for _, ticker := range args {
				q := fetcher.GetPrice(cmd.Context(), ticker)
				if !q.OK() {
					failed++
					fmt.Fprintln(out, errorStyle.Render(q.String()))
					continue
				}
				fmt.Fprintf(out, "%s %s\n", tickerStyle.Render(strings.ToUpper(ticker)), priceStyle.Render("$"+q.String()))
			}
			if failed == len(args) {
				return fmt.Errorf("no prices fetched from %s", provider.Name())
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "StockChat %s\n", Version)
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd, opts.mgr)
		},
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd, opts.mgr)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), opts.mgr.Path())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:     "set KEY VALUE",
		Short:   "Set one configuration value in the config file",
		Example: "  stockchat config set market_data_provider finnhub\n  stockchat config set token_delay_ms 0",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := SetConfigValue(opts.mgr, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), completedStyle.Render("✓ "+args[0]+" updated"))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:     "import FILE",
		Short:   "Merge settings from a JSON file (use - for stdin)",
		Example: "  stockchat config import team-defaults.json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			if err := opts.mgr.Import(in); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), completedStyle.Render("✓ configuration imported"))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Interactively choose providers and store API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigWizard(opts.mgr)
		},
	})

	return configCmd
}

func showConfig(cmd *cobra.Command, mgr *config.Manager) error {
	masked := mgr.Effective().Masked()
	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("StockChat configuration"))
	fmt.Fprintln(out, mutedStyle.Render(mgr.Path()))
	fmt.Fprintln(out, string(data))

	fmt.Fprintln(out, titleStyle.Render("Credentials"))
	for _, cred := range mgr.Credentials() {
		style := completedStyle
		if cred.Source == config.SourceMissing {
			style = errorStyle
		}
		fmt.Fprintf(out, "%-22s %s %s\n", cred.Name, style.Render(string(cred.Source)), mutedStyle.Render(cred.Masked))
	}
	return nil
}
