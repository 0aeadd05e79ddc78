// Package classifier decides whether a chat query is about stocks,
// cryptocurrency or trading.
package classifier

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SymbolChecker checks whether a symbol resolves to a tradable instrument.
type SymbolChecker interface {
	Lookup(ctx context.Context, symbol string) (bool, error)
}

type Options struct {
	FinanceKeywords  []string
	BusinessKeywords []string
	KnownCompanies   []string
}

func DefaultOptions() Options {
	return Options{
		FinanceKeywords: []string{
			"stock", "stocks", "crypto", "cryptocurrency", "trade", "trading",
			"market", "price", "invest", "investment", "bitcoin", "ethereum",
			"portfolio", "bull", "bear", "exchange", "gold", "XAUUSD",
		},
		BusinessKeywords: []string{
			"company", "business", "corporation", "inc", "ltd", "information",
			"operations", "industry", "revenue", "products", "services",
		},
		KnownCompanies: []string{
			"tesla", "apple", "microsoft", "google", "amazon", "facebook",
			"nvidia", "coinbase", "binance", "netflix", "ford", "gm", "boeing", "hp",
		},
	}
}

type Classifier struct {
	checker  SymbolChecker
	finance  []string
	business []string
	known    []string
	logger   *slog.Logger
}

// New builds a classifier. A nil checker disables the ticker lookup tier.
func New(checker SymbolChecker, opts Options, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		checker:  checker,
		finance:  lowerAll(opts.FinanceKeywords),
		business: lowerAll(opts.BusinessKeywords),
		known:    lowerAll(opts.KnownCompanies),
		logger:   logger,
	}
}

// IsInDomain runs the keyword tier, then the ticker lookup tier (only when a
// business keyword is present), then the known-company tier.
func (c *Classifier) IsInDomain(ctx context.Context, query string) bool {
	lower := strings.ToLower(query)

	if containsAny(lower, c.finance) {
		return true
	}

	if c.checker != nil && containsAny(lower, c.business) {
		for _, candidate := range Candidates(query) {
			ok, err := c.checker.Lookup(ctx, candidate)
			if err != nil {
				c.logger.Debug("ticker lookup failed", "candidate", candidate, "error", err)
				continue
			}
			if ok {
				return true
			}
		}
	}

	return containsAny(lower, c.known)
}

// Candidates returns the upper-cased capitalized words of query that are
// longer than two runes once surrounding punctuation is removed.
func Candidates(query string) []string {
	var out []string
	for _, word := range strings.Fields(query) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		first, _ := utf8.DecodeRuneInString(word)
		if !unicode.IsUpper(first) || utf8.RuneCountInString(word) <= 2 {
			continue
		}
		out = append(out, strings.ToUpper(word))
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
