// Package stream exposes a finished answer as a pull-based token sequence.
package stream

import (
	"context"
	"iter"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Words splits on single spaces, keeping empty fragments, and appends a
// trailing space to every token.
func Words(text string) []string {
	parts := strings.Split(text, " ")
	for i, p := range parts {
		parts[i] = p + " "
	}
	return parts
}

// Fields splits on runs of whitespace and appends a trailing space to every
// token.
func Fields(text string) []string {
	parts := strings.Fields(text)
	for i, p := range parts {
		parts[i] = p + " "
	}
	return parts
}

func Seq(tokens []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, t := range tokens {
			if !yield(t) {
				return
			}
		}
	}
}

// Join concatenates a sequence back into text.
func Join(seq iter.Seq[string]) string {
	var b strings.Builder
	for t := range seq {
		b.WriteString(t)
	}
	return b.String()
}

// Pace releases one token per delay. The first token is immediate. A
// non-positive delay returns seq unchanged; cancelling ctx ends the sequence.
func Pace(ctx context.Context, seq iter.Seq[string], delay time.Duration) iter.Seq[string] {
	if delay <= 0 {
		return seq
	}
	return func(yield func(string) bool) {
		limiter := rate.NewLimiter(rate.Every(delay), 1)
		for t := range seq {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if !yield(t) {
				return
			}
		}
	}
}
