package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/callbacks"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type startKey struct{}

// LoggerCallback logs chain node timings and model token usage.
type LoggerCallback struct {
	Logger *slog.Logger
}

func (cb *LoggerCallback) logger() *slog.Logger {
	if cb.Logger != nil {
		return cb.Logger
	}
	return slog.Default()
}

func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	cb.logger().Debug("chain node start", "node", info.Name, "component", info.Component)
	return context.WithValue(ctx, startKey{}, time.Now())
}

func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	attrs := []any{"node", info.Name, "component", info.Component}
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		attrs = append(attrs, "elapsed", time.Since(start))
	}
	if out := ecmodel.ConvCallbackOutput(output); out != nil && out.TokenUsage != nil {
		attrs = append(attrs,
			"prompt_tokens", out.TokenUsage.PromptTokens,
			"completion_tokens", out.TokenUsage.CompletionTokens,
			"total_tokens", out.TokenUsage.TotalTokens,
		)
	}
	cb.logger().Debug("chain node end", attrs...)
	return ctx
}

func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	cb.logger().Warn("chain node error", "node", info.Name, "component", info.Component, "error", err)
	return ctx
}

func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	defer input.Close()
	return ctx
}

// OnEndWithStreamOutput drains the stream; requests are non-streaming so this
// only fires if a backend streams internally.
func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	go func() {
		defer output.Close()
		defer func() {
			if err := recover(); err != nil {
				cb.logger().Error("stream callback panic", "node", info.Name, "panic", err)
			}
		}()
		frames := 0
		for {
			_, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				cb.logger().Warn("stream callback recv error", "node", info.Name, "error", err)
				return
			}
			frames++
		}
		cb.logger().Debug("chain node stream end", "node", info.Name, "frames", frames)
	}()
	return ctx
}
