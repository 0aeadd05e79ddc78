// Package llm is the request/response view of the language model the chat
// assistant talks to, with one backend per provider.
package llm

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"
)

const (
	ItemMessage      = "message"
	ItemFunctionCall = "function_call"
)

// Client sends one non-streaming request.
type Client interface {
	Create(ctx context.Context, req *Request) (*Response, error)
}

type Request struct {
	Model string
	// Input is a single text blob carrying both instructions and the query.
	Input  string
	Tools  []*schema.ToolInfo
	Stream bool
}

type Response struct {
	ID     string
	Output []OutputItem
	Usage  *Usage
}

type OutputItem struct {
	Type      string
	Name      string
	Arguments string
	CallID    string
	Content   []ContentPart
}

type ContentPart struct {
	Type string
	Text string
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// FunctionCalls returns the function-call items in output order.
func (r *Response) FunctionCalls() []OutputItem {
	if r == nil {
		return nil
	}
	var calls []OutputItem
	for _, item := range r.Output {
		if item.Type == ItemFunctionCall {
			calls = append(calls, item)
		}
	}
	return calls
}

// Text returns the text of the item's first content part.
func (o OutputItem) Text() (string, bool) {
	if len(o.Content) == 0 {
		return "", false
	}
	return o.Content[0].Text, true
}

// FirstText returns the text of the first output item when it is non-blank.
// Later items are never consulted.
func (r *Response) FirstText() string {
	if r == nil || len(r.Output) == 0 {
		return ""
	}
	if text, ok := r.Output[0].Text(); ok && strings.TrimSpace(text) != "" {
		return text
	}
	return ""
}
