package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ChainClient runs each request through an eino chain: the input text becomes
// a single user message, the chat model answers, and the reply is mapped onto
// output items.
type ChainClient struct {
	chatModel model.ToolCallingChatModel
	logger    *slog.Logger

	mu        sync.Mutex
	runnables map[string]compose.Runnable[string, *schema.Message]
}

func NewChainClient(chatModel model.ToolCallingChatModel, logger *slog.Logger) *ChainClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainClient{
		chatModel: chatModel,
		logger:    logger,
		runnables: make(map[string]compose.Runnable[string, *schema.Message]),
	}
}

// NewOpenAIChatClient builds a chain client on the OpenAI chat-completions model.
func NewOpenAIChatClient(ctx context.Context, apiKey, baseURL, modelName string, maxTokens int, logger *slog.Logger) (*ChainClient, error) {
	conf := &openai.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   modelName,
	}
	if maxTokens > 0 {
		conf.MaxTokens = &maxTokens
	}
	chatModel, err := openai.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
	}
	return NewChainClient(chatModel, logger), nil
}

func NewDeepSeekClient(ctx context.Context, apiKey, baseURL, modelName string, maxTokens int, logger *slog.Logger) (*ChainClient, error) {
	chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
		APIKey:    apiKey,
		BaseURL:   baseURL,
		Model:     modelName,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DeepSeek model: %w", err)
	}
	return NewChainClient(chatModel, logger), nil
}

func (c *ChainClient) Create(ctx context.Context, req *Request) (*Response, error) {
	runnable, err := c.runnable(ctx, req.Tools)
	if err != nil {
		return nil, err
	}

	msg, err := runnable.Invoke(ctx, req.Input, compose.WithCallbacks(&LoggerCallback{Logger: c.logger}))
	if err != nil {
		return nil, err
	}
	return messageToResponse(msg), nil
}

// runnable compiles one chain per distinct tool set.
func (c *ChainClient) runnable(ctx context.Context, tools []*schema.ToolInfo) (compose.Runnable[string, *schema.Message], error) {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	key := strings.Join(names, ",")

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.runnables[key]; ok {
		return r, nil
	}

	var chatModel model.BaseChatModel = c.chatModel
	if len(tools) > 0 {
		bound, err := c.chatModel.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		chatModel = bound
	}

	chain := compose.NewChain[string, *schema.Message]()
	chain.AppendLambda(compose.InvokableLambda(func(ctx context.Context, input string) ([]*schema.Message, error) {
		return []*schema.Message{schema.UserMessage(input)}, nil
	}))
	chain.AppendChatModel(chatModel)

	r, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	c.runnables[key] = r
	return r, nil
}

func messageToResponse(msg *schema.Message) *Response {
	resp := &Response{}
	if msg == nil {
		return resp
	}
	if msg.Content != "" {
		resp.Output = append(resp.Output, OutputItem{
			Type:    ItemMessage,
			Content: []ContentPart{{Type: "output_text", Text: msg.Content}},
		})
	}
	for _, tc := range msg.ToolCalls {
		resp.Output = append(resp.Output, OutputItem{
			Type:      ItemFunctionCall,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
			CallID:    tc.ID,
		})
	}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		u := msg.ResponseMeta.Usage
		resp.Usage = &Usage{
			InputTokens:  u.PromptTokens,
			OutputTokens: u.CompletionTokens,
			TotalTokens:  u.TotalTokens,
		}
	}
	return resp
}
