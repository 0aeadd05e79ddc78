package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-resty/resty/v2"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// ResponsesClient talks to the OpenAI Responses API.
type ResponsesClient struct {
	client    *resty.Client
	model     string
	maxTokens int
}

type ResponsesOption func(*ResponsesClient)

func WithBaseURL(url string) ResponsesOption {
	return func(rc *ResponsesClient) {
		if url != "" {
			rc.client.SetBaseURL(url)
		}
	}
}

func WithTimeout(d time.Duration) ResponsesOption {
	return func(rc *ResponsesClient) {
		if d > 0 {
			rc.client.SetTimeout(d)
		}
	}
}

func WithMaxTokens(n int) ResponsesOption {
	return func(rc *ResponsesClient) { rc.maxTokens = n }
}

func NewResponsesClient(apiKey, model string, opts ...ResponsesOption) *ResponsesClient {
	client := resty.New()
	client.SetBaseURL(defaultOpenAIBaseURL)
	client.SetTimeout(60 * time.Second)
	client.SetAuthToken(apiKey)
	client.SetHeader("Content-Type", "application/json")

	rc := &ResponsesClient{client: client, model: model}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

type responsesTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict"`
}

type responsesRequest struct {
	Model           string          `json:"model"`
	Input           string          `json:"input"`
	Tools           []responsesTool `json:"tools,omitempty"`
	Stream          bool            `json:"stream"`
	MaxOutputTokens int             `json:"max_output_tokens,omitempty"`
}

type responsesContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesItem struct {
	Type      string             `json:"type"`
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Arguments string             `json:"arguments"`
	CallID    string             `json:"call_id"`
	Content   []responsesContent `json:"content"`
}

type responsesResponse struct {
	ID     string          `json:"id"`
	Output []responsesItem `json:"output"`
	Usage  *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (rc *ResponsesClient) Create(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = rc.model
	}
	body := responsesRequest{
		Model:           model,
		Input:           req.Input,
		Stream:          false,
		MaxOutputTokens: rc.maxTokens,
	}
	for _, t := range req.Tools {
		converted, err := toResponsesTool(t)
		if err != nil {
			return nil, err
		}
		body.Tools = append(body.Tools, converted)
	}

	var out responsesResponse
	resp, err := rc.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/responses")
	if err != nil {
		return nil, fmt.Errorf("responses request: %w", err)
	}
	if resp.IsError() {
		if out.Error != nil && out.Error.Message != "" {
			return nil, fmt.Errorf("responses API error %d: %s", resp.StatusCode(), out.Error.Message)
		}
		return nil, fmt.Errorf("responses API error %d: %s", resp.StatusCode(), resp.String())
	}

	result := &Response{ID: out.ID}
	for _, item := range out.Output {
		oi := OutputItem{
			Type:      item.Type,
			Name:      item.Name,
			Arguments: item.Arguments,
			CallID:    item.CallID,
		}
		for _, c := range item.Content {
			oi.Content = append(oi.Content, ContentPart{Type: c.Type, Text: c.Text})
		}
		result.Output = append(result.Output, oi)
	}
	if out.Usage != nil {
		result.Usage = &Usage{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
			TotalTokens:  out.Usage.TotalTokens,
		}
	}
	return result, nil
}

func toResponsesTool(info *schema.ToolInfo) (responsesTool, error) {
	t := responsesTool{Type: "function", Name: info.Name, Description: info.Desc}
	if info.ParamsOneOf == nil {
		return t, nil
	}
	params, err := info.ParamsOneOf.ToOpenAPIV3()
	if err != nil {
		return t, fmt.Errorf("tool %s parameters: %w", info.Name, err)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return t, fmt.Errorf("tool %s parameters: %w", info.Name, err)
	}
	t.Parameters = raw
	return t, nil
}
