package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponsesClientCreate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "resp_1",
			"output": [
				{"type": "function_call", "name": "get_stock_price", "arguments": "{\"ticker\":\"AAPL\"}", "call_id": "call_1"},
				{"type": "message", "role": "assistant", "content": [{"type": "output_text", "text": "hello"}]}
			],
			"usage": {"input_tokens": 10, "output_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	client := NewResponsesClient("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	resp, err := client.Create(context.Background(), &Request{
		Input: "System: hi\n\nUser: AAPL?",
		Tools: DefaultTools(),
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Equal(t, false, got["stream"])
	tools, ok := got["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "function", tool["type"])
	assert.Equal(t, StockPriceToolName, tool["name"])
	params := tool["parameters"].(map[string]any)
	assert.Equal(t, "object", params["type"])
	assert.Equal(t, false, params["additionalProperties"])
	assert.Equal(t, []any{"ticker"}, params["required"])

	require.Len(t, resp.Output, 2)
	calls := resp.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].CallID)
	assert.JSONEq(t, `{"ticker":"AAPL"}`, calls[0].Arguments)
	text, ok := resp.Output[1].Text()
	require.True(t, ok)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "", resp.FirstText())
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestResponsesClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := NewResponsesClient("bad", "gpt-4o-mini", WithBaseURL(srv.URL))
	_, err := client.Create(context.Background(), &Request{Input: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect API key")
}
