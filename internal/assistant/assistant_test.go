package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dyike/StockChat/internal/llm"
	"github.com/dyike/StockChat/internal/markup"
	"github.com/dyike/StockChat/internal/quotes"
	"github.com/dyike/StockChat/internal/stream"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier bool

func (s stubClassifier) IsInDomain(ctx context.Context, query string) bool { return bool(s) }

type stubFetcher struct {
	prices map[string]string
	calls  []string
}

func (f *stubFetcher) GetPrice(ctx context.Context, ticker string) quotes.Quote {
	f.calls = append(f.calls, ticker)
	if p, ok := f.prices[strings.ToUpper(ticker)]; ok {
		return quotes.Quote{Ticker: ticker, Price: decimal.RequireFromString(p)}
	}
	return quotes.Quote{Ticker: ticker, Err: errors.New("no data found")}
}

type scriptedClient struct {
	t         *testing.T
	responses []*llm.Response
	errs      []error
	requests  []*llm.Request
}

func (c *scriptedClient) Create(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	i := len(c.requests)
	c.requests = append(c.requests, req)
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.responses) {
		c.t.Fatalf("unexpected model call #%d", i+1)
	}
	return c.responses[i], nil
}

func message(text string) llm.OutputItem {
	return llm.OutputItem{Type: llm.ItemMessage, Content: []llm.ContentPart{{Type: "output_text", Text: text}}}
}

func functionCall(args string) llm.OutputItem {
	return llm.OutputItem{Type: llm.ItemFunctionCall, Name: llm.StockPriceToolName, Arguments: args, CallID: "call_1"}
}

func TestRefusalNeverCallsModel(t *testing.T) {
	client := &scriptedClient{t: t}
	o := New(stubClassifier(false), &stubFetcher{}, client)

	reply := o.Respond(context.Background(), "What's the weather?")
	assert.Equal(t, OutcomeRefused, reply.Outcome)
	assert.Equal(t, RefusalText, strings.TrimSpace(stream.Join(reply.Tokens())))
	assert.Empty(t, client.requests)
}

func TestToolFlow(t *testing.T) {
	client := &scriptedClient{t: t, responses: []*llm.Response{
		{Output: []llm.OutputItem{functionCall(`{"ticker":"AAPL"}`)}},
		{Output: []llm.OutputItem{message("Apple (AAPL) last closed at **$150.25**.")}},
	}}
	fetcher := &stubFetcher{prices: map[string]string{"AAPL": "150.25"}}
	o := New(stubClassifier(true), fetcher, client, WithModel("gpt-4o-mini"))

	reply := o.Respond(context.Background(), "What is the price of AAPL?")
	require.Len(t, client.requests, 2)

	first := client.requests[0]
	assert.Equal(t, "gpt-4o-mini", first.Model)
	assert.False(t, first.Stream)
	assert.True(t, strings.HasSuffix(first.Input, "\n\nUser: What is the price of AAPL?"))
	require.Len(t, first.Tools, 1)
	assert.Equal(t, llm.StockPriceToolName, first.Tools[0].Name)

	second := client.requests[1]
	assert.Contains(t, second.Input, "The user asked: 'What is the price of AAPL?'")
	assert.Contains(t, second.Input, "Tool results:\nThe latest price for AAPL is $150.25\n\nNow, respond")
	require.Len(t, second.Tools, 1)

	assert.Equal(t, []string{"AAPL"}, fetcher.calls)
	assert.Equal(t, OutcomeAnsweredWithTools, reply.Outcome)
	assert.Equal(t, "<p>Apple (AAPL) last closed at <b>$150.25</b>.</p>", reply.Text)
	assert.Contains(t, stream.Join(reply.Tokens()), "150.25")

	q, ok := reply.Quotes.Get("AAPL")
	require.True(t, ok)
	assert.True(t, q.OK())
}

func TestEmptyOutput(t *testing.T) {
	client := &scriptedClient{t: t, responses: []*llm.Response{{}}}
	o := New(stubClassifier(true), &stubFetcher{}, client)

	reply := o.Respond(context.Background(), "stock tips?")
	assert.Equal(t, OutcomeNoResponse, reply.Outcome)
	assert.Equal(t, NoResponseText, strings.TrimSpace(stream.Join(reply.Tokens())))
	assert.True(t, reply.Outcome.Failed())
}

func TestTransportErrorOnFirstCall(t *testing.T) {
	client := &scriptedClient{t: t, errs: []error{errors.New("connection refused")}}
	o := New(stubClassifier(true), &stubFetcher{}, client)

	reply := o.Respond(context.Background(), "stock tips?")
	assert.Equal(t, OutcomeNoResponse, reply.Outcome)
	assert.Equal(t, NoResponseText, strings.TrimSpace(reply.Content()))
}

func TestDirectAnswer(t *testing.T) {
	client := &scriptedClient{t: t, responses: []*llm.Response{
		{Output: []llm.OutputItem{message("## Markets\nStocks  rose *today*")}},
	}}
	o := New(stubClassifier(true), &stubFetcher{}, client)

	reply := o.Respond(context.Background(), "How did the market do?")
	assert.Equal(t, OutcomeAnswered, reply.Outcome)
	assert.Equal(t, "<h2>Markets</h2><p>Stocks  rose <i>today</i></p>", reply.Text)
	assert.Equal(t, reply.Text+" ", reply.Content())
	assert.Nil(t, reply.Quotes)
}

func TestUnprocessable(t *testing.T) {
	client := &scriptedClient{t: t, responses: []*llm.Response{
		{Output: []llm.OutputItem{{Type: "reasoning"}}},
	}}
	o := New(stubClassifier(true), &stubFetcher{}, client)

	reply := o.Respond(context.Background(), "stock tips?")
	assert.Equal(t, OutcomeUnprocessable, reply.Outcome)
	assert.Equal(t, UnprocessableText, strings.TrimSpace(reply.Content()))
}

func TestSecondCallFallsBackToSummary(t *testing.T) {
	cases := map[string]*scriptedClient{
		"empty second output": {responses: []*llm.Response{
			{Output: []llm.OutputItem{functionCall(`{"ticker":"AAPL"}`), functionCall(`{"ticker":"ZZZZ"}`)}},
			{Output: []llm.OutputItem{functionCall(`{"ticker":"MSFT"}`)}},
		}},
		"second call error": {
			responses: []*llm.Response{
				{Output: []llm.OutputItem{functionCall(`{"ticker":"AAPL"}`), functionCall(`{"ticker":"ZZZZ"}`)}},
			},
			errs: []error{nil, errors.New("timeout")},
		},
	}
	for name, client := range cases {
		t.Run(name, func(t *testing.T) {
			client.t = t
			fetcher := &stubFetcher{prices: map[string]string{"AAPL": "150.25"}}
			o := New(stubClassifier(true), fetcher, client)

			reply := o.Respond(context.Background(), "Compare AAPL and ZZZZ stock")
			assert.Equal(t, OutcomeToolFallback, reply.Outcome)
			assert.Equal(t, "<p>The latest price for AAPL is $150.25</p><p>The latest price for ZZZZ is $Error fetching price for ZZZZ: no data found</p>", reply.Text)
			assert.Len(t, client.requests, 2)
		})
	}
}

func TestMalformedArgumentsBecomeFailedQuote(t *testing.T) {
	client := &scriptedClient{t: t, responses: []*llm.Response{
		{Output: []llm.OutputItem{functionCall(`{"ticker":`), functionCall(`{"ticker":"AAPL"}`)}},
		{Output: []llm.OutputItem{message("AAPL is at $150.25")}},
	}}
	fetcher := &stubFetcher{prices: map[string]string{"AAPL": "150.25"}}
	o := New(stubClassifier(true), fetcher, client)

	reply := o.Respond(context.Background(), "AAPL stock?")
	assert.Equal(t, OutcomeAnsweredWithTools, reply.Outcome)
	assert.Equal(t, []string{"AAPL"}, fetcher.calls)
	assert.Equal(t, 2, reply.Quotes.Len())

	bad, ok := reply.Quotes.Get(`{"ticker":`)
	require.True(t, ok)
	assert.False(t, bad.OK())
	assert.Contains(t, client.requests[1].Input, "Error fetching price for")
}

func TestRepeatedTickerLastWriteWins(t *testing.T) {
	client := &scriptedClient{t: t, responses: []*llm.Response{
		{Output: []llm.OutputItem{functionCall(`{"ticker":"AAPL"}`), functionCall(`{"ticker":"MSFT"}`), functionCall(`{"ticker":"AAPL"}`)}},
		{},
	}}
	fetcher := &stubFetcher{prices: map[string]string{"AAPL": "150.25", "MSFT": "410.1"}}
	o := New(stubClassifier(true), fetcher, client)

	reply := o.Respond(context.Background(), "AAPL vs MSFT stock")
	assert.Equal(t, []string{"AAPL", "MSFT", "AAPL"}, fetcher.calls)
	assert.Equal(t, []string{"AAPL", "MSFT"}, reply.Quotes.Keys())
}

func TestMixedCaseTickersShareOneEntry(t *testing.T) {
	client := &scriptedClient{t: t, responses: []*llm.Response{
		{Output: []llm.OutputItem{functionCall(`{"ticker":"aapl"}`), functionCall(`{"ticker":" AAPL "}`)}},
		{},
	}}
	fetcher := &stubFetcher{prices: map[string]string{"AAPL": "150.25"}}
	o := New(stubClassifier(true), fetcher, client)

	reply := o.Respond(context.Background(), "aapl stock")
	assert.Equal(t, []string{"AAPL", "AAPL"}, fetcher.calls)
	assert.Equal(t, []string{"AAPL"}, reply.Quotes.Keys())
	assert.Equal(t, OutcomeToolFallback, reply.Outcome)
	assert.Equal(t, "<p>The latest price for AAPL is $150.25</p>", reply.Text)
}

func TestSecondCallOnlyReadsFirstItem(t *testing.T) {
	client := &scriptedClient{t: t, responses: []*llm.Response{
		{Output: []llm.OutputItem{functionCall(`{"ticker":"AAPL"}`)}},
		{Output: []llm.OutputItem{functionCall(`{"ticker":"MSFT"}`), message("Narrated from second item")}},
	}}
	fetcher := &stubFetcher{prices: map[string]string{"AAPL": "150.25"}}
	o := New(stubClassifier(true), fetcher, client)

	reply := o.Respond(context.Background(), "AAPL stock price")
	assert.Equal(t, OutcomeToolFallback, reply.Outcome)
	assert.Equal(t, "<p>The latest price for AAPL is $150.25</p>", reply.Text)
	assert.Equal(t, []string{"AAPL"}, fetcher.calls)
}

func TestGoldmarkRenderer(t *testing.T) {
	client := &scriptedClient{t: t, responses: []*llm.Response{
		{Output: []llm.OutputItem{message("- one\n- two")}},
	}}
	o := New(stubClassifier(true), &stubFetcher{}, client, WithRenderer(markup.NewGoldmark()))

	reply := o.Respond(context.Background(), "market list")
	assert.Contains(t, reply.Text, "<li>one</li>")
}

func TestPromptPlaceholdersSinglePass(t *testing.T) {
	out, err := LoadPromptWithContext(promptFirstCall, map[string]string{"Query": "{{.Query}} stocks"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "User: {{.Query}} stocks"))
	assert.True(t, strings.HasPrefix(out, "System: You are a financial assistant specializing in stocks, cryptocurrency, and trading. Use the get_stock_price function"))
}
