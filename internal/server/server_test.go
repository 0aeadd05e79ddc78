package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dyike/StockChat/internal/assistant"
	"github.com/dyike/StockChat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inDomain bool

func (d inDomain) IsInDomain(ctx context.Context, query string) bool { return bool(d) }

type echoClient struct{}

func (echoClient) Create(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return &llm.Response{Output: []llm.OutputItem{{
		Type:    llm.ItemMessage,
		Content: []llm.ContentPart{{Text: "Markets are **up** today"}},
	}}}, nil
}

type testResponder struct {
	orch *assistant.Orchestrator
}

func (r testResponder) Respond(ctx context.Context, query string) *assistant.Reply {
	return r.orch.Respond(ctx, query)
}

func (testResponder) TokenDelay() time.Duration { return 0 }

func newTestServer(t *testing.T, domain bool) *httptest.Server {
	t.Helper()
	orch := assistant.New(inDomain(domain), nil, echoClient{})
	s := New(func() Responder { return testResponder{orch: orch} })
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func TestChatSSE(t *testing.T) {
	srv := newTestServer(t, true)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"query":"How is the market?"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, resp)
	require.Len(t, events, 5)

	var joined strings.Builder
	for _, ev := range events[:4] {
		assert.Equal(t, "token", ev.name)
		var tok tokenEvent
		require.NoError(t, json.Unmarshal([]byte(ev.data), &tok))
		joined.WriteString(tok.Token)
	}
	assert.Equal(t, "<p>Markets are <b>up</b> today</p> ", joined.String())

	last := events[4]
	assert.Equal(t, "done", last.name)
	var done doneEvent
	require.NoError(t, json.Unmarshal([]byte(last.data), &done))
	assert.Equal(t, "answered", done.Outcome)
	assert.Equal(t, joined.String(), done.Content)
	assert.NotEmpty(t, done.TurnID)
}

func TestChatSSERefusal(t *testing.T) {
	srv := newTestServer(t, false)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"query":"What's the weather?"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readSSE(t, resp)
	require.NotEmpty(t, events)
	var done doneEvent
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].data), &done))
	assert.Equal(t, "refused", done.Outcome)
	assert.Equal(t, assistant.RefusalText, strings.TrimSpace(done.Content))
}

func TestChatRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, true)

	for _, body := range []string{`{"query":"   "}`, `not json`} {
		resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.NotEmpty(t, payload["error"])
		resp.Body.Close()
	}
}

func TestHealthAndIndex(t *testing.T) {
	srv := newTestServer(t, true)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestWebSocketChat(t *testing.T) {
	srv := newTestServer(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for turn := 0; turn < 2; turn++ {
		require.NoError(t, wsjson.Write(ctx, conn, wsIncoming{Query: "market update"}))

		var tokens strings.Builder
		for {
			var msg wsOutgoing
			require.NoError(t, wsjson.Read(ctx, conn, &msg))
			if msg.Type == "token" {
				tokens.WriteString(msg.Token)
				continue
			}
			require.Equal(t, "done", msg.Type)
			assert.Equal(t, "answered", msg.Outcome)
			assert.Equal(t, tokens.String(), msg.Content)
			break
		}
	}

	require.NoError(t, wsjson.Write(ctx, conn, wsIncoming{Query: ""}))
	var msg wsOutgoing
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "error", msg.Type)
}

func TestConversation(t *testing.T) {
	c := NewConversation()
	c.Add(RoleUser, "AAPL?")
	c.Add(RoleAssistant, "<p>150.25</p>")
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "<p>150.25</p>", msgs[1].Content)
	assert.Equal(t, 2, c.Len())
}

func newChatServer(t *testing.T) (*Server, string) {
	t.Helper()
	orch := assistant.New(inDomain(true), nil, echoClient{})
	s := New(func() Responder { return testResponder{orch: orch} })
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
}

func readUntilDone(t *testing.T, ctx context.Context, conn *websocket.Conn) wsOutgoing {
	t.Helper()
	for {
		var msg wsOutgoing
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == "done" {
			return msg
		}
	}
}

func TestWebSocketReconnectReplaysHistory(t *testing.T) {
	_, url := newChatServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url+"?session=tab-1", nil)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, wsIncoming{Query: "market update"}))
	done := readUntilDone(t, ctx, conn)
	conn.Close(websocket.StatusGoingAway, "reload")

	conn, _, err = websocket.Dial(ctx, url+"?session=tab-1", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg wsOutgoing
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	require.Equal(t, "history", msg.Type)
	require.Len(t, msg.Messages, 2)
	assert.Equal(t, RoleUser, msg.Messages[0].Role)
	assert.Equal(t, "market update", msg.Messages[0].Content)
	assert.Equal(t, RoleAssistant, msg.Messages[1].Role)
	assert.Equal(t, done.Content, msg.Messages[1].Content)
}

func TestWebSocketWithoutSessionStartsEmpty(t *testing.T) {
	s, url := newChatServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.NoError(t, wsjson.Write(ctx, conn, wsIncoming{Query: "market update"}))
	readUntilDone(t, ctx, conn)

	assert.Zero(t, s.sessions.len())
}

func TestNotifyReachesOpenConnections(t *testing.T) {
	s, url := newChatServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		s.clientsMu.Lock()
		defer s.clientsMu.Unlock()
		return len(s.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Notify("engine.reloaded", `{"version":2}`)

	var msg wsOutgoing
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "notice", msg.Type)
	assert.Equal(t, "engine.reloaded", msg.Event)
	assert.JSONEq(t, `{"version":2}`, msg.Content)
}

func TestSessionsExpireWhenIdle(t *testing.T) {
	now := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	store := newSessions(time.Minute)
	store.now = func() time.Time { return now }

	first := store.attach("a")
	first.Add(RoleUser, "AAPL?")
	assert.Same(t, first, store.attach("a"))

	now = now.Add(2 * time.Minute)
	store.attach("b")
	assert.Equal(t, 1, store.len())
	assert.Zero(t, store.attach("a").Len())
}
