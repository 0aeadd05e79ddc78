// Package server exposes chat turns over HTTP: server-sent events for single
// requests and a WebSocket for browser sessions.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dyike/StockChat/internal/assistant"
	"github.com/dyike/StockChat/internal/metrics"
	"github.com/dyike/StockChat/internal/stream"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRequestBodySize = 64 << 10

//go:embed web
var webFS embed.FS

// Responder answers one turn. The runtime's current engine satisfies it.
type Responder interface {
	Respond(ctx context.Context, query string) *assistant.Reply
	TokenDelay() time.Duration
}

type Server struct {
	source         func() Responder
	logger         *slog.Logger
	originPatterns []string
	sessions       *sessions

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]struct{}
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOriginPatterns sets the hosts allowed to open the chat WebSocket from
// another origin.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// New takes a function rather than a Responder so a reloaded engine is picked
// up by the next turn.
func New(source func() Responder, opts ...Option) *Server {
	s := &Server{
		source:   source,
		logger:   slog.Default(),
		sessions: newSessions(sessionIdleTTL),
		clients:  make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get("/", s.handleIndex)
	r.Post("/api/chat", s.handleChat)
	r.Get("/ws/chat", s.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streamed answers can outlive any fixed bound
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := fs.ReadFile(webFS, "web/index.html")
	if err != nil {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

type chatRequest struct {
	Query string `json:"query"`
}

type tokenEvent struct {
	Token string `json:"token"`
}

type doneEvent struct {
	TurnID  string `json:"turn_id"`
	Outcome string `json:"outcome"`
	Content string `json:"content"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	responder := s.source()
	reply := responder.Respond(r.Context(), req.Query)
	logger := s.logger.With("turn_id", reply.TurnID, "request_id", chiMiddleware.GetReqID(r.Context()))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	for tok := range stream.Pace(r.Context(), reply.Tokens(), responder.TokenDelay()) {
		data, _ := json.Marshal(tokenEvent{Token: tok})
		if err := writeSSE(w, "token", string(data)); err != nil {
			logger.Debug("sse client gone", "error", err)
			return
		}
		flusher.Flush()
	}
	if r.Context().Err() != nil {
		return
	}

	data, _ := json.Marshal(doneEvent{
		TurnID:  reply.TurnID,
		Outcome: string(reply.Outcome),
		Content: reply.Content(),
	})
	if err := writeSSE(w, "done", string(data)); err != nil {
		logger.Debug("sse client gone", "error", err)
		return
	}
	flusher.Flush()
}

type wsIncoming struct {
	Query string `json:"query"`
}

type wsOutgoing struct {
	Type     string    `json:"type"`
	Token    string    `json:"token,omitempty"`
	TurnID   string    `json:"turn_id,omitempty"`
	Outcome  string    `json:"outcome,omitempty"`
	Content  string    `json:"content,omitempty"`
	Error    string    `json:"error,omitempty"`
	Event    string    `json:"event,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.logger.Error("failed to accept websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			s.logger.Debug("failed to close websocket", "error", closeErr)
		}
	}()

	ctx := r.Context()
	sessionID := r.URL.Query().Get("session")
	conv := s.sessions.attach(sessionID)
	if history := conv.Messages(); len(history) > 0 {
		if err := wsjson.Write(ctx, ws, wsOutgoing{Type: "history", Messages: history}); err != nil {
			return
		}
	}

	s.addClient(ws)
	defer s.removeClient(ws)

	for {
		var in wsIncoming
		if err := wsjson.Read(ctx, ws, &in); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, io.EOF) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if strings.TrimSpace(in.Query) == "" {
			if err := wsjson.Write(ctx, ws, wsOutgoing{Type: "error", Error: "query is required"}); err != nil {
				return
			}
			continue
		}
		err := s.streamTurn(ctx, ws, conv, in.Query)
		if sessionID != "" {
			s.sessions.touch(sessionID)
		}
		if err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

func (s *Server) addClient(ws *websocket.Conn) {
	s.clientsMu.Lock()
	s.clients[ws] = struct{}{}
	s.clientsMu.Unlock()
}

func (s *Server) removeClient(ws *websocket.Conn) {
	s.clientsMu.Lock()
	delete(s.clients, ws)
	s.clientsMu.Unlock()
}

// Notify pushes a notice frame to every open chat connection. Its signature
// matches the runtime's reload notifier.
func (s *Server) Notify(topic, payload string) {
	s.clientsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for ws := range s.clients {
		conns = append(conns, ws)
	}
	s.clientsMu.Unlock()

	s.logger.Info("broadcasting notice", "event", topic, "clients", len(conns))
	for _, ws := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := wsjson.Write(ctx, ws, wsOutgoing{Type: "notice", Event: topic, Content: payload}); err != nil {
			s.logger.Debug("notice not delivered", "error", err)
		}
		cancel()
	}
}

func (s *Server) streamTurn(ctx context.Context, ws *websocket.Conn, conv *Conversation, query string) error {
	conv.Add(RoleUser, query)

	responder := s.source()
	reply := responder.Respond(ctx, query)

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	for tok := range stream.Pace(ctx, reply.Tokens(), responder.TokenDelay()) {
		if err := wsjson.Write(ctx, ws, wsOutgoing{Type: "token", Token: tok}); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	content := reply.Content()
	conv.Add(RoleAssistant, content)
	return wsjson.Write(ctx, ws, wsOutgoing{
		Type:    "done",
		TurnID:  reply.TurnID,
		Outcome: string(reply.Outcome),
		Content: content,
	})
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
