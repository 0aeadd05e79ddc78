package server

import (
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Conversation is the message history of one chat session. It lives as long
// as the connection or terminal session that owns it and is never persisted.
type Conversation struct {
	mu       sync.Mutex
	messages []Message
}

func NewConversation() *Conversation {
	return &Conversation{}
}

func (c *Conversation) Add(role Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Role: role, Content: content, At: time.Now()})
}

func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

const sessionIdleTTL = 30 * time.Minute

// sessions keeps browser conversations across WebSocket reconnects, keyed by
// the id the page keeps in sessionStorage. Idle sessions are dropped; nothing
// is written to disk.
type sessions struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]*sessionEntry
}

type sessionEntry struct {
	conv     *Conversation
	lastSeen time.Time
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{ttl: ttl, now: time.Now, items: make(map[string]*sessionEntry)}
}

// attach returns the conversation for id, creating it when unknown. An empty
// id gets a conversation that is not remembered.
func (s *sessions) attach(id string) *Conversation {
	if id == "" {
		return NewConversation()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, e := range s.items {
		if now.Sub(e.lastSeen) > s.ttl {
			delete(s.items, key)
		}
	}
	e, ok := s.items[id]
	if !ok {
		e = &sessionEntry{conv: NewConversation()}
		s.items[id] = e
	}
	e.lastSeen = now
	return e.conv
}

func (s *sessions) touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[id]; ok {
		e.lastSeen = s.now()
	}
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
