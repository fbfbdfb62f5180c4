package chatbot

import "sync"

// Session is the chat-level state shared by the exchanges of one conversation
type Session struct {
	mu         sync.RWMutex
	id         string
	activities []string
}

// NewSession creates a new Session. id may be empty for a new conversation.
func NewSession(id string) *Session {
	return &Session{id: id}
}

// ID returns the session id, or nil before the server has assigned one
func (s *Session) ID() *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.id == "" {
		return nil
	}
	id := s.id
	return &id
}

// SetID stores the server-assigned id; it is used for every later request
func (s *Session) SetID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// AddActivity appends lines to the session activity log
func (s *Session) AddActivity(lines ...string) {
	s.mu.Lock()
	s.activities = append(s.activities, lines...)
	s.mu.Unlock()
}

// Activities returns a copy of the activity log, oldest first
func (s *Session) Activities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.activities...)
}
