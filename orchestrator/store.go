package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionSummary is the per-session record returned by the summary endpoint.
type SessionSummary struct {
	SessionID                uuid.UUID `json:"session_id"`
	CreatedAt                time.Time `json:"created_at"`
	LastActivityAt           time.Time `json:"last_activity_at"`
	TranscriptSnippets       []string  `json:"transcript_snippets"`
	GeneratedComponentsCount int       `json:"generated_components_count"`
}

// maxTranscriptSnippets caps the snippet ring kept per session.
const maxTranscriptSnippets = 20

// SessionStore is the in-memory table of active sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*SessionSummary
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uuid.UUID]*SessionSummary)}
}

func (s *SessionStore) Create() *SessionSummary {
	now := time.Now().UTC()
	summary := &SessionSummary{
		SessionID:          uuid.New(),
		CreatedAt:          now,
		LastActivityAt:     now,
		TranscriptSnippets: []string{},
	}

	s.mu.Lock()
	s.sessions[summary.SessionID] = summary
	s.mu.Unlock()

	return summary
}

// Get returns a copy of the summary, touching last activity.
func (s *SessionStore) Get(id uuid.UUID) (SessionSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.sessions[id]
	if !ok {
		return SessionSummary{}, false
	}
	summary.LastActivityAt = time.Now().UTC()

	out := *summary
	out.TranscriptSnippets = append([]string(nil), summary.TranscriptSnippets...)
	return out, true
}

func (s *SessionStore) Exists(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

func (s *SessionStore) Delete(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// RecordTranscript appends a snippet to every active session. Bus traffic is
// not session-scoped, so activity is attributed to all live sessions.
func (s *SessionStore) RecordTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, summary := range s.sessions {
		summary.TranscriptSnippets = append(summary.TranscriptSnippets, text)
		if len(summary.TranscriptSnippets) > maxTranscriptSnippets {
			summary.TranscriptSnippets = summary.TranscriptSnippets[1:]
		}
		summary.LastActivityAt = now
	}
}

// RecordComponent bumps the generated component counter on active sessions.
func (s *SessionStore) RecordComponent() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, summary := range s.sessions {
		summary.GeneratedComponentsCount++
		summary.LastActivityAt = now
	}
}
