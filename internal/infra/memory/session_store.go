package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore. The
// mutex makes Create and Update atomic, which is all the optimistic
// concurrency on the version token needs.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.QuizSession
	byQuiz   map[string]string // quizID -> active session ID
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.QuizSession),
		byQuiz:   make(map[string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if activeID, ok := s.byQuiz[session.QuizID]; ok {
		if existing, ok := s.sessions[activeID]; ok && existing.IsActive() {
			return domain.ErrAlreadyActive
		}
	}
	s.sessions[session.ID] = session
	s.byQuiz[session.QuizID] = session.ID
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.QuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) GetActiveByQuiz(_ context.Context, quizID string) (domain.QuizSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	activeID, ok := s.byQuiz[quizID]
	if !ok {
		return domain.QuizSession{}, false, nil
	}
	session, ok := s.sessions[activeID]
	if !ok || !session.IsActive() {
		return domain.QuizSession{}, false, nil
	}
	return session, true, nil
}

func (s *SessionStore) Update(_ context.Context, session domain.QuizSession, expectedVersion int64) (domain.QuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if stored.Version != expectedVersion {
		return domain.QuizSession{}, domain.ErrVersionConflict
	}
	s.sessions[session.ID] = session
	if session.IsEnded() && s.byQuiz[session.QuizID] == session.ID {
		delete(s.byQuiz, session.QuizID)
	}
	return session, nil
}
