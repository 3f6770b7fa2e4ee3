package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// CursorStore keeps self-paced cursors in process memory.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]domain.Cursor
}

func NewCursorStore() *CursorStore {
	return &CursorStore{cursors: make(map[string]domain.Cursor)}
}

func (s *CursorStore) Get(_ context.Context, quizID, userID string) (domain.Cursor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursor, ok := s.cursors[quizID+":"+userID]
	return cursor, ok, nil
}

func (s *CursorStore) Put(_ context.Context, cursor domain.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[cursor.QuizID+":"+cursor.UserID] = cursor
	return nil
}
