package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

type submissionKey struct {
	runRef     string
	questionID string
	userID     string
}

// SubmissionStore is an in-memory implementation of app.SubmissionStore.
// Uniqueness on (run, question, user) is enforced by a single map insert
// under the mutex, the in-process equivalent of insert-if-absent.
type SubmissionStore struct {
	mu   sync.Mutex
	rows map[submissionKey]domain.AnswerSubmission
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{rows: make(map[submissionKey]domain.AnswerSubmission)}
}

func (s *SubmissionStore) InsertIfAbsent(_ context.Context, sub domain.AnswerSubmission) (domain.AnswerSubmission, bool, error) {
	key := submissionKey{runRef: sub.RunRef(), questionID: sub.QuestionID, userID: sub.UserID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rows[key]; ok {
		return existing, false, nil
	}
	s.rows[key] = sub
	return sub, true, nil
}

func (s *SubmissionStore) ListByRun(_ context.Context, runRef string) ([]domain.AnswerSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AnswerSubmission
	for key, sub := range s.rows {
		if key.runRef == runRef {
			out = append(out, sub)
		}
	}
	sortSubmissions(out)
	return out, nil
}

func (s *SubmissionStore) ListByQuestion(_ context.Context, runRef, questionID string) ([]domain.AnswerSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AnswerSubmission
	for key, sub := range s.rows {
		if key.runRef == runRef && key.questionID == questionID {
			out = append(out, sub)
		}
	}
	sortSubmissions(out)
	return out, nil
}

// sortSubmissions keeps list output stable across calls; map iteration alone
// would not be.
func sortSubmissions(subs []domain.AnswerSubmission) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].QuestionID != subs[j].QuestionID {
			return subs[i].QuestionID < subs[j].QuestionID
		}
		return subs[i].UserID < subs[j].UserID
	})
}
