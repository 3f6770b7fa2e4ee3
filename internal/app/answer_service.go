package app

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"
)

// SubmissionStore owns all writes to the submission set. InsertIfAbsent must
// be atomic on the (run, question, user) key: when a row already exists it
// returns that row with inserted=false, making client retries idempotent.
type SubmissionStore interface {
	InsertIfAbsent(ctx context.Context, sub domain.AnswerSubmission) (domain.AnswerSubmission, bool, error)
	ListByRun(ctx context.Context, runRef string) ([]domain.AnswerSubmission, error)
	ListByQuestion(ctx context.Context, runRef, questionID string) ([]domain.AnswerSubmission, error)
}

// CursorStore keeps each self-paced participant's private progression.
type CursorStore interface {
	Get(ctx context.Context, quizID, userID string) (domain.Cursor, bool, error)
	Put(ctx context.Context, cursor domain.Cursor) error
}

// AnswerService is the answer-acceptance protocol shared by both quiz modes.
// Scoring is the same pure function either way; only the "is this question
// still open" check differs.
type AnswerService struct {
	sessions    SessionStore
	quizzes     QuizRepository
	submissions SubmissionStore
	cursors     CursorStore
	events      EventPublisher
	now         func() time.Time
}

func NewAnswerService(sessions SessionStore, quizzes QuizRepository, submissions SubmissionStore, cursors CursorStore, events EventPublisher) *AnswerService {
	return &AnswerService{
		sessions:    sessions,
		quizzes:     quizzes,
		submissions: submissions,
		cursors:     cursors,
		events:      events,
		now:         time.Now,
	}
}

// NewAnswerServiceWithClock is test-only for deterministic timestamps.
func NewAnswerServiceWithClock(sessions SessionStore, quizzes QuizRepository, submissions SubmissionStore, cursors CursorStore, events EventPublisher, now func() time.Time) *AnswerService {
	svc := NewAnswerService(sessions, quizzes, submissions, cursors, events)
	svc.now = now
	return svc
}

// SubmitHosted records one scored answer against the shared session. The
// question must be the session's current one; a submission holding a stale
// index fails with ErrQuestionClosed and no row is written. A duplicate
// (run, question, user) key returns the stored row unchanged.
func (s *AnswerService) SubmitHosted(ctx context.Context, sessionID, questionID, userID, selectedOption string, clientSubmitTime time.Time) (domain.SubmissionResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if session.IsEnded() {
		return domain.SubmissionResult{}, domain.ErrSessionEnded
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	question, ok := quiz.QuestionAt(session.CurrentQuestionIndex)
	if !ok {
		return domain.SubmissionResult{}, domain.ErrQuestionNotFound
	}
	if question.ID != questionID {
		return domain.SubmissionResult{}, domain.ErrQuestionClosed
	}
	if !question.HasOption(selectedOption) {
		return domain.SubmissionResult{}, domain.ErrOptionNotFound
	}

	latencyMs := domain.ClampLatency(clientSubmitTime.Sub(session.QuestionStartedAt), question.TimeLimitSeconds)
	submission := s.buildSubmission(session.ID, quiz.ID, question, userID, selectedOption, latencyMs)

	return s.store(ctx, submission, quiz.ID)
}

// BeginSelfPaced creates (or resumes) a participant's private cursor and
// returns their current question. The cursor, not any shared session, is
// what "question start" means in this mode.
func (s *AnswerService) BeginSelfPaced(ctx context.Context, quizID, userID string) (domain.Cursor, domain.Question, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Cursor{}, domain.Question{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.Cursor{}, domain.Question{}, domain.ErrQuizNotFound
	}

	cursor, found, err := s.cursors.Get(ctx, quizID, userID)
	if err != nil {
		return domain.Cursor{}, domain.Question{}, err
	}
	if !found {
		cursor = domain.Cursor{QuizID: quizID, UserID: userID, QuestionIndex: 0, StartedAt: s.now()}
		if err := s.cursors.Put(ctx, cursor); err != nil {
			return domain.Cursor{}, domain.Question{}, err
		}
	}

	question, ok := quiz.QuestionAt(cursor.QuestionIndex)
	if !ok {
		// Cursor past the last question: the run is complete.
		return cursor, domain.Question{}, nil
	}
	return cursor, question.Public(), nil
}

// SubmitSelfPaced records an answer against the participant's own cursor.
// There is no shared "current question", so no closed check; latency runs
// from the cursor's start timestamp. A first-time accepted answer for the
// cursor's question advances the cursor and restamps it.
func (s *AnswerService) SubmitSelfPaced(ctx context.Context, quizID, questionID, userID, selectedOption string) (domain.SubmissionResult, domain.Cursor, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.SubmissionResult{}, domain.Cursor{}, err
	}

	var question domain.Question
	found := false
	for _, q := range quiz.Questions {
		if q.ID == questionID {
			question = q
			found = true
			break
		}
	}
	if !found {
		return domain.SubmissionResult{}, domain.Cursor{}, domain.ErrQuestionNotFound
	}
	if !question.HasOption(selectedOption) {
		return domain.SubmissionResult{}, domain.Cursor{}, domain.ErrOptionNotFound
	}

	cursor, cursorFound, err := s.cursors.Get(ctx, quizID, userID)
	if err != nil {
		return domain.SubmissionResult{}, domain.Cursor{}, err
	}
	if !cursorFound {
		return domain.SubmissionResult{}, domain.Cursor{}, domain.ErrCursorNotFound
	}

	now := s.now()
	latencyMs := domain.ClampLatency(now.Sub(cursor.StartedAt), question.TimeLimitSeconds)
	submission := s.buildSubmission("", quiz.ID, question, userID, selectedOption, latencyMs)

	result, err := s.store(ctx, submission, quiz.ID)
	if err != nil {
		return domain.SubmissionResult{}, domain.Cursor{}, err
	}

	if !result.AlreadyRecorded && cursor.QuestionIndex < len(quiz.Questions) {
		if current, ok := quiz.QuestionAt(cursor.QuestionIndex); ok && current.ID == questionID {
			cursor.QuestionIndex++
			cursor.StartedAt = now
			if err := s.cursors.Put(ctx, cursor); err != nil {
				return domain.SubmissionResult{}, domain.Cursor{}, err
			}
		}
	}
	return result, cursor, nil
}

func (s *AnswerService) buildSubmission(sessionID, quizID string, question domain.Question, userID, selectedOption string, latencyMs int64) domain.AnswerSubmission {
	correct := selectedOption == question.CorrectOption
	return domain.AnswerSubmission{
		ID:                newID(),
		SessionID:         sessionID,
		QuizID:            quizID,
		QuestionID:        question.ID,
		UserID:            userID,
		SelectedOption:    selectedOption,
		SubmittedAt:       s.now(),
		ResponseLatencyMs: latencyMs,
		IsCorrect:         correct,
		Score:             domain.ScoreAnswer(correct, latencyMs),
	}
}

func (s *AnswerService) store(ctx context.Context, submission domain.AnswerSubmission, quizID string) (domain.SubmissionResult, error) {
	stored, inserted, err := s.submissions.InsertIfAbsent(ctx, submission)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if inserted {
		// Only a first-time insert changes the board; retries publish nothing.
		if all, err := s.submissions.ListByRun(ctx, stored.RunRef()); err == nil {
			lb := domain.NewLeaderboard(quizID, stored.SessionID, domain.ScopeCumulative, all, s.now())
			s.events.Publish(QuizTopic(quizID), Event{Type: EventLeaderboard, Leaderboard: &lb})
		}
	}
	return domain.SubmissionResult{Submission: stored, AlreadyRecorded: !inserted}, nil
}
