package app

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"
)

// SessionStore abstracts how quiz sessions are stored (in-memory, Redis,
// Postgres). Update is a compare-and-swap on the version token: the store
// must apply the write atomically only when the stored version still equals
// expectedVersion, and return domain.ErrVersionConflict otherwise.
type SessionStore interface {
	Create(ctx context.Context, session domain.QuizSession) error
	Get(ctx context.Context, sessionID string) (domain.QuizSession, error)
	GetActiveByQuiz(ctx context.Context, quizID string) (domain.QuizSession, bool, error)
	Update(ctx context.Context, session domain.QuizSession, expectedVersion int64) (domain.QuizSession, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionService owns the host-directed session state machine. The host is
// the only writer; a rare second host loses the version compare-and-swap and
// gets ErrVersionConflict instead of corrupting the question pointer.
type SessionService struct {
	sessions SessionStore
	quizzes  QuizRepository
	events   EventPublisher
	now      func() time.Time
}

func NewSessionService(sessions SessionStore, quizzes QuizRepository, events EventPublisher) *SessionService {
	return &SessionService{sessions: sessions, quizzes: quizzes, events: events, now: time.Now}
}

// NewSessionServiceWithClock is test-only for deterministic timestamps.
func NewSessionServiceWithClock(sessions SessionStore, quizzes QuizRepository, events EventPublisher, now func() time.Time) *SessionService {
	return &SessionService{sessions: sessions, quizzes: quizzes, events: events, now: now}
}

// Start creates the shared session for a quiz at question zero. At most one
// session per quiz may be active; the store enforces that atomically.
func (s *SessionService) Start(ctx context.Context, quizID, eventID string) (domain.QuizSession, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.QuizSession{}, domain.ErrQuizNotFound
	}

	session := domain.QuizSession{
		ID:                   newID(),
		QuizID:               quizID,
		EventID:              eventID,
		State:                domain.SessionActive,
		CurrentQuestionIndex: 0,
		Version:              1,
		QuestionStartedAt:    s.now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.QuizSession{}, err
	}

	s.publish(session)
	return session, nil
}

// Advance moves the shared question pointer forward by exactly one. The
// question index and version never decrease; a stale expectedVersion fails
// with ErrVersionConflict and the host must re-read.
func (s *SessionService) Advance(ctx context.Context, sessionID string, expectedVersion int64) (domain.QuizSession, error) {
	current, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if current.IsEnded() {
		return domain.QuizSession{}, domain.ErrSessionEnded
	}
	if current.Version != expectedVersion {
		return domain.QuizSession{}, domain.ErrVersionConflict
	}

	quiz, err := s.quizzes.GetQuiz(ctx, current.QuizID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if current.CurrentQuestionIndex >= len(quiz.Questions)-1 {
		return domain.QuizSession{}, domain.ErrAlreadyAtLastQuestion
	}

	next := current
	next.CurrentQuestionIndex++
	next.Version++
	next.QuestionStartedAt = s.now()

	// The store CAS is authoritative; the check above only fails fast.
	updated, err := s.sessions.Update(ctx, next, expectedVersion)
	if err != nil {
		return domain.QuizSession{}, err
	}

	s.publish(updated)
	return updated, nil
}

// End transitions the session to its terminal state. Subsequent Advance and
// End calls fail with ErrSessionEnded.
func (s *SessionService) End(ctx context.Context, sessionID string, expectedVersion int64) (domain.QuizSession, error) {
	current, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if current.IsEnded() {
		return domain.QuizSession{}, domain.ErrSessionEnded
	}
	if current.Version != expectedVersion {
		return domain.QuizSession{}, domain.ErrVersionConflict
	}

	next := current
	next.State = domain.SessionEnded
	next.Version++

	updated, err := s.sessions.Update(ctx, next, expectedVersion)
	if err != nil {
		return domain.QuizSession{}, err
	}

	s.publish(updated)
	return updated, nil
}

// Get returns a point-in-time snapshot of the session for the poll path.
func (s *SessionService) Get(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	return s.sessions.Get(ctx, sessionID)
}

// ActiveForQuiz resolves the quiz's shared session, if one is running.
func (s *SessionService) ActiveForQuiz(ctx context.Context, quizID string) (domain.QuizSession, bool, error) {
	return s.sessions.GetActiveByQuiz(ctx, quizID)
}

// CurrentQuestion resolves the live question for a session, sanitized for
// participant delivery.
func (s *SessionService) CurrentQuestion(ctx context.Context, session domain.QuizSession) (domain.Question, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Question{}, err
	}
	question, ok := quiz.QuestionAt(session.CurrentQuestionIndex)
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return question.Public(), nil
}

func (s *SessionService) publish(session domain.QuizSession) {
	snapshot := session
	s.events.Publish(QuizTopic(session.QuizID), Event{Type: EventSession, Session: &snapshot})
}
