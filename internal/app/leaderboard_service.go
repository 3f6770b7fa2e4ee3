package app

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"
)

// LeaderboardService is the read-side projection over the submission set. It
// owns no stored state; every call recomputes from scratch, which is cheap
// at quiz scale and makes concurrent recomputation trivially safe.
type LeaderboardService struct {
	sessions    SessionStore
	quizzes     QuizRepository
	submissions SubmissionStore
	now         func() time.Time
}

func NewLeaderboardService(sessions SessionStore, quizzes QuizRepository, submissions SubmissionStore) *LeaderboardService {
	return &LeaderboardService{sessions: sessions, quizzes: quizzes, submissions: submissions, now: time.Now}
}

// ForSession returns either the current question's board or the cumulative
// board across all questions answered so far in the session.
func (s *LeaderboardService) ForSession(ctx context.Context, sessionID string, scope domain.LeaderboardScope) (domain.Leaderboard, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	var subs []domain.AnswerSubmission
	switch scope {
	case domain.ScopeQuestion:
		quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
		if err != nil {
			return domain.Leaderboard{}, err
		}
		question, ok := quiz.QuestionAt(session.CurrentQuestionIndex)
		if !ok {
			return domain.Leaderboard{}, domain.ErrQuestionNotFound
		}
		subs, err = s.submissions.ListByQuestion(ctx, session.ID, question.ID)
		if err != nil {
			return domain.Leaderboard{}, err
		}
	default:
		scope = domain.ScopeCumulative
		subs, err = s.submissions.ListByRun(ctx, session.ID)
		if err != nil {
			return domain.Leaderboard{}, err
		}
	}

	return domain.NewLeaderboard(session.QuizID, session.ID, scope, subs, s.now()), nil
}

// ForQuiz returns the cumulative self-paced board for a quiz.
func (s *LeaderboardService) ForQuiz(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	subs, err := s.submissions.ListByRun(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.NewLeaderboard(quizID, "", domain.ScopeCumulative, subs, s.now()), nil
}
