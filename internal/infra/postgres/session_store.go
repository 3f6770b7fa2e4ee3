package postgres

import (
	"context"
	"errors"

	"live-quiz-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

// SessionStore persists quiz sessions in Postgres. A partial unique index on
// (quiz_id) WHERE state='active' enforces the single-active-session rule at
// insert time; the versioned UPDATE is the compare-and-swap for transitions.
// Ended sessions stay as rows for historical leaderboards.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, session domain.QuizSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_sessions (id, quiz_id, event_id, state, current_question_index, version, question_started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.QuizID, session.EventID, string(session.State),
		session.CurrentQuestionIndex, session.Version, session.QuestionStartedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyActive
		}
		return storeErr("create session", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	return s.scanOne(ctx, `
		SELECT id, quiz_id, event_id, state, current_question_index, version, question_started_at
		FROM quiz_sessions WHERE id=$1`, sessionID)
}

func (s *SessionStore) GetActiveByQuiz(ctx context.Context, quizID string) (domain.QuizSession, bool, error) {
	session, err := s.scanOne(ctx, `
		SELECT id, quiz_id, event_id, state, current_question_index, version, question_started_at
		FROM quiz_sessions WHERE quiz_id=$1 AND state='active'`, quizID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.QuizSession{}, false, nil
	}
	if err != nil {
		return domain.QuizSession{}, false, err
	}
	return session, true, nil
}

func (s *SessionStore) Update(ctx context.Context, session domain.QuizSession, expectedVersion int64) (domain.QuizSession, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quiz_sessions
		SET state=$2, current_question_index=$3, version=$4, question_started_at=$5
		WHERE id=$1 AND version=$6`,
		session.ID, string(session.State), session.CurrentQuestionIndex,
		session.Version, session.QuestionStartedAt, expectedVersion,
	)
	if err != nil {
		return domain.QuizSession{}, storeErr("update session", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, session.ID); errors.Is(err, domain.ErrSessionNotFound) {
			return domain.QuizSession{}, domain.ErrSessionNotFound
		}
		return domain.QuizSession{}, domain.ErrVersionConflict
	}
	return session, nil
}

func (s *SessionStore) scanOne(ctx context.Context, query, arg string) (domain.QuizSession, error) {
	var session domain.QuizSession
	var state string
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&session.ID, &session.QuizID, &session.EventID, &state,
		&session.CurrentQuestionIndex, &session.Version, &session.QuestionStartedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, storeErr("load session", err)
	}
	session.State = domain.SessionState(state)
	return session, nil
}
