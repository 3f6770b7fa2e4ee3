package postgres

import (
	"context"
	"errors"

	"live-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SubmissionStore persists scored answers. The single-submission-per-question
// invariant hangs entirely on the unique index over (run_ref, question_id,
// user_id): INSERT ... ON CONFLICT DO NOTHING is the atomic insert-if-absent,
// and a losing insert re-reads the winner so retries are idempotent.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

func (s *SubmissionStore) InsertIfAbsent(ctx context.Context, sub domain.AnswerSubmission) (domain.AnswerSubmission, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO answer_submissions
			(id, run_ref, session_id, quiz_id, question_id, user_id, selected_option, submitted_at, response_latency_ms, is_correct, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_ref, question_id, user_id) DO NOTHING`,
		sub.ID, sub.RunRef(), nullable(sub.SessionID), sub.QuizID, sub.QuestionID, sub.UserID,
		sub.SelectedOption, sub.SubmittedAt, sub.ResponseLatencyMs, sub.IsCorrect, sub.Score,
	)
	if err != nil {
		return domain.AnswerSubmission{}, false, storeErr("insert submission", err)
	}
	if tag.RowsAffected() == 1 {
		return sub, true, nil
	}

	existing, err := s.getByKey(ctx, sub.RunRef(), sub.QuestionID, sub.UserID)
	if err != nil {
		return domain.AnswerSubmission{}, false, err
	}
	return existing, false, nil
}

func (s *SubmissionStore) ListByRun(ctx context.Context, runRef string) ([]domain.AnswerSubmission, error) {
	return s.list(ctx, `
		SELECT id, session_id, quiz_id, question_id, user_id, selected_option, submitted_at, response_latency_ms, is_correct, score
		FROM answer_submissions WHERE run_ref=$1
		ORDER BY question_id, user_id`, runRef)
}

func (s *SubmissionStore) ListByQuestion(ctx context.Context, runRef, questionID string) ([]domain.AnswerSubmission, error) {
	return s.list(ctx, `
		SELECT id, session_id, quiz_id, question_id, user_id, selected_option, submitted_at, response_latency_ms, is_correct, score
		FROM answer_submissions WHERE run_ref=$1 AND question_id=$2
		ORDER BY user_id`, runRef, questionID)
}

func (s *SubmissionStore) getByKey(ctx context.Context, runRef, questionID, userID string) (domain.AnswerSubmission, error) {
	rows, err := s.list(ctx, `
		SELECT id, session_id, quiz_id, question_id, user_id, selected_option, submitted_at, response_latency_ms, is_correct, score
		FROM answer_submissions WHERE run_ref=$1 AND question_id=$2 AND user_id=$3`, runRef, questionID, userID)
	if err != nil {
		return domain.AnswerSubmission{}, err
	}
	if len(rows) == 0 {
		return domain.AnswerSubmission{}, storeErr("reread submission", pgx.ErrNoRows)
	}
	return rows[0], nil
}

func (s *SubmissionStore) list(ctx context.Context, query string, args ...interface{}) ([]domain.AnswerSubmission, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list submissions", err)
	}
	defer rows.Close()

	var out []domain.AnswerSubmission
	for rows.Next() {
		var sub domain.AnswerSubmission
		var sessionID *string
		if err := rows.Scan(
			&sub.ID, &sessionID, &sub.QuizID, &sub.QuestionID, &sub.UserID,
			&sub.SelectedOption, &sub.SubmittedAt, &sub.ResponseLatencyMs, &sub.IsCorrect, &sub.Score,
		); err != nil {
			return nil, storeErr("scan submission", err)
		}
		if sessionID != nil {
			sub.SessionID = *sessionID
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, storeErr("iterate submissions", err)
	}
	return out, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
