package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

type answerFixture struct {
	sessions    *app.SessionService
	answers     *app.AnswerService
	leaderboard *app.LeaderboardService
	store       *memory.SubmissionStore
	hub         *app.Hub
	clock       *testClock
}

func newAnswerFixture(t *testing.T) *answerFixture {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	sessionStore := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(threeQuestionQuiz()), time.Minute)
	submissions := memory.NewSubmissionStore()
	cursors := memory.NewCursorStore()
	hub := app.NewHub()
	return &answerFixture{
		sessions:    app.NewSessionServiceWithClock(sessionStore, quizzes, hub, clock.Now),
		answers:     app.NewAnswerServiceWithClock(sessionStore, quizzes, submissions, cursors, hub, clock.Now),
		leaderboard: app.NewLeaderboardService(sessionStore, quizzes, submissions),
		store:       submissions,
		hub:         hub,
		clock:       clock,
	}
}

func TestHostedScoringScenario(t *testing.T) {
	ctx := context.Background()
	fx := newAnswerFixture(t)

	session, err := fx.sessions.Start(ctx, "quiz-1", "event-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	started := fx.clock.Now()

	// X answers correctly 2 seconds in.
	result, err := fx.answers.SubmitHosted(ctx, session.ID, "q1", "user-x", "o2", started.Add(2*time.Second))
	if err != nil {
		t.Fatalf("submit x: %v", err)
	}
	if result.AlreadyRecorded {
		t.Fatalf("first submission must not be marked duplicate")
	}
	if !result.Submission.IsCorrect || result.Submission.Score != 1190 || result.Submission.ResponseLatencyMs != 2000 {
		t.Fatalf("expected 1190 points at 2000ms, got %+v", result.Submission)
	}

	// Y answers wrong 5 seconds in.
	result, err = fx.answers.SubmitHosted(ctx, session.ID, "q1", "user-y", "o1", started.Add(5*time.Second))
	if err != nil {
		t.Fatalf("submit y: %v", err)
	}
	if result.Submission.IsCorrect || result.Submission.Score != 0 {
		t.Fatalf("expected zero score for wrong answer, got %+v", result.Submission)
	}

	lb, err := fx.leaderboard.ForSession(ctx, session.ID, domain.ScopeCumulative)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lb.Entries))
	}
	if lb.Entries[0].UserID != "user-x" || lb.Entries[0].TotalScore != 1190 || lb.Entries[0].TotalTimeMs != 2000 {
		t.Fatalf("expected x first with 1190/2000ms, got %+v", lb.Entries[0])
	}
	if lb.Entries[1].UserID != "user-y" || lb.Entries[1].TotalScore != 0 || lb.Entries[1].TotalTimeMs != 5000 {
		t.Fatalf("expected y second with 0/5000ms, got %+v", lb.Entries[1])
	}
}

func TestStaleSubmissionIsClosed(t *testing.T) {
	ctx := context.Background()
	fx := newAnswerFixture(t)

	session, err := fx.sessions.Start(ctx, "quiz-1", "event-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := fx.sessions.Advance(ctx, session.ID, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// Participant still holds question 0.
	_, err = fx.answers.SubmitHosted(ctx, session.ID, "q1", "user-x", "o2", fx.clock.Now())
	if !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("expected ErrQuestionClosed, got %v", err)
	}

	rows, _ := fx.store.ListByRun(ctx, session.ID)
	if len(rows) != 0 {
		t.Fatalf("closed submission must not create a row, got %d", len(rows))
	}
}

func TestRetryReturnsOriginalSubmission(t *testing.T) {
	ctx := context.Background()
	fx := newAnswerFixture(t)

	session, err := fx.sessions.Start(ctx, "quiz-1", "event-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	started := fx.clock.Now()

	first, err := fx.answers.SubmitHosted(ctx, session.ID, "q1", "user-x", "o2", started.Add(2*time.Second))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Simulated retry flips the option; the stored answer must not change.
	retry, err := fx.answers.SubmitHosted(ctx, session.ID, "q1", "user-x", "o1", started.Add(8*time.Second))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !retry.AlreadyRecorded {
		t.Fatalf("expected duplicate to be flagged")
	}
	if retry.Submission.ID != first.Submission.ID || retry.Submission.SelectedOption != "o2" || retry.Submission.Score != 1190 {
		t.Fatalf("retry must return the first record unchanged, got %+v", retry.Submission)
	}
}

func TestSubmitAfterSessionEnded(t *testing.T) {
	ctx := context.Background()
	fx := newAnswerFixture(t)

	session, err := fx.sessions.Start(ctx, "quiz-1", "event-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := fx.sessions.End(ctx, session.ID, 1); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := fx.answers.SubmitHosted(ctx, session.ID, "q1", "user-x", "o2", fx.clock.Now()); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestSubmitUnknownOption(t *testing.T) {
	ctx := context.Background()
	fx := newAnswerFixture(t)

	session, err := fx.sessions.Start(ctx, "quiz-1", "event-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := fx.answers.SubmitHosted(ctx, session.ID, "q1", "user-x", "o9", fx.clock.Now()); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound, got %v", err)
	}
}

func TestLatencyClampedToTimeLimit(t *testing.T) {
	ctx := context.Background()
	fx := newAnswerFixture(t)

	session, err := fx.sessions.Start(ctx, "quiz-1", "event-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	started := fx.clock.Now()

	// Two minutes on a 30s question: advisory limit, still accepted, latency clamped.
	result, err := fx.answers.SubmitHosted(ctx, session.ID, "q1", "user-x", "o2", started.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Submission.ResponseLatencyMs != 30000 {
		t.Fatalf("expected latency clamped to 30000ms, got %d", result.Submission.ResponseLatencyMs)
	}
	if result.Submission.Score != 850 {
		t.Fatalf("expected 850 points at the clamp, got %d", result.Submission.Score)
	}
}

func TestSelfPacedFlow(t *testing.T) {
	ctx := context.Background()
	fx := newAnswerFixture(t)

	cursor, question, err := fx.answers.BeginSelfPaced(ctx, "quiz-1", "user-x")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if cursor.QuestionIndex != 0 || question.ID != "q1" {
		t.Fatalf("expected cursor at q1, got %+v %+v", cursor, question)
	}
	if question.CorrectOption != "" {
		t.Fatalf("correct option must not leak")
	}

	fx.clock.Advance(3 * time.Second)
	result, cursor, err := fx.answers.SubmitSelfPaced(ctx, "quiz-1", "q1", "user-x", "o2")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Submission.IsCorrect || result.Submission.ResponseLatencyMs != 3000 || result.Submission.Score != 1185 {
		t.Fatalf("expected 1185 at 3000ms, got %+v", result.Submission)
	}
	if result.Submission.SessionID != "" {
		t.Fatalf("self-paced submissions carry no session")
	}
	if cursor.QuestionIndex != 1 {
		t.Fatalf("expected cursor advanced to 1, got %+v", cursor)
	}

	// Retry for the already-answered question: idempotent, cursor untouched.
	result, cursor, err = fx.answers.SubmitSelfPaced(ctx, "quiz-1", "q1", "user-x", "o1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !result.AlreadyRecorded || result.Submission.SelectedOption != "o2" {
		t.Fatalf("expected original row back, got %+v", result)
	}
	if cursor.QuestionIndex != 1 {
		t.Fatalf("retry must not advance the cursor, got %+v", cursor)
	}

	// Two participants free-run independently.
	otherCursor, otherQuestion, err := fx.answers.BeginSelfPaced(ctx, "quiz-1", "user-y")
	if err != nil {
		t.Fatalf("begin y: %v", err)
	}
	if otherCursor.QuestionIndex != 0 || otherQuestion.ID != "q1" {
		t.Fatalf("expected y at q1, got %+v", otherCursor)
	}

	lb, err := fx.leaderboard.ForQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("quiz leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != "user-x" || lb.Entries[0].TotalScore != 1185 {
		t.Fatalf("unexpected board: %+v", lb.Entries)
	}
}

func TestSelfPacedRequiresBegin(t *testing.T) {
	ctx := context.Background()
	fx := newAnswerFixture(t)

	if _, _, err := fx.answers.SubmitSelfPaced(ctx, "quiz-1", "q1", "user-x", "o2"); !errors.Is(err, domain.ErrCursorNotFound) {
		t.Fatalf("expected ErrCursorNotFound, got %v", err)
	}
}

func TestFirstInsertPublishesLeaderboard(t *testing.T) {
	ctx := context.Background()
	fx := newAnswerFixture(t)

	session, err := fx.sessions.Start(ctx, "quiz-1", "event-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	updates, cancel := fx.hub.Subscribe(app.QuizTopic("quiz-1"))
	defer cancel()

	started := fx.clock.Now()
	if _, err := fx.answers.SubmitHosted(ctx, session.ID, "q1", "user-x", "o2", started.Add(time.Second)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	event := <-updates
	if event.Type != app.EventLeaderboard || event.Leaderboard == nil {
		t.Fatalf("expected leaderboard event, got %+v", event)
	}
	if len(event.Leaderboard.Entries) != 1 || event.Leaderboard.Entries[0].UserID != "user-x" {
		t.Fatalf("unexpected board payload: %+v", event.Leaderboard)
	}

	// A retry publishes nothing further.
	if _, err := fx.answers.SubmitHosted(ctx, session.ID, "q1", "user-x", "o1", started.Add(2*time.Second)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	select {
	case extra := <-updates:
		t.Fatalf("duplicate submit must not publish, got %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPerQuestionLeaderboard(t *testing.T) {
	ctx := context.Background()
	fx := newAnswerFixture(t)

	session, err := fx.sessions.Start(ctx, "quiz-1", "event-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	started := fx.clock.Now()

	if _, err := fx.answers.SubmitHosted(ctx, session.ID, "q1", "user-x", "o2", started.Add(time.Second)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	session, err = fx.sessions.Advance(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := fx.answers.SubmitHosted(ctx, session.ID, "q2", "user-y", "o2", fx.clock.Now().Add(time.Second)); err != nil {
		t.Fatalf("submit q2: %v", err)
	}

	perQuestion, err := fx.leaderboard.ForSession(ctx, session.ID, domain.ScopeQuestion)
	if err != nil {
		t.Fatalf("per-question board: %v", err)
	}
	if len(perQuestion.Entries) != 1 || perQuestion.Entries[0].UserID != "user-y" {
		t.Fatalf("expected only q2 answers, got %+v", perQuestion.Entries)
	}

	cumulative, err := fx.leaderboard.ForSession(ctx, session.ID, domain.ScopeCumulative)
	if err != nil {
		t.Fatalf("cumulative board: %v", err)
	}
	if len(cumulative.Entries) != 2 {
		t.Fatalf("expected both users cumulatively, got %+v", cumulative.Entries)
	}
}
