package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func activeSession(id, quizID string) domain.QuizSession {
	return domain.QuizSession{
		ID:                id,
		QuizID:            quizID,
		State:             domain.SessionActive,
		Version:           1,
		QuestionStartedAt: time.Now(),
	}
}

func TestSessionStoreSingleActivePerQuiz(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if err := store.Create(ctx, activeSession("s1", "quiz-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, activeSession("s2", "quiz-1")); !errors.Is(err, domain.ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}

	// Ending the session frees the quiz for a new run.
	ended := activeSession("s1", "quiz-1")
	ended.State = domain.SessionEnded
	ended.Version = 2
	if _, err := store.Update(ctx, ended, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Create(ctx, activeSession("s3", "quiz-1")); err != nil {
		t.Fatalf("create after end: %v", err)
	}
}

func TestSessionStoreVersionCAS(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	if err := store.Create(ctx, activeSession("s1", "quiz-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := activeSession("s1", "quiz-1")
	next.CurrentQuestionIndex = 1
	next.Version = 2

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, next, 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrVersionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got wins=%d conflicts=%d", wins, conflicts)
	}

	stored, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Version != 2 || stored.CurrentQuestionIndex != 1 {
		t.Fatalf("expected version 2 index 1, got %+v", stored)
	}
}

func TestSessionStoreGetActiveByQuiz(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if _, ok, _ := store.GetActiveByQuiz(ctx, "quiz-1"); ok {
		t.Fatalf("expected no active session")
	}
	if err := store.Create(ctx, activeSession("s1", "quiz-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	session, ok, err := store.GetActiveByQuiz(ctx, "quiz-1")
	if err != nil || !ok || session.ID != "s1" {
		t.Fatalf("expected s1 active, got %+v ok=%v err=%v", session, ok, err)
	}
}
