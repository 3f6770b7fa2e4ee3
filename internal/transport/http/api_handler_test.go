package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	sessionStore := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	submissions := memory.NewSubmissionStore()
	cursors := memory.NewCursorStore()
	hub := app.NewHub()

	sessions := app.NewSessionService(sessionStore, quizzes, hub)
	answers := app.NewAnswerService(sessionStore, quizzes, submissions, cursors, hub)
	boards := app.NewLeaderboardService(sessionStore, quizzes, submissions)

	mux := http.NewServeMux()
	NewAPIHandler(sessions, answers, boards, time.Second, 1500*time.Millisecond).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func sampleQuizzes() map[string]domain.Quiz {
	questions := make([]domain.Question, 3)
	for i := range questions {
		questions[i] = domain.Question{
			ID:         fmt.Sprintf("q%d", i+1),
			QuizID:     "quiz-1",
			OrderIndex: i,
			Text:       "Select the right option",
			Options: []domain.Option{
				{ID: "o1", Text: "Wrong"},
				{ID: "o2", Text: "Right"},
			},
			CorrectOption:    "o2",
			TimeLimitSeconds: 30,
		}
	}
	return map[string]domain.Quiz{"quiz-1": {ID: "quiz-1", EventID: "event-1", Questions: questions}}
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func getJSON(t *testing.T, url string, dst interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestHostedSessionFlow(t *testing.T) {
	server := newTestServer(t)

	// Host starts the quiz.
	resp, body := postJSON(t, server.URL+"/api/sessions", map[string]string{"quizId": "quiz-1", "eventId": "event-1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var started sessionView
	if err := json.Unmarshal(body, &started); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	session := started.Session
	if session.CurrentQuestionIndex != 0 || session.Version != 1 {
		t.Fatalf("unexpected session: %+v", session)
	}
	if started.CurrentQuestion == nil || started.CurrentQuestion.ID != "q1" {
		t.Fatalf("expected q1 live, got %+v", started.CurrentQuestion)
	}
	if started.CurrentQuestion.CorrectOption != "" {
		t.Fatalf("correct option must not be exposed")
	}
	if started.PollIntervalMs != 1500 {
		t.Fatalf("expected poll hint 1500ms, got %d", started.PollIntervalMs)
	}

	// A second start is rejected.
	resp, _ = postJSON(t, server.URL+"/api/sessions", map[string]string{"quizId": "quiz-1"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for second start, got %d", resp.StatusCode)
	}

	// Participant X answers correctly 2s in.
	sessionURL := server.URL + "/api/sessions/" + session.ID
	resp, body = postJSON(t, sessionURL+"/answers", map[string]interface{}{
		"questionId":       "q1",
		"userId":           "user-x",
		"selectedOption":   "o2",
		"clientSubmitTime": session.QuestionStartedAt.Add(2 * time.Second).Format(time.RFC3339Nano),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var result domain.SubmissionResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Submission.IsCorrect || result.Submission.Score != 1190 {
		t.Fatalf("expected 1190 points, got %+v", result.Submission)
	}

	// A retry with another option returns the original row.
	resp, body = postJSON(t, sessionURL+"/answers", map[string]interface{}{
		"questionId":       "q1",
		"userId":           "user-x",
		"selectedOption":   "o1",
		"clientSubmitTime": session.QuestionStartedAt.Add(9 * time.Second).Format(time.RFC3339Nano),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry: expected 200, got %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode retry: %v", err)
	}
	if !result.AlreadyRecorded || result.Submission.SelectedOption != "o2" {
		t.Fatalf("expected idempotent retry, got %+v", result)
	}

	// Host advances; stale version loses first.
	resp, _ = postJSON(t, sessionURL+"/advance", map[string]int64{"expectedVersion": 99})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 version conflict, got %d", resp.StatusCode)
	}
	resp, body = postJSON(t, sessionURL+"/advance", map[string]int64{"expectedVersion": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("advance: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var advanced sessionView
	if err := json.Unmarshal(body, &advanced); err != nil {
		t.Fatalf("decode advanced: %v", err)
	}
	if advanced.Session.CurrentQuestionIndex != 1 || advanced.Session.Version != 2 {
		t.Fatalf("unexpected advanced session: %+v", advanced.Session)
	}

	// A submission still holding question 0 is closed out.
	resp, body = postJSON(t, sessionURL+"/answers", map[string]interface{}{
		"questionId":     "q1",
		"userId":         "user-y",
		"selectedOption": "o2",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 question closed, got %d: %s", resp.StatusCode, body)
	}
	var errBody errorBody
	if err := json.Unmarshal(body, &errBody); err != nil || errBody.Error != "question_closed" {
		t.Fatalf("expected question_closed, got %s", body)
	}

	// Leaderboard has X in front.
	var board domain.Leaderboard
	getJSON(t, sessionURL+"/leaderboard", &board)
	if len(board.Entries) != 1 || board.Entries[0].UserID != "user-x" || board.Entries[0].TotalScore != 1190 {
		t.Fatalf("unexpected board: %+v", board.Entries)
	}

	// End the session; further advances are gone.
	resp, _ = postJSON(t, sessionURL+"/end", map[string]int64{"expectedVersion": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end: expected 200, got %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, sessionURL+"/advance", map[string]int64{"expectedVersion": 3})
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("expected 410 after end, got %d", resp.StatusCode)
	}
}

func TestSelfPacedFlowOverHTTP(t *testing.T) {
	server := newTestServer(t)

	resp, body := postJSON(t, server.URL+"/api/quizzes/quiz-1/selfpaced/begin", map[string]string{"userId": "user-x"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("begin: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var view cursorView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode cursor: %v", err)
	}
	if view.Cursor.QuestionIndex != 0 || view.CurrentQuestion == nil || view.CurrentQuestion.ID != "q1" {
		t.Fatalf("unexpected begin view: %+v", view)
	}

	resp, body = postJSON(t, server.URL+"/api/quizzes/quiz-1/selfpaced/answers", map[string]string{
		"questionId":     "q1",
		"userId":         "user-x",
		"selectedOption": "o2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var answered struct {
		Result       domain.SubmissionResult `json:"result"`
		Cursor       domain.Cursor           `json:"cursor"`
		NextQuestion *domain.Question        `json:"nextQuestion"`
	}
	if err := json.Unmarshal(body, &answered); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if !answered.Result.Submission.IsCorrect || answered.Cursor.QuestionIndex != 1 {
		t.Fatalf("expected correct answer advancing cursor, got %+v", answered)
	}
	if answered.NextQuestion == nil || answered.NextQuestion.ID != "q2" || answered.NextQuestion.CorrectOption != "" {
		t.Fatalf("expected sanitized q2 next, got %+v", answered.NextQuestion)
	}

	var board domain.Leaderboard
	getJSON(t, server.URL+"/api/quizzes/quiz-1/leaderboard", &board)
	if len(board.Entries) != 1 || board.Entries[0].UserID != "user-x" {
		t.Fatalf("unexpected quiz board: %+v", board.Entries)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	server := newTestServer(t)
	resp := getJSON(t, server.URL+"/api/sessions/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
