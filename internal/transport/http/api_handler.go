package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// APIHandler exposes the poll path and the write operations as plain
// request/response JSON endpoints. Views poll these on a fixed interval
// regardless of push delivery; the interval hint rides along in the session
// payload.
type APIHandler struct {
	sessions   *app.SessionService
	answers    *app.AnswerService
	boards     *app.LeaderboardService
	hostPoll   time.Duration
	playerPoll time.Duration
}

func NewAPIHandler(sessions *app.SessionService, answers *app.AnswerService, boards *app.LeaderboardService, hostPoll, playerPoll time.Duration) *APIHandler {
	return &APIHandler{
		sessions:   sessions,
		answers:    answers,
		boards:     boards,
		hostPoll:   hostPoll,
		playerPoll: playerPoll,
	}
}

// Register wires all routes onto the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.startSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.getSession)
	mux.HandleFunc("POST /api/sessions/{id}/advance", h.advanceSession)
	mux.HandleFunc("POST /api/sessions/{id}/end", h.endSession)
	mux.HandleFunc("GET /api/sessions/{id}/leaderboard", h.sessionLeaderboard)
	mux.HandleFunc("POST /api/sessions/{id}/answers", h.submitHosted)
	mux.HandleFunc("POST /api/quizzes/{id}/selfpaced/begin", h.beginSelfPaced)
	mux.HandleFunc("POST /api/quizzes/{id}/selfpaced/answers", h.submitSelfPaced)
	mux.HandleFunc("GET /api/quizzes/{id}/leaderboard", h.quizLeaderboard)
}

type sessionView struct {
	Session         domain.QuizSession `json:"session"`
	CurrentQuestion *domain.Question   `json:"currentQuestion,omitempty"`
	PollIntervalMs  int64              `json:"pollIntervalMs"`
}

type cursorView struct {
	Cursor          domain.Cursor    `json:"cursor"`
	CurrentQuestion *domain.Question `json:"currentQuestion,omitempty"`
	PollIntervalMs  int64            `json:"pollIntervalMs"`
}

func (h *APIHandler) startSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuizID  string `json:"quizId"`
		EventID string `json:"eventId"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.QuizID == "" {
		writeBadRequest(w, "quizId is required")
		return
	}
	session, err := h.sessions.Start(r.Context(), req.QuizID, req.EventID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeSessionView(w, r, session, http.StatusCreated)
}

func (h *APIHandler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeSessionView(w, r, session, http.StatusOK)
}

func (h *APIHandler) advanceSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpectedVersion int64 `json:"expectedVersion"`
	}
	if !decode(w, r, &req) {
		return
	}
	session, err := h.sessions.Advance(r.Context(), r.PathValue("id"), req.ExpectedVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeSessionView(w, r, session, http.StatusOK)
}

func (h *APIHandler) endSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpectedVersion int64 `json:"expectedVersion"`
	}
	if !decode(w, r, &req) {
		return
	}
	session, err := h.sessions.End(r.Context(), r.PathValue("id"), req.ExpectedVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{Session: session, PollIntervalMs: h.hostPoll.Milliseconds()})
}

func (h *APIHandler) sessionLeaderboard(w http.ResponseWriter, r *http.Request) {
	scope := domain.LeaderboardScope(r.URL.Query().Get("scope"))
	if scope != domain.ScopeQuestion {
		scope = domain.ScopeCumulative
	}
	board, err := h.boards.ForSession(r.Context(), r.PathValue("id"), scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *APIHandler) submitHosted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID       string    `json:"questionId"`
		UserID           string    `json:"userId"`
		SelectedOption   string    `json:"selectedOption"`
		ClientSubmitTime time.Time `json:"clientSubmitTime"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.QuestionID == "" || req.UserID == "" || req.SelectedOption == "" {
		writeBadRequest(w, "questionId, userId, and selectedOption are required")
		return
	}
	submitTime := req.ClientSubmitTime
	if submitTime.IsZero() {
		submitTime = time.Now()
	}
	result, err := h.answers.SubmitHosted(r.Context(), r.PathValue("id"), req.QuestionID, req.UserID, req.SelectedOption, submitTime)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) beginSelfPaced(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeBadRequest(w, "userId is required")
		return
	}
	cursor, question, err := h.answers.BeginSelfPaced(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	view := cursorView{Cursor: cursor, PollIntervalMs: h.playerPoll.Milliseconds()}
	if question.ID != "" {
		view.CurrentQuestion = &question
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) submitSelfPaced(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID     string `json:"questionId"`
		UserID         string `json:"userId"`
		SelectedOption string `json:"selectedOption"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.QuestionID == "" || req.UserID == "" || req.SelectedOption == "" {
		writeBadRequest(w, "questionId, userId, and selectedOption are required")
		return
	}
	quizID := r.PathValue("id")
	result, cursor, err := h.answers.SubmitSelfPaced(r.Context(), quizID, req.QuestionID, req.UserID, req.SelectedOption)
	if err != nil {
		writeError(w, err)
		return
	}
	view := struct {
		Result       domain.SubmissionResult `json:"result"`
		Cursor       domain.Cursor           `json:"cursor"`
		NextQuestion *domain.Question        `json:"nextQuestion,omitempty"`
	}{Result: result, Cursor: cursor}
	// The cursor resume path doubles as the next-question lookup.
	if _, next, err := h.answers.BeginSelfPaced(r.Context(), quizID, req.UserID); err == nil && next.ID != "" {
		view.NextQuestion = &next
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) quizLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.boards.ForQuiz(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *APIHandler) writeSessionView(w http.ResponseWriter, r *http.Request, session domain.QuizSession, status int) {
	view := sessionView{Session: session, PollIntervalMs: h.playerPoll.Milliseconds()}
	if session.IsActive() {
		if question, err := h.sessions.CurrentQuestion(r.Context(), session); err == nil {
			view.CurrentQuestion = &question
		}
	}
	writeJSON(w, status, view)
}

type errorBody struct {
	Error string `json:"error"`
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// writeError maps the protocol's typed errors onto HTTP statuses. Everything
// listed is an expected outcome, not a server fault; only store outages and
// unknown failures escalate past 4xx.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAlreadyActive):
		writeJSON(w, http.StatusConflict, errorBody{Error: "already_active"})
	case errors.Is(err, domain.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "version_conflict"})
	case errors.Is(err, domain.ErrQuestionClosed):
		writeJSON(w, http.StatusConflict, errorBody{Error: "question_closed"})
	case errors.Is(err, domain.ErrAlreadyAtLastQuestion):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "last_question"})
	case errors.Is(err, domain.ErrSessionEnded):
		writeJSON(w, http.StatusGone, errorBody{Error: "session_ended"})
	case errors.Is(err, domain.ErrOptionNotFound):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "option_not_found"})
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrCursorNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "store_unavailable"})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
