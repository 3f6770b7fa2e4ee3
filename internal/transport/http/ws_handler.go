package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler is the push path: one socket per view, subscribed to its quiz's
// update topic. Push is a freshness hint layered over the poll endpoints;
// both hosts and participants connect here.
type WSHandler struct {
	sessions *app.SessionService
	answers  *app.AnswerService
	boards   *app.LeaderboardService
	hub      *app.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions *app.SessionService, answers *app.AnswerService, boards *app.LeaderboardService, hub *app.Hub) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		answers:  answers,
		boards:   boards,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	SessionID        string    `json:"sessionId,omitempty"`
	QuestionID       string    `json:"questionId"`
	SelectedOption   string    `json:"selectedOption"`
	ClientSubmitTime time.Time `json:"clientSubmitTime"`
}

type hostCommandPayload struct {
	SessionID       string `json:"sessionId"`
	EventID         string `json:"eventId,omitempty"`
	ExpectedVersion int64  `json:"expectedVersion"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and bridges hub events and inbound commands.
// Session events are version-gated per connection: an event whose version is
// not newer than the last one sent is dropped, so out-of-order or duplicated
// push delivery never rewinds a view.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	role := r.URL.Query().Get("role")
	if quizID == "" || userID == "" {
		http.Error(w, "missing quizId or userId", http.StatusBadRequest)
		return
	}
	if role == "" {
		role = "player"
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.hub.Subscribe(app.QuizTopic(quizID))
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Initial snapshot so late joiners see the live question immediately. It
	// also seeds the version gate, so replays of the snapshot state are
	// suppressed.
	var snapshotVersion int64
	if session, ok, err := h.sessions.ActiveForQuiz(r.Context(), quizID); err == nil && ok {
		snapshotVersion = session.Version
		trySend(send, writerDone, outboundMessage{Type: app.EventSession, Payload: app.Event{Type: app.EventSession, Session: &session}})
		if board, err := h.boards.ForSession(r.Context(), session.ID, domain.ScopeCumulative); err == nil {
			trySend(send, writerDone, outboundMessage{Type: app.EventLeaderboard, Payload: app.Event{Type: app.EventLeaderboard, Leaderboard: &board}})
		}
	}

	go func() {
		defer close(updatesDone)
		lastVersion := snapshotVersion
		for {
			select {
			case event, ok := <-updates:
				if !ok {
					return
				}
				if event.Type == app.EventSession && event.Session != nil {
					if event.Session.Version <= lastVersion {
						continue
					}
					lastVersion = event.Session.Version
				}
				select {
				case send <- outboundMessage{Type: event.Type, Payload: event}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			h.handleAnswer(r, quizID, userID, inbound.Payload, send, writerDone)
		case "start", "advance", "end":
			if role != "host" {
				trySend(send, writerDone, outboundMessage{Type: "error", Payload: errorPayload{Message: "host role required"}})
				continue
			}
			h.handleHostCommand(r, quizID, inbound.Type, inbound.Payload, send, writerDone)
		default:
			trySend(send, writerDone, outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// trySend queues a message for the writer, giving up when the writer has
// already exited so inbound handling never blocks on a dead connection.
func trySend(send chan<- outboundMessage, writerDone <-chan struct{}, msg outboundMessage) {
	select {
	case send <- msg:
	case <-writerDone:
	}
}

func (h *WSHandler) handleAnswer(r *http.Request, quizID, userID string, raw json.RawMessage, send chan<- outboundMessage, writerDone <-chan struct{}) {
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		trySend(send, writerDone, outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
		return
	}

	var result domain.SubmissionResult
	var err error
	if payload.SessionID != "" {
		submitTime := payload.ClientSubmitTime
		if submitTime.IsZero() {
			submitTime = time.Now()
		}
		result, err = h.answers.SubmitHosted(r.Context(), payload.SessionID, payload.QuestionID, userID, payload.SelectedOption, submitTime)
	} else {
		result, _, err = h.answers.SubmitSelfPaced(r.Context(), quizID, payload.QuestionID, userID, payload.SelectedOption)
	}
	if err != nil {
		trySend(send, writerDone, outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	trySend(send, writerDone, outboundMessage{Type: "answerResult", Payload: result})
}

func (h *WSHandler) handleHostCommand(r *http.Request, quizID, command string, raw json.RawMessage, send chan<- outboundMessage, writerDone <-chan struct{}) {
	var payload hostCommandPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			trySend(send, writerDone, outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid command payload"}})
			return
		}
	}

	var err error
	switch command {
	case "start":
		_, err = h.sessions.Start(r.Context(), quizID, payload.EventID)
	case "advance":
		_, err = h.sessions.Advance(r.Context(), payload.SessionID, payload.ExpectedVersion)
	case "end":
		_, err = h.sessions.End(r.Context(), payload.SessionID, payload.ExpectedVersion)
	}
	if err != nil {
		trySend(send, writerDone, outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}
	// Success needs no direct reply; the session event lands via the hub.
}
