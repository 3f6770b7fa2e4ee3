package app

import (
	"sync"

	"live-quiz-service/internal/domain"
)

// Event types pushed to subscribed views.
const (
	EventSession     = "session"
	EventLeaderboard = "leaderboard"
)

// Event is one push-path update. Push is a best-effort hint to re-fetch
// sooner; views gate applies on the session version (or board content), so
// duplicated or reordered delivery is harmless.
type Event struct {
	Type        string              `json:"type"`
	Session     *domain.QuizSession `json:"session,omitempty"`
	Leaderboard *domain.Leaderboard `json:"leaderboard,omitempty"`
}

// EventPublisher fans an event out to every subscriber of a topic.
type EventPublisher interface {
	Publish(topic string, event Event)
}

// QuizTopic names the per-quiz fan-out channel. Session and leaderboard
// updates for a quiz's sessions all land on it, so a view needs exactly one
// subscription.
func QuizTopic(quizID string) string {
	return "quiz:" + quizID
}

// Hub is the in-process fan-out for session and leaderboard updates.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a buffered channel on a topic. The caller must invoke
// the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, 8)

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[chan Event]struct{})
		h.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.topics[topic]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking: a full
// channel has its oldest entry dropped first, since a newer snapshot always
// supersedes an older one.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.topics[topic] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}
