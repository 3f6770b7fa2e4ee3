package redis

import (
	"context"
	"encoding/json"
	"log"

	"live-quiz-service/internal/app"
	"github.com/redis/go-redis/v9"
)

const eventsChannel = "quiz:events"

type eventEnvelope struct {
	Origin string    `json:"origin"`
	Topic  string    `json:"topic"`
	Event  app.Event `json:"event"`
}

// Publisher mirrors hub events onto a Redis channel so sibling instances
// converge. Local delivery always happens; the remote publish is best-effort
// because views reconcile through the poll path anyway.
type Publisher struct {
	client *redis.Client
	local  *app.Hub
	origin string
}

func NewPublisher(client *redis.Client, local *app.Hub, origin string) *Publisher {
	return &Publisher{client: client, local: local, origin: origin}
}

func (p *Publisher) Publish(topic string, event app.Event) {
	p.local.Publish(topic, event)

	payload, err := json.Marshal(eventEnvelope{Origin: p.origin, Topic: topic, Event: event})
	if err != nil {
		return
	}
	if err := p.client.Publish(context.Background(), eventsChannel, payload).Err(); err != nil {
		log.Printf("event publish failed: %v", err)
	}
}

// RunEventBridge relays remote instances' events into the local hub until
// the context is canceled. Our own envelopes are skipped; even so, any
// duplicate delivery is harmless because views gate applies on the version
// token.
func RunEventBridge(ctx context.Context, client *redis.Client, hub *app.Hub, origin string) error {
	sub := client.Subscribe(ctx, eventsChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env eventEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("drop malformed event: %v", err)
				continue
			}
			if env.Origin == origin {
				continue
			}
			hub.Publish(env.Topic, env.Event)
		}
	}
}
