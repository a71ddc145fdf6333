// Package notify fans report events out over Redis pub/sub and relays them
// to websocket clients watching a document.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const EventReportCompleted = "report.completed"

// Event is published once per finished replay request.
type Event struct {
	Type        string    `json:"type"`
	DocumentID  string    `json:"documentId"`
	ReportID    string    `json:"reportId,omitempty"`
	Cached      bool      `json:"cached"`
	Tiles       int       `json:"tiles"`
	Authors     int       `json:"authors"`
	FinalLength int       `json:"finalLength"`
	At          time.Time `json:"at"`
}

type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func channel(documentID string) string {
	return "provenance:document:" + documentID
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, channel(event.DocumentID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe listens for events on one document. The returned channel closes
// after the cancel func is called or ctx ends.
func (b *RedisBus) Subscribe(ctx context.Context, documentID string) (<-chan Event, func() error, error) {
	pubsub := b.rdb.Subscribe(ctx, channel(documentID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", documentID, err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("notify: dropping malformed event on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					_ = pubsub.Close()
					return
				}
			}
		}
	}()
	return events, pubsub.Close, nil
}
