// Package stream fans sync and webhook activity out to live subscribers
// (the SSE endpoint).
package stream

import (
	"context"
	"sync"
	"time"
)

// Activity describes one observable change: a sync run finishing, a webhook
// delta being applied, a token rotation.
type Activity struct {
	Kind      string    `json:"kind"`
	EventType string    `json:"event_type,omitempty"`
	ObjectID  string    `json:"object_id,omitempty"`
	Users     int       `json:"users,omitempty"`
	Meetings  int       `json:"meetings,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Activity kinds published by the service.
const (
	KindSyncCompleted  = "sync.completed"
	KindWebhookApplied = "webhook.applied"
	KindTokenRefreshed = "token.refreshed"
)

// Stream fan-outs activity to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Activity
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Activity)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// activity. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Activity {
	ch := make(chan Activity, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the activity to all subscribers.
func (s *Stream) Publish(evt Activity) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
