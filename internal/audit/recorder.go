package audit

import (
	"context"
	"time"

	"chronosync.org/internal/ids"
	"chronosync.org/internal/store"
)

// DefaultRetention is how long webhook event records are kept before pruning.
const DefaultRetention = 24 * time.Hour

// Recorder appends webhook deliveries to the durable event log and prunes
// old entries. Every received delivery gets exactly one record, regardless
// of whether applying it changed anything.
type Recorder struct {
	events    store.EventStore
	retention time.Duration
	now       func() time.Time
}

// NewRecorder builds a Recorder over the given event store. A non-positive
// retention falls back to the default.
func NewRecorder(events store.EventStore, retention time.Duration) *Recorder {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Recorder{events: events, retention: retention, now: time.Now}
}

// Record appends one event log entry and mirrors it to the audit log stream.
// The id is assigned here so records sort by arrival; eventTS is the
// provider's own clock in unix milliseconds and may be zero.
func (r *Recorder) Record(ctx context.Context, eventType, objectID string, eventTS int64, payload []byte) (store.EventRecord, error) {
	rec := store.EventRecord{
		ID:         ids.New(),
		EventType:  eventType,
		ObjectID:   objectID,
		EventTS:    eventTS,
		Payload:    payload,
		ReceivedAt: r.now().UTC(),
	}
	if err := r.events.AppendEvent(ctx, rec); err != nil {
		return store.EventRecord{}, err
	}
	_ = LogEvent(ctx, "webhook.recorded", map[string]any{
		"event_id":   rec.ID,
		"event_type": eventType,
		"object_id":  objectID,
	})
	return rec, nil
}

// Prune deletes records older than the retention window and reports how many
// were removed.
func (r *Recorder) Prune(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.retention)
	removed, err := r.events.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		_ = LogEvent(ctx, "events.pruned", map[string]any{
			"removed": removed,
			"cutoff":  cutoff.UTC().Format(time.RFC3339),
		})
	}
	return removed, nil
}

// StartPruner prunes on the given interval until the returned stop function
// is called.
func (r *Recorder) StartPruner(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Prune(ctx); err != nil && ctx.Err() == nil {
					_ = LogEvent(ctx, "events.prune_failed", map[string]any{"error": err.Error()})
				}
			}
		}
	}()
	return cancel
}
