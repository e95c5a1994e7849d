// Package sync reconciles the local mirror with the provider directory.
// Bulk pulls are additive-only; removals happen solely through webhook
// deltas, so a truncated listing can never mass-delete local state.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"chronosync.org/internal/audit"
	"chronosync.org/internal/obs"
	"chronosync.org/internal/store"
	"chronosync.org/internal/stream"
	"chronosync.org/internal/webhook"
	"chronosync.org/internal/zoom"
)

// DefaultWorkers bounds concurrent per-user meeting listings.
const DefaultWorkers = 8

// Directory is the slice of the provider client the engine needs.
type Directory interface {
	ListUsers(ctx context.Context) ([]zoom.User, error)
	ListMeetings(ctx context.Context, userID string) ([]zoom.Meeting, error)
}

// Report summarises one sync run.
type Report struct {
	Users    int           `json:"users"`
	Meetings int           `json:"meetings"`
	Failures int           `json:"failures"`
	Took     time.Duration `json:"took"`
}

// Engine applies bulk pulls and webhook deltas to the store.
type Engine struct {
	dir      Directory
	st       store.Store
	recorder *audit.Recorder
	activity *stream.Stream
	workers  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the meeting-listing fan-out.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithActivityStream publishes sync and webhook activity to subscribers.
func WithActivityStream(s *stream.Stream) Option {
	return func(e *Engine) { e.activity = s }
}

// NewEngine builds an Engine over the given directory client and store.
func NewEngine(dir Directory, st store.Store, recorder *audit.Recorder, opts ...Option) *Engine {
	e := &Engine{dir: dir, st: st, recorder: recorder, workers: DefaultWorkers}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncUsers pulls the full user directory and upserts every row. Users
// absent from the listing are left alone.
func (e *Engine) SyncUsers(ctx context.Context) (Report, error) {
	start := time.Now()
	users, err := e.dir.ListUsers(ctx)
	if err != nil {
		obs.SyncRuns.WithLabelValues("users", "error").Inc()
		return Report{Took: time.Since(start)}, fmt.Errorf("sync users: %w", err)
	}

	rep := Report{}
	for _, u := range users {
		if err := e.st.UpsertUser(ctx, u); err != nil {
			rep.Failures++
			_ = audit.LogEvent(ctx, "sync.user_failed", map[string]any{"user_id": u.ID, "error": err.Error()})
			continue
		}
		rep.Users++
	}
	rep.Took = time.Since(start)

	obs.SyncRuns.WithLabelValues("users", outcome(rep)).Inc()
	obs.SyncEntities.WithLabelValues("user").Add(float64(rep.Users))
	e.publish(stream.Activity{Kind: stream.KindSyncCompleted, Users: rep.Users})
	_ = audit.LogEvent(ctx, "sync.users_completed", map[string]any{
		"users": rep.Users, "failures": rep.Failures, "took_ms": rep.Took.Milliseconds(),
	})
	return rep, nil
}

// SyncMeetings pulls every known user's meetings with a bounded fan-out.
// One user's listing failure does not abort the run; the report carries the
// failure count and the rest of the directory still lands.
func (e *Engine) SyncMeetings(ctx context.Context) (Report, error) {
	start := time.Now()
	ids, err := e.st.ListUserIDs(ctx)
	if err != nil {
		obs.SyncRuns.WithLabelValues("meetings", "error").Inc()
		return Report{Took: time.Since(start)}, fmt.Errorf("sync meetings: list users: %w", err)
	}

	var mu sync.Mutex
	rep := Report{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			meetings, err := e.dir.ListMeetings(gctx, id)
			if err != nil {
				mu.Lock()
				rep.Failures++
				mu.Unlock()
				_ = audit.LogEvent(gctx, "sync.meetings_user_failed", map[string]any{"user_id": id, "error": err.Error()})
				return nil
			}
			var written int
			for _, m := range meetings {
				if err := e.st.UpsertMeeting(gctx, m); err != nil {
					mu.Lock()
					rep.Failures++
					mu.Unlock()
					continue
				}
				written++
			}
			mu.Lock()
			rep.Meetings += written
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	rep.Took = time.Since(start)

	obs.SyncRuns.WithLabelValues("meetings", outcome(rep)).Inc()
	obs.SyncEntities.WithLabelValues("meeting").Add(float64(rep.Meetings))
	e.publish(stream.Activity{Kind: stream.KindSyncCompleted, Meetings: rep.Meetings})
	_ = audit.LogEvent(ctx, "sync.meetings_completed", map[string]any{
		"meetings": rep.Meetings, "failures": rep.Failures, "took_ms": rep.Took.Milliseconds(),
	})
	return rep, nil
}

// SyncAll runs the user pull and then the meeting pull, so newly discovered
// hosts are known before their meetings are fetched.
func (e *Engine) SyncAll(ctx context.Context) (Report, error) {
	users, err := e.SyncUsers(ctx)
	if err != nil {
		return users, err
	}
	meetings, err := e.SyncMeetings(ctx)
	rep := Report{
		Users:    users.Users,
		Meetings: meetings.Meetings,
		Failures: users.Failures + meetings.Failures,
		Took:     users.Took + meetings.Took,
	}
	return rep, err
}

// ApplyEvent records the delivery and applies its delta to the store. The
// record is attempted before the delta so even an unrecognized or no-op
// event leaves an audit trail, but the record is forensic only: a failed
// append is logged and counted, never allowed to suppress the delta.
// Partial objects merge into stored rows; only explicit deletion events
// remove anything.
func (e *Engine) ApplyEvent(ctx context.Context, ev webhook.Event, raw []byte) (bool, error) {
	if _, err := e.recorder.Record(ctx, ev.Event, ev.ObjectID(), ev.EventTS, raw); err != nil {
		obs.WebhookEvents.WithLabelValues(ev.Event, "record_error").Inc()
		_ = audit.LogEvent(ctx, "webhook.record_failed", map[string]any{
			"event_type": ev.Event,
			"object_id":  ev.ObjectID(),
			"error":      err.Error(),
		})
	}

	applied, err := e.applyDelta(ctx, ev)
	switch {
	case err != nil:
		obs.WebhookEvents.WithLabelValues(ev.Event, "error").Inc()
		return false, err
	case applied:
		obs.WebhookEvents.WithLabelValues(ev.Event, "applied").Inc()
		e.publish(stream.Activity{Kind: stream.KindWebhookApplied, EventType: ev.Event, ObjectID: ev.ObjectID()})
	default:
		obs.WebhookEvents.WithLabelValues(ev.Event, "ignored").Inc()
	}
	return applied, nil
}

func (e *Engine) applyDelta(ctx context.Context, ev webhook.Event) (bool, error) {
	switch ev.Event {
	case webhook.EventMeetingCreated, webhook.EventMeetingUpdated:
		m, err := ev.Meeting()
		if err != nil {
			return false, err
		}
		return true, e.st.MergeMeeting(ctx, m)

	case webhook.EventMeetingDeleted:
		m, err := ev.Meeting()
		if err != nil {
			return false, err
		}
		return true, e.st.DeleteMeeting(ctx, m.MeetingID)

	case webhook.EventUserCreated, webhook.EventUserUpdated, webhook.EventUserDeactivated:
		u, err := ev.User()
		if err != nil {
			return false, err
		}
		// Deactivation is a state change, not a removal.
		if ev.Event == webhook.EventUserDeactivated && u.Status == "" {
			u.Status = "inactive"
		}
		return true, e.st.MergeUser(ctx, u)

	case webhook.EventUserDeleted, webhook.EventUserDisassociate:
		u, err := ev.User()
		if err != nil {
			return false, err
		}
		return true, e.st.DeleteUser(ctx, u.ID)

	default:
		return false, nil
	}
}

// PruneEvents drops event records older than the recorder's retention.
func (e *Engine) PruneEvents(ctx context.Context) (int64, error) {
	return e.recorder.Prune(ctx)
}

func (e *Engine) publish(evt stream.Activity) {
	if e.activity != nil {
		e.activity.Publish(evt)
	}
}

func outcome(rep Report) string {
	if rep.Failures > 0 {
		return "partial"
	}
	return "ok"
}
