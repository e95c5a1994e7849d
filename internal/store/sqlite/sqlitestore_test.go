package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"chronosync.org/internal/store"
	"chronosync.org/internal/zoom"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCredentialLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if _, err := s.Credential(ctx); !errors.Is(err, store.ErrCredentialMissing) {
		t.Fatalf("empty db: err = %v, want ErrCredentialMissing", err)
	}

	cred := zoom.Credential{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
	}
	if err := s.SaveCredential(ctx, cred); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}

	// A second save replaces the singleton row.
	cred.AccessToken = "at-2"
	cred.RefreshToken = "rt-2"
	if err := s.SaveCredential(ctx, cred); err != nil {
		t.Fatalf("SaveCredential(update): %v", err)
	}

	got, err := s.Credential(ctx)
	if err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if got.AccessToken != "at-2" || got.RefreshToken != "rt-2" {
		t.Fatalf("got %+v", got)
	}
}

func TestUserUpsertAndMerge(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	u := zoom.User{
		ID: "u1", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace",
		Type: 2, Status: "active", Department: "eng",
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.UpsertUser(ctx, u); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	if err := s.MergeUser(ctx, zoom.User{ID: "u1", Status: "inactive"}); err != nil {
		t.Fatalf("MergeUser: %v", err)
	}

	got, err := s.User(ctx, "u1")
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if got.Status != "inactive" {
		t.Errorf("Status = %q, want inactive", got.Status)
	}
	if got.Email != "ada@example.com" || got.Department != "eng" || got.Type != 2 {
		t.Errorf("merge clobbered absent fields: %+v", got)
	}
	if !got.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, u.CreatedAt)
	}
}

func TestMeetingHostClearedOnUserDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if err := s.UpsertUser(ctx, zoom.User{ID: "host-1", Email: "h@example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertMeeting(ctx, zoom.Meeting{MeetingID: "8123", HostID: "host-1", Topic: "standup"}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteUser(ctx, "host-1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	m, err := s.Meeting(ctx, "8123")
	if err != nil {
		t.Fatalf("Meeting: %v", err)
	}
	if m.HostID != "" {
		t.Errorf("HostID = %q, want cleared", m.HostID)
	}
	if m.Topic != "standup" {
		t.Errorf("meeting row lost: %+v", m)
	}
}

func TestEventLogPrune(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()

	recs := []store.EventRecord{
		{ID: "01A", EventType: "user.updated", ObjectID: "u1", Payload: []byte(`{"a":1}`), ReceivedAt: now.Add(-30 * time.Hour)},
		{ID: "01B", EventType: "meeting.deleted", ObjectID: "8123", EventTS: 1658940994914, Payload: []byte(`{}`), ReceivedAt: now},
	}
	for _, rec := range recs {
		if err := s.AppendEvent(ctx, rec); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	events, err := s.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 || events[0].ID != "01B" {
		t.Fatalf("want newest first, got %+v", events)
	}
	if events[0].EventTS != 1658940994914 {
		t.Fatalf("event_ts = %d, want 1658940994914", events[0].EventTS)
	}
	if events[1].EventTS != 0 {
		t.Fatalf("event_ts = %d, want 0 for delivery without one", events[1].EventTS)
	}

	removed, err := s.DeleteEventsBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteEventsBefore: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestUserNotFound(t *testing.T) {
	s := newStore(t)
	if _, err := s.User(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
