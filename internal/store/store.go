// Package store defines the persistence contracts for the synced directory
// mirror: provider credentials, users, meetings, and the webhook event log.
package store

import (
	"context"
	"errors"
	"time"

	"chronosync.org/internal/zoom"
)

var (
	// ErrNotFound marks a lookup that matched nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrCredentialMissing marks an empty credential row; the service was
	// never authorized or the grant was wiped.
	ErrCredentialMissing = errors.New("store: credential missing")
)

// EventRecord is one append-only entry in the webhook event log. Every
// received webhook produces exactly one record, whether or not applying it
// changed anything.
type EventRecord struct {
	ID        string
	EventType string
	ObjectID  string
	// EventTS is the provider's own event timestamp in unix milliseconds,
	// zero when the delivery carried none. ReceivedAt is our arrival clock.
	EventTS    int64
	Payload    []byte
	ReceivedAt time.Time
}

// CredentialStore persists the single provider credential pair.
type CredentialStore interface {
	Credential(ctx context.Context) (zoom.Credential, error)
	SaveCredential(ctx context.Context, cred zoom.Credential) error
}

// UserStore persists directory users.
type UserStore interface {
	// UpsertUser writes the full user row, inserting or replacing.
	UpsertUser(ctx context.Context, u zoom.User) error
	// MergeUser applies a partial update: zero-valued fields leave the
	// stored value unchanged. Inserts when the user is absent.
	MergeUser(ctx context.Context, u zoom.User) error
	DeleteUser(ctx context.Context, id string) error
	User(ctx context.Context, id string) (zoom.User, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// MeetingStore persists directory meetings.
type MeetingStore interface {
	UpsertMeeting(ctx context.Context, m zoom.Meeting) error
	// MergeMeeting applies a partial update with the same absent-field
	// semantics as MergeUser.
	MergeMeeting(ctx context.Context, m zoom.Meeting) error
	DeleteMeeting(ctx context.Context, meetingID string) error
	Meeting(ctx context.Context, meetingID string) (zoom.Meeting, error)
}

// EventStore persists the webhook event log.
type EventStore interface {
	AppendEvent(ctx context.Context, rec EventRecord) error
	ListEvents(ctx context.Context, limit int) ([]EventRecord, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the full persistence surface the service needs.
type Store interface {
	CredentialStore
	UserStore
	MeetingStore
	EventStore
}
