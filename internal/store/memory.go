package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"chronosync.org/internal/zoom"
)

// Memory is an in-process Store used by tests and the smoke binary.
type Memory struct {
	mu       sync.RWMutex
	cred     zoom.Credential
	hasCred  bool
	users    map[string]zoom.User
	meetings map[string]zoom.Meeting
	events   []EventRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]zoom.User),
		meetings: make(map[string]zoom.Meeting),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Credential(ctx context.Context) (zoom.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasCred || m.cred.RefreshToken == "" {
		return zoom.Credential{}, ErrCredentialMissing
	}
	return m.cred, nil
}

func (m *Memory) SaveCredential(ctx context.Context, cred zoom.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred.UpdatedAt = time.Now().UTC()
	m.cred = cred
	m.hasCred = true
	return nil
}

func (m *Memory) UpsertUser(ctx context.Context, u zoom.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) MergeUser(ctx context.Context, u zoom.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.users[u.ID]
	if !ok {
		u.UpdatedAt = time.Now().UTC()
		m.users[u.ID] = u
		return nil
	}
	m.users[u.ID] = mergeUser(cur, u)
	return nil
}

func (m *Memory) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *Memory) User(ctx context.Context, id string) (zoom.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return zoom.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) ListUserIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) UpsertMeeting(ctx context.Context, mt zoom.Meeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt.UpdatedAt = time.Now().UTC()
	m.meetings[mt.MeetingID] = mt
	return nil
}

func (m *Memory) MergeMeeting(ctx context.Context, mt zoom.Meeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.meetings[mt.MeetingID]
	if !ok {
		mt.UpdatedAt = time.Now().UTC()
		m.meetings[mt.MeetingID] = mt
		return nil
	}
	m.meetings[mt.MeetingID] = mergeMeeting(cur, mt)
	return nil
}

func (m *Memory) DeleteMeeting(ctx context.Context, meetingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.meetings, meetingID)
	return nil
}

func (m *Memory) Meeting(ctx context.Context, meetingID string) (zoom.Meeting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.meetings[meetingID]
	if !ok {
		return zoom.Meeting{}, ErrNotFound
	}
	return mt, nil
}

func (m *Memory) AppendEvent(ctx context.Context, rec EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, rec)
	return nil
}

func (m *Memory) ListEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EventRecord, len(m.events))
	copy(out, m.events)
	// newest first
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var removed int64
	for _, e := range m.events {
		if e.ReceivedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return removed, nil
}

// mergeUser overlays the non-zero fields of upd onto cur. A zero value in a
// delta means the field was absent from the event, not that it was cleared.
func mergeUser(cur, upd zoom.User) zoom.User {
	if upd.Email != "" {
		cur.Email = upd.Email
	}
	if upd.FirstName != "" {
		cur.FirstName = upd.FirstName
	}
	if upd.LastName != "" {
		cur.LastName = upd.LastName
	}
	if upd.DisplayName != "" {
		cur.DisplayName = upd.DisplayName
	}
	if upd.Type != 0 {
		cur.Type = upd.Type
	}
	if upd.Status != "" {
		cur.Status = upd.Status
	}
	if upd.PMI != 0 {
		cur.PMI = upd.PMI
	}
	if upd.Timezone != "" {
		cur.Timezone = upd.Timezone
	}
	if upd.Department != "" {
		cur.Department = upd.Department
	}
	if !upd.CreatedAt.IsZero() {
		cur.CreatedAt = upd.CreatedAt
	}
	if !upd.LastLoginTime.IsZero() {
		cur.LastLoginTime = upd.LastLoginTime
	}
	cur.UpdatedAt = time.Now().UTC()
	return cur
}

func mergeMeeting(cur, upd zoom.Meeting) zoom.Meeting {
	if upd.UUID != "" {
		cur.UUID = upd.UUID
	}
	if upd.HostID != "" {
		cur.HostID = upd.HostID
	}
	if upd.Topic != "" {
		cur.Topic = upd.Topic
	}
	if upd.Type != 0 {
		cur.Type = upd.Type
	}
	if upd.Duration != 0 {
		cur.Duration = upd.Duration
	}
	if upd.Timezone != "" {
		cur.Timezone = upd.Timezone
	}
	if upd.JoinURL != "" {
		cur.JoinURL = upd.JoinURL
	}
	if !upd.CreatedAt.IsZero() {
		cur.CreatedAt = upd.CreatedAt
	}
	cur.UpdatedAt = time.Now().UTC()
	return cur
}
