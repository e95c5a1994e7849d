// Package sqlite backs the store with an embedded database, for single-node
// deployments and local development where running Postgres is overkill.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"chronosync.org/internal/store"
	"chronosync.org/internal/zoom"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

const schema = `
create table if not exists zoom_credentials (
	id integer primary key check (id = 1),
	access_token text not null,
	refresh_token text not null,
	expires_at timestamp not null,
	updated_at timestamp not null
);
create table if not exists zoom_users (
	id text primary key,
	email text not null default '',
	first_name text not null default '',
	last_name text not null default '',
	display_name text not null default '',
	type integer not null default 0,
	status text not null default '',
	pmi integer not null default 0,
	timezone text not null default '',
	dept text not null default '',
	created_at timestamp,
	last_login_time timestamp,
	updated_at timestamp not null
);
create table if not exists zoom_meetings (
	meeting_id text primary key,
	uuid text not null default '',
	host_id text references zoom_users(id) on delete set null,
	topic text not null default '',
	type integer not null default 0,
	duration integer not null default 0,
	timezone text not null default '',
	join_url text not null default '',
	created_at timestamp,
	updated_at timestamp not null
);
create table if not exists webhook_events (
	id text primary key,
	event_type text not null,
	object_id text not null default '',
	event_ts integer not null default 0,
	payload blob,
	received_at timestamp not null
);
create index if not exists webhook_events_received_at on webhook_events(received_at);
`

// Open opens (and if needed creates) the database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The driver serializes access; a single connection avoids SQLITE_BUSY
	// under concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`pragma journal_mode = wal; pragma foreign_keys = on;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Credential(ctx context.Context) (zoom.Credential, error) {
	var c zoom.Credential
	err := s.db.QueryRowContext(ctx, `
		select access_token, refresh_token, expires_at, updated_at
		from zoom_credentials where id = 1
	`).Scan(&c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return zoom.Credential{}, store.ErrCredentialMissing
	}
	if err != nil {
		return zoom.Credential{}, err
	}
	if c.RefreshToken == "" {
		return zoom.Credential{}, store.ErrCredentialMissing
	}
	return c, nil
}

func (s *Store) SaveCredential(ctx context.Context, cred zoom.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		insert into zoom_credentials(id, access_token, refresh_token, expires_at, updated_at)
		values (1, ?, ?, ?, ?)
		on conflict (id) do update
		set access_token = excluded.access_token,
		    refresh_token = excluded.refresh_token,
		    expires_at = excluded.expires_at,
		    updated_at = excluded.updated_at
	`, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, time.Now().UTC())
	return err
}

func (s *Store) UpsertUser(ctx context.Context, u zoom.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into zoom_users(id, email, first_name, last_name, display_name, type, status, pmi, timezone, dept, created_at, last_login_time, updated_at)
		values (?,?,?,?,?,?,?,?,?,?,?,?,?)
		on conflict (id) do update
		set email = excluded.email,
		    first_name = excluded.first_name,
		    last_name = excluded.last_name,
		    display_name = excluded.display_name,
		    type = excluded.type,
		    status = excluded.status,
		    pmi = excluded.pmi,
		    timezone = excluded.timezone,
		    dept = excluded.dept,
		    created_at = excluded.created_at,
		    last_login_time = excluded.last_login_time,
		    updated_at = excluded.updated_at
	`, u.ID, u.Email, u.FirstName, u.LastName, u.DisplayName, u.Type, u.Status, u.PMI, u.Timezone, u.Department, nullTime(u.CreatedAt), nullTime(u.LastLoginTime), time.Now().UTC())
	return err
}

func (s *Store) MergeUser(ctx context.Context, u zoom.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into zoom_users(id, email, first_name, last_name, display_name, type, status, pmi, timezone, dept, created_at, last_login_time, updated_at)
		values (?,?,?,?,?,?,?,?,?,?,?,?,?)
		on conflict (id) do update
		set email = coalesce(nullif(excluded.email,''), zoom_users.email),
		    first_name = coalesce(nullif(excluded.first_name,''), zoom_users.first_name),
		    last_name = coalesce(nullif(excluded.last_name,''), zoom_users.last_name),
		    display_name = coalesce(nullif(excluded.display_name,''), zoom_users.display_name),
		    type = coalesce(nullif(excluded.type,0), zoom_users.type),
		    status = coalesce(nullif(excluded.status,''), zoom_users.status),
		    pmi = coalesce(nullif(excluded.pmi,0), zoom_users.pmi),
		    timezone = coalesce(nullif(excluded.timezone,''), zoom_users.timezone),
		    dept = coalesce(nullif(excluded.dept,''), zoom_users.dept),
		    created_at = coalesce(excluded.created_at, zoom_users.created_at),
		    last_login_time = coalesce(excluded.last_login_time, zoom_users.last_login_time),
		    updated_at = excluded.updated_at
	`, u.ID, u.Email, u.FirstName, u.LastName, u.DisplayName, u.Type, u.Status, u.PMI, u.Timezone, u.Department, nullTime(u.CreatedAt), nullTime(u.LastLoginTime), time.Now().UTC())
	return err
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from zoom_users where id = ?`, id)
	return err
}

func (s *Store) User(ctx context.Context, id string) (zoom.User, error) {
	var u zoom.User
	var created, lastLogin, updated sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select id, email, first_name, last_name, display_name, type, status, pmi, timezone, dept, created_at, last_login_time, updated_at
		from zoom_users where id = ?
	`, id).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.DisplayName, &u.Type, &u.Status, &u.PMI, &u.Timezone, &u.Department, &created, &lastLogin, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return zoom.User{}, store.ErrNotFound
	}
	if err != nil {
		return zoom.User{}, err
	}
	u.CreatedAt = created.Time
	u.LastLoginTime = lastLogin.Time
	u.UpdatedAt = updated.Time
	return u, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select id from zoom_users order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) UpsertMeeting(ctx context.Context, m zoom.Meeting) error {
	_, err := s.db.ExecContext(ctx, `
		insert into zoom_meetings(meeting_id, uuid, host_id, topic, type, duration, timezone, join_url, created_at, updated_at)
		values (?,?,nullif(?,''),?,?,?,?,?,?,?)
		on conflict (meeting_id) do update
		set uuid = excluded.uuid,
		    host_id = excluded.host_id,
		    topic = excluded.topic,
		    type = excluded.type,
		    duration = excluded.duration,
		    timezone = excluded.timezone,
		    join_url = excluded.join_url,
		    created_at = excluded.created_at,
		    updated_at = excluded.updated_at
	`, m.MeetingID, m.UUID, m.HostID, m.Topic, m.Type, m.Duration, m.Timezone, m.JoinURL, nullTime(m.CreatedAt), time.Now().UTC())
	return err
}

func (s *Store) MergeMeeting(ctx context.Context, m zoom.Meeting) error {
	_, err := s.db.ExecContext(ctx, `
		insert into zoom_meetings(meeting_id, uuid, host_id, topic, type, duration, timezone, join_url, created_at, updated_at)
		values (?,?,nullif(?,''),?,?,?,?,?,?,?)
		on conflict (meeting_id) do update
		set uuid = coalesce(nullif(excluded.uuid,''), zoom_meetings.uuid),
		    host_id = coalesce(excluded.host_id, zoom_meetings.host_id),
		    topic = coalesce(nullif(excluded.topic,''), zoom_meetings.topic),
		    type = coalesce(nullif(excluded.type,0), zoom_meetings.type),
		    duration = coalesce(nullif(excluded.duration,0), zoom_meetings.duration),
		    timezone = coalesce(nullif(excluded.timezone,''), zoom_meetings.timezone),
		    join_url = coalesce(nullif(excluded.join_url,''), zoom_meetings.join_url),
		    created_at = coalesce(excluded.created_at, zoom_meetings.created_at),
		    updated_at = excluded.updated_at
	`, m.MeetingID, m.UUID, m.HostID, m.Topic, m.Type, m.Duration, m.Timezone, m.JoinURL, nullTime(m.CreatedAt), time.Now().UTC())
	return err
}

func (s *Store) DeleteMeeting(ctx context.Context, meetingID string) error {
	_, err := s.db.ExecContext(ctx, `delete from zoom_meetings where meeting_id = ?`, meetingID)
	return err
}

func (s *Store) Meeting(ctx context.Context, meetingID string) (zoom.Meeting, error) {
	var m zoom.Meeting
	var hostID sql.NullString
	var created, updated sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select meeting_id, uuid, host_id, topic, type, duration, timezone, join_url, created_at, updated_at
		from zoom_meetings where meeting_id = ?
	`, meetingID).Scan(&m.MeetingID, &m.UUID, &hostID, &m.Topic, &m.Type, &m.Duration, &m.Timezone, &m.JoinURL, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return zoom.Meeting{}, store.ErrNotFound
	}
	if err != nil {
		return zoom.Meeting{}, err
	}
	m.HostID = hostID.String
	m.CreatedAt = created.Time
	m.UpdatedAt = updated.Time
	return m, nil
}

func (s *Store) AppendEvent(ctx context.Context, rec store.EventRecord) error {
	_, err := s.db.ExecContext(ctx, `
		insert into webhook_events(id, event_type, object_id, event_ts, payload, received_at)
		values (?,?,?,?,?,?)
	`, rec.ID, rec.EventType, rec.ObjectID, rec.EventTS, rec.Payload, rec.ReceivedAt)
	return err
}

func (s *Store) ListEvents(ctx context.Context, limit int) ([]store.EventRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, event_type, object_id, event_ts, payload, received_at
		from webhook_events
		order by received_at desc
		limit ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []store.EventRecord
	for rows.Next() {
		var rec store.EventRecord
		if err := rows.Scan(&rec.ID, &rec.EventType, &rec.ObjectID, &rec.EventTS, &rec.Payload, &rec.ReceivedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from webhook_events where received_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
