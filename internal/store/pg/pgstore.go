package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"chronosync.org/internal/store"
	"chronosync.org/internal/zoom"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle (used by tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

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
		values (1, $1, $2, $3, now())
		on conflict (id) do update
		set access_token = excluded.access_token,
		    refresh_token = excluded.refresh_token,
		    expires_at = excluded.expires_at,
		    updated_at = now()
	`, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt)
	return err
}

func (s *Store) UpsertUser(ctx context.Context, u zoom.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into zoom_users(id, email, first_name, last_name, display_name, type, status, pmi, timezone, dept, created_at, last_login_time, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
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
		    updated_at = now()
	`, u.ID, u.Email, u.FirstName, u.LastName, u.DisplayName, u.Type, u.Status, u.PMI, u.Timezone, u.Department, nullTime(u.CreatedAt), nullTime(u.LastLoginTime))
	return err
}

// MergeUser writes a partial row: empty and zero fields keep the stored
// value, so webhook deltas never wipe columns they did not carry.
func (s *Store) MergeUser(ctx context.Context, u zoom.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into zoom_users(id, email, first_name, last_name, display_name, type, status, pmi, timezone, dept, created_at, last_login_time, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
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
		    updated_at = now()
	`, u.ID, u.Email, u.FirstName, u.LastName, u.DisplayName, u.Type, u.Status, u.PMI, u.Timezone, u.Department, nullTime(u.CreatedAt), nullTime(u.LastLoginTime))
	return err
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from zoom_users where id = $1`, id)
	return err
}

func (s *Store) User(ctx context.Context, id string) (zoom.User, error) {
	var u zoom.User
	var created, lastLogin, updated sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select id, email, first_name, last_name, display_name, type, status, pmi, timezone, dept, created_at, last_login_time, updated_at
		from zoom_users where id = $1
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
		values ($1,$2,nullif($3,''),$4,$5,$6,$7,$8,$9,now())
		on conflict (meeting_id) do update
		set uuid = excluded.uuid,
		    host_id = excluded.host_id,
		    topic = excluded.topic,
		    type = excluded.type,
		    duration = excluded.duration,
		    timezone = excluded.timezone,
		    join_url = excluded.join_url,
		    created_at = excluded.created_at,
		    updated_at = now()
	`, m.MeetingID, m.UUID, m.HostID, m.Topic, m.Type, m.Duration, m.Timezone, m.JoinURL, nullTime(m.CreatedAt))
	return err
}

func (s *Store) MergeMeeting(ctx context.Context, m zoom.Meeting) error {
	_, err := s.db.ExecContext(ctx, `
		insert into zoom_meetings(meeting_id, uuid, host_id, topic, type, duration, timezone, join_url, created_at, updated_at)
		values ($1,$2,nullif($3,''),$4,$5,$6,$7,$8,$9,now())
		on conflict (meeting_id) do update
		set uuid = coalesce(nullif(excluded.uuid,''), zoom_meetings.uuid),
		    host_id = coalesce(excluded.host_id, zoom_meetings.host_id),
		    topic = coalesce(nullif(excluded.topic,''), zoom_meetings.topic),
		    type = coalesce(nullif(excluded.type,0), zoom_meetings.type),
		    duration = coalesce(nullif(excluded.duration,0), zoom_meetings.duration),
		    timezone = coalesce(nullif(excluded.timezone,''), zoom_meetings.timezone),
		    join_url = coalesce(nullif(excluded.join_url,''), zoom_meetings.join_url),
		    created_at = coalesce(excluded.created_at, zoom_meetings.created_at),
		    updated_at = now()
	`, m.MeetingID, m.UUID, m.HostID, m.Topic, m.Type, m.Duration, m.Timezone, m.JoinURL, nullTime(m.CreatedAt))
	return err
}

func (s *Store) DeleteMeeting(ctx context.Context, meetingID string) error {
	_, err := s.db.ExecContext(ctx, `delete from zoom_meetings where meeting_id = $1`, meetingID)
	return err
}

func (s *Store) Meeting(ctx context.Context, meetingID string) (zoom.Meeting, error) {
	var m zoom.Meeting
	var hostID sql.NullString
	var created, updated sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select meeting_id, uuid, host_id, topic, type, duration, timezone, join_url, created_at, updated_at
		from zoom_meetings where meeting_id = $1
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
		values ($1,$2,$3,$4,$5,$6)
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
		limit $1
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
	res, err := s.db.ExecContext(ctx, `delete from webhook_events where received_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- helpers ---
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
