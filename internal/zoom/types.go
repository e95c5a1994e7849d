package zoom

import (
	"errors"
	"fmt"
	"time"
)

// User is a directory user as tracked locally. ID is assigned by the
// provider and is the only upsert key.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	DisplayName   string    `json:"display_name"`
	Type          int       `json:"type"`
	Status        string    `json:"status"`
	PMI           int64     `json:"pmi"`
	Timezone      string    `json:"timezone"`
	Department    string    `json:"dept"`
	CreatedAt     time.Time `json:"created_at"`
	LastLoginTime time.Time `json:"last_login_time"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Meeting is a scheduled meeting. MeetingID is the provider-assigned numeric
// id rendered as text; it is the business key and is distinct from UUID,
// which changes per occurrence.
type Meeting struct {
	MeetingID string    `json:"meeting_id"`
	UUID      string    `json:"uuid"`
	HostID    string    `json:"host_id"`
	Topic     string    `json:"topic"`
	Type      int       `json:"type"`
	Duration  int       `json:"duration"`
	Timezone  string    `json:"timezone"`
	JoinURL   string    `json:"join_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credential is the single OAuth token pair shared by the whole deployment.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Valid reports whether the access token is still usable for at least the
// given margin.
func (c Credential) Valid(now time.Time, margin time.Duration) bool {
	return c.AccessToken != "" && c.ExpiresAt.After(now.Add(margin))
}

// UpstreamError carries a non-2xx response from a provider listing call.
// The caller decides whether to retry or skip; the client never retries.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("zoom: upstream status %d: %s", e.Status, e.Body)
}

var (
	// ErrNoToken indicates the token source could not produce a usable
	// access token for an outbound call.
	ErrNoToken = errors.New("zoom: no access token available")
)
