package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"chronosync.org/internal/obs"
)

const (
	defaultBaseURL  = "https://api.zoom.us/v2"
	defaultPageSize = 300

	// The provider enforces per-app rate limits; stay well below them.
	defaultRequestsPerSecond = 10
)

// TokenSource supplies a bearer token for outbound provider calls.
// The token lifecycle manager implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client speaks the provider's REST directory API: cursor-paginated user and
// meeting listings plus the meeting host reassignment call. It does not retry;
// retry policy belongs to the reconciliation engine.
type Client struct {
	baseURL  string
	http     *http.Client
	tokens   TokenSource
	limiter  *rate.Limiter
	pageSize int
}

// ClientOption configures Client behavior.
type ClientOption func(*Client)

// WithBaseURL overrides the provider API root (used by tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRateLimit overrides the outbound requests-per-second budget.
func WithRateLimit(perSecond int) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

// WithPageSize overrides the listing page size.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewClient constructs a directory client.
func NewClient(tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		tokens:   tokens,
		limiter:  rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// userPage mirrors the provider's user listing response.
type userPage struct {
	NextPageToken string `json:"next_page_token"`
	Users         []struct {
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
	} `json:"users"`
}

// meetingPage mirrors the provider's per-user meeting listing response.
// Meeting ids arrive as JSON numbers.
type meetingPage struct {
	NextPageToken string `json:"next_page_token"`
	Meetings      []struct {
		ID        json.Number `json:"id"`
		UUID      string      `json:"uuid"`
		HostID    string      `json:"host_id"`
		Topic     string      `json:"topic"`
		Type      int         `json:"type"`
		Duration  int         `json:"duration"`
		Timezone  string      `json:"timezone"`
		JoinURL   string      `json:"join_url"`
		CreatedAt time.Time   `json:"created_at"`
	} `json:"meetings"`
}

// ListUsers fetches every active directory user, following the cursor until
// the provider returns an empty next_page_token. Cursors are single-use:
// a failure mid-sequence surfaces as an error with whatever the caller has
// already applied left in place.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	cursor := ""
	for {
		q := url.Values{}
		q.Set("status", "active")
		q.Set("page_size", strconv.Itoa(c.pageSize))
		if cursor != "" {
			q.Set("next_page_token", cursor)
		}
		var page userPage
		if err := c.getJSON(ctx, "/users?"+q.Encode(), &page); err != nil {
			return out, err
		}
		for _, u := range page.Users {
			out = append(out, User{
				ID:            u.ID,
				Email:         u.Email,
				FirstName:     u.FirstName,
				LastName:      u.LastName,
				DisplayName:   u.DisplayName,
				Type:          u.Type,
				Status:        u.Status,
				PMI:           u.PMI,
				Timezone:      u.Timezone,
				Department:    u.Department,
				CreatedAt:     u.CreatedAt,
				LastLoginTime: u.LastLoginTime,
			})
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		cursor = page.NextPageToken
	}
}

// ListMeetings fetches every scheduled meeting owned by the given user,
// following the cursor until exhaustion.
func (c *Client) ListMeetings(ctx context.Context, userID string) ([]Meeting, error) {
	if userID == "" {
		return nil, fmt.Errorf("zoom: userID is required")
	}
	var out []Meeting
	cursor := ""
	for {
		q := url.Values{}
		q.Set("page_size", strconv.Itoa(c.pageSize))
		if cursor != "" {
			q.Set("next_page_token", cursor)
		}
		path := "/users/" + url.PathEscape(userID) + "/meetings?" + q.Encode()
		var page meetingPage
		if err := c.getJSON(ctx, path, &page); err != nil {
			return out, err
		}
		for _, m := range page.Meetings {
			out = append(out, Meeting{
				MeetingID: m.ID.String(),
				UUID:      m.UUID,
				HostID:    m.HostID,
				Topic:     m.Topic,
				Type:      m.Type,
				Duration:  m.Duration,
				Timezone:  m.Timezone,
				JoinURL:   m.JoinURL,
				CreatedAt: m.CreatedAt,
			})
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		cursor = page.NextPageToken
	}
}

// UpdateMeetingHost reassigns a meeting to a new host by email
// (PATCH /meetings/{id} with schedule_for). The provider answers 204.
func (c *Client) UpdateMeetingHost(ctx context.Context, meetingID, hostEmail string) error {
	if meetingID == "" || hostEmail == "" {
		return fmt.Errorf("zoom: meetingID and hostEmail are required")
	}
	body, err := json.Marshal(map[string]string{"schedule_for": hostEmail})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPatch, "/meetings/"+url.PathEscape(meetingID), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return upstreamError(resp)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return upstreamError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNoToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		obs.ProviderRequests.WithLabelValues("transport_error").Inc()
		return nil, err
	}
	obs.ProviderRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

func upstreamError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &UpstreamError{Status: resp.StatusCode, Body: string(data)}
}
