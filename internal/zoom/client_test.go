package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticTokens string

func (s staticTokens) AccessToken(ctx context.Context) (string, error) { return string(s), nil }

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(staticTokens("tok-123"), WithBaseURL(srv.URL), WithRateLimit(1000))
	return c, srv
}

func TestListUsersFollowsCursor(t *testing.T) {
	var gotTokens []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("page_size"); got != "300" {
			t.Errorf("page_size = %q", got)
		}
		cursor := r.URL.Query().Get("next_page_token")
		gotTokens = append(gotTokens, cursor)
		w.Header().Set("Content-Type", "application/json")
		switch cursor {
		case "":
			json.NewEncoder(w).Encode(map[string]any{
				"next_page_token": "cursor-2",
				"users": []map[string]any{
					{"id": "u1", "email": "a@example.com", "first_name": "Ada", "status": "active", "dept": "eng"},
					{"id": "u2", "email": "b@example.com", "status": "active"},
				},
			})
		case "cursor-2":
			json.NewEncoder(w).Encode(map[string]any{
				"next_page_token": "",
				"users": []map[string]any{
					{"id": "u3", "email": "c@example.com", "status": "active"},
				},
			})
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))

	users, err := c.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("got %d users, want 3", len(users))
	}
	if users[0].ID != "u1" || users[0].Department != "eng" || users[2].ID != "u3" {
		t.Errorf("unexpected users: %+v", users)
	}
	if len(gotTokens) != 2 || gotTokens[1] != "cursor-2" {
		t.Errorf("cursor sequence = %v", gotTokens)
	}
}

func TestListMeetingsNumericID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/host-1/meetings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"next_page_token":"","meetings":[{"id":81234567890,"uuid":"abc==","host_id":"host-1","topic":"standup","type":2,"duration":30}]}`))
	}))

	meetings, err := c.ListMeetings(context.Background(), "host-1")
	if err != nil {
		t.Fatalf("ListMeetings: %v", err)
	}
	if len(meetings) != 1 {
		t.Fatalf("got %d meetings, want 1", len(meetings))
	}
	if meetings[0].MeetingID != "81234567890" {
		t.Errorf("MeetingID = %q, want 81234567890", meetings[0].MeetingID)
	}
	if meetings[0].Topic != "standup" || meetings[0].Duration != 30 {
		t.Errorf("unexpected meeting: %+v", meetings[0])
	}
}

func TestListUsersUpstreamError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":429,"message":"rate limited"}`))
	}))

	_, err := c.ListUsers(context.Background())
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UpstreamError", err)
	}
	if ue.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", ue.Status)
	}
	if ue.Body == "" {
		t.Error("Body is empty, want provider payload")
	}
}

func TestUpdateMeetingHost(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %q", r.Method)
		}
		if r.URL.Path != "/meetings/81234567890" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["schedule_for"] != "new.host@example.com" {
			t.Errorf("schedule_for = %q", body["schedule_for"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := c.UpdateMeetingHost(context.Background(), "81234567890", "new.host@example.com"); err != nil {
		t.Fatalf("UpdateMeetingHost: %v", err)
	}
}

func TestRefreshGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "old-refresh" {
			t.Errorf("refresh_token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600}`))
	}))
	defer srv.Close()

	cfg := OAuthConfig{ClientID: "client-id", ClientSecret: "client-secret", TokenURL: srv.URL}
	cred, err := cfg.RefreshGrant(context.Background(), srv.Client(), "old-refresh")
	if err != nil {
		t.Fatalf("RefreshGrant: %v", err)
	}
	if cred.AccessToken != "new-access" || cred.RefreshToken != "new-refresh" {
		t.Errorf("credential = %+v", cred)
	}
	if until := time.Until(cred.ExpiresAt); until < 55*time.Minute || until > 61*time.Minute {
		t.Errorf("ExpiresAt %v not ~1h out", cred.ExpiresAt)
	}
}

func TestRefreshGrantKeepsOldRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","expires_in":3600}`))
	}))
	defer srv.Close()

	cfg := OAuthConfig{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}
	cred, err := cfg.RefreshGrant(context.Background(), srv.Client(), "old-refresh")
	if err != nil {
		t.Fatalf("RefreshGrant: %v", err)
	}
	if cred.RefreshToken != "old-refresh" {
		t.Errorf("RefreshToken = %q, want old-refresh carried forward", cred.RefreshToken)
	}
}

func TestRefreshGrantAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"reason":"Invalid Token!"}`))
	}))
	defer srv.Close()

	cfg := OAuthConfig{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}
	_, err := cfg.RefreshGrant(context.Background(), srv.Client(), "stale")
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *AuthError", err)
	}
	if ae.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", ae.Status)
	}
}
