package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chronosync.org/internal/audit"
	"chronosync.org/internal/ids"
	"chronosync.org/internal/store"
	"chronosync.org/internal/webhook"
	"chronosync.org/internal/zoom"
)

const cronSecretHeader = "X-Cron-Secret"

type triggerRequest struct {
	Action string `json:"action"`
}

// handleTrigger runs one sync action on demand. The scheduler authenticates
// with the shared cron secret in X-Cron-Secret.
func (a *API) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.cronSecret == "" {
		writeError(w, r, http.StatusInternalServerError, "trigger secret not configured")
		return
	}
	got := r.Header.Get(cronSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.cronSecret)) != 1 {
		writeError(w, r, http.StatusUnauthorized, "invalid trigger secret")
		return
	}

	var req triggerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "sync-users":
		rep, err := a.engine.SyncUsers(ctx)
		if err != nil {
			handleSyncError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	case "sync-meetings":
		rep, err := a.engine.SyncMeetings(ctx)
		if err != nil {
			handleSyncError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	case "sync-all":
		rep, err := a.engine.SyncAll(ctx)
		if err != nil {
			handleSyncError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	case "refresh-token":
		cred, err := a.tokens.Refresh(ctx)
		if err != nil {
			handleSyncError(w, r, err)
			return
		}
		_ = audit.LogEvent(ctx, "token.refreshed", map[string]any{
			"expires_at": cred.ExpiresAt.UTC().Format(time.RFC3339),
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "refreshed",
			"expires_at": cred.ExpiresAt.UTC(),
		})
	case "prune-events":
		removed, err := a.engine.PruneEvents(ctx)
		if err != nil {
			handleSyncError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
	default:
		writeError(w, r, http.StatusBadRequest, "unknown action")
	}
}

// handleWebhook is the provider's delivery endpoint. The url_validation
// handshake is answered without a signature check (the provider sends it to
// prove endpoint ownership before any secret exchange) and is never
// recorded; every other event type must carry a valid signature.
func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "cannot read body")
		return
	}

	ev, parseErr := webhook.ParseEvent(body)
	if parseErr == nil && ev.Event == webhook.EventURLValidation {
		writeJSON(w, http.StatusOK, a.verifier.ChallengeResponse(ev.Payload.PlainToken))
		return
	}

	if err := a.verifier.Verify(r.Header, body); err != nil {
		writeError(w, r, http.StatusUnauthorized, "signature verification failed")
		return
	}
	if parseErr != nil {
		writeError(w, r, http.StatusBadRequest, "malformed event")
		return
	}

	applied, err := a.engine.ApplyEvent(r.Context(), ev, body)
	if err != nil {
		handleSyncError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"applied": applied,
	})
}

const oauthStateCookie = "chronosync_oauth_state"

// handleOAuthAuthorize starts the provider consent flow.
func (a *API) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	state := ids.New()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/v1/oauth",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, a.oauth.AuthCodeURL(state), http.StatusFound)
}

// handleOAuthCallback finishes the consent flow and persists the initial
// credential pair.
func (a *API) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, r, http.StatusBadRequest, "code and state are required")
		return
	}
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeError(w, r, http.StatusBadRequest, "state mismatch")
		return
	}

	cred, err := a.oauth.Exchange(r.Context(), code)
	if err != nil {
		handleSyncError(w, r, err)
		return
	}
	if err := a.tokens.Store(r.Context(), cred); err != nil {
		handleSyncError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "oauth.authorized", map[string]any{
		"expires_at": cred.ExpiresAt.UTC().Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "authorized"})
}

type updateHostRequest struct {
	Email string `json:"email"`
}

// handleMeetingAdmin serves /v1/admin/meetings/{id}/host.
func (a *API) handleMeetingAdmin(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/meetings/")
	if path == "" || !strings.HasSuffix(path, "/host") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	meetingID := strings.TrimSuffix(strings.TrimSuffix(path, "/host"), "/")
	if meetingID == "" || strings.Contains(meetingID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req updateHostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, r, http.StatusBadRequest, "valid email is required")
		return
	}

	if err := a.provider.UpdateMeetingHost(r.Context(), meetingID, email); err != nil {
		handleSyncError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "meeting.host_updated", map[string]any{
		"meeting_id": meetingID,
		"host_email": email,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
}

// handleEvents lists recent webhook event records, newest first.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	events, err := a.store.ListEvents(r.Context(), limit)
	if err != nil {
		handleSyncError(w, r, err)
		return
	}

	type eventItem struct {
		ID         string          `json:"id"`
		EventType  string          `json:"event_type"`
		ObjectID   string          `json:"object_id,omitempty"`
		EventTS    int64           `json:"event_ts,omitempty"`
		Payload    json.RawMessage `json:"payload,omitempty"`
		ReceivedAt time.Time       `json:"received_at"`
	}
	items := make([]eventItem, 0, len(events))
	for _, rec := range events {
		items = append(items, eventItem{
			ID:         rec.ID,
			EventType:  rec.EventType,
			ObjectID:   rec.ObjectID,
			EventTS:    rec.EventTS,
			Payload:    json.RawMessage(rec.Payload),
			ReceivedAt: rec.ReceivedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"as_of": time.Now().UTC(),
	})
}

// --- helpers ---

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleSyncError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *webhook.VerificationError
	var aerr *zoom.AuthError
	var uerr *zoom.UpstreamError
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusUnauthorized, "verification failed")
	case errors.As(err, &aerr):
		writeError(w, r, http.StatusForbidden, "provider rejected credentials")
	case errors.As(err, &uerr):
		writeError(w, r, http.StatusInternalServerError, "provider request failed")
	case errors.Is(err, store.ErrCredentialMissing):
		writeError(w, r, http.StatusInternalServerError, "service is not authorized with the provider")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
