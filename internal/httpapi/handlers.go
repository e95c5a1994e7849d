package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"chronosync.org/api/spec"
	"chronosync.org/internal/obs"
	"chronosync.org/internal/store"
	"chronosync.org/internal/stream"
	"chronosync.org/internal/sync"
	"chronosync.org/internal/token"
	"chronosync.org/internal/webhook"
	"chronosync.org/internal/zoom"
)

// ReadyProbe — простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// ProviderAdmin is the slice of the provider client used by admin endpoints.
type ProviderAdmin interface {
	UpdateMeetingHost(ctx context.Context, meetingID, hostEmail string) error
}

// Deps carries the service dependencies the HTTP layer exposes.
type Deps struct {
	Engine     *sync.Engine
	Tokens     *token.Manager
	Verifier   *webhook.Verifier
	Store      store.Store
	Stream     *stream.Stream
	Provider   ProviderAdmin
	OAuth      zoom.OAuthConfig
	CronSecret string
}

// API — HTTP слой.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	engine     *sync.Engine
	tokens     *token.Manager
	verifier   *webhook.Verifier
	store      store.Store
	stream     *stream.Stream
	provider   ProviderAdmin
	oauth      zoom.OAuthConfig
	cronSecret string

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		engine:     deps.Engine,
		tokens:     deps.Tokens,
		verifier:   deps.Verifier,
		store:      deps.Store,
		stream:     deps.Stream,
		provider:   deps.Provider,
		oauth:      deps.OAuth,
		cronSecret: deps.CronSecret,
		rateBurst:  20,
		ratePerSec: 10,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// sync surface
	a.mux.HandleFunc("/v1/trigger", a.handleTrigger)
	a.mux.HandleFunc("/v1/webhook", a.handleWebhook)
	a.mux.HandleFunc("/v1/oauth/authorize", a.handleOAuthAuthorize)
	a.mux.HandleFunc("/v1/oauth/callback", a.handleOAuthCallback)
	a.mux.Handle("/v1/admin/meetings/", RequireRole("admin")(http.HandlerFunc(a.handleMeetingAdmin)))
	a.mux.Handle("/v1/events", RequireRole("admin")(http.HandlerFunc(a.handleEvents)))
	a.mux.HandleFunc("/v1/stream", a.Stream)

	// auth
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// (опционально) корень — 404
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler возвращает http.Handler для сервера (без доп. аргументов).
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	// оборачиваем весь стек метриками
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "chronosync-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "chronosync-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
