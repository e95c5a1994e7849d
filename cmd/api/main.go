package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"chronosync.org/internal/audit"
	"chronosync.org/internal/httpapi"
	"chronosync.org/internal/obs"
	"chronosync.org/internal/store"
	"chronosync.org/internal/store/pg"
	"chronosync.org/internal/store/sqlite"
	"chronosync.org/internal/stream"
	"chronosync.org/internal/sync"
	"chronosync.org/internal/token"
	"chronosync.org/internal/webhook"
	"chronosync.org/internal/zoom"
)

var version = "0.3.1"

func main() {
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CHRONO_COMMIT"))

	// Хранилище: Postgres, SQLite или in-memory (для локальной разработки).
	var (
		st store.Store
		db *sql.DB
	)
	switch {
	case os.Getenv("CHRONO_PG_DSN") != "":
		ps, err := pg.Open(os.Getenv("CHRONO_PG_DSN"))
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		defer ps.Close()
		st, db = ps, ps.DB()
	case os.Getenv("CHRONO_SQLITE_PATH") != "":
		ss, err := sqlite.Open(os.Getenv("CHRONO_SQLITE_PATH"))
		if err != nil {
			log.Fatalf("open sqlite: %v", err)
		}
		defer ss.Close()
		st = ss
	default:
		log.Println("no CHRONO_PG_DSN or CHRONO_SQLITE_PATH set, using in-memory store")
		st = store.NewMemory()
	}

	oauth := zoom.OAuthConfig{
		ClientID:     os.Getenv("CHRONO_ZOOM_CLIENT_ID"),
		ClientSecret: os.Getenv("CHRONO_ZOOM_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("CHRONO_ZOOM_REDIRECT_URL"),
	}
	if oauth.ClientID == "" || oauth.ClientSecret == "" {
		log.Fatal("missing CHRONO_ZOOM_CLIENT_ID / CHRONO_ZOOM_CLIENT_SECRET")
	}
	webhookSecret := os.Getenv("CHRONO_WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Fatal("missing CHRONO_WEBHOOK_SECRET")
	}

	activity := stream.New()
	tokens := token.NewManager(oauth, st, token.WithRefreshHook(func(cred zoom.Credential) {
		activity.Publish(stream.Activity{Kind: stream.KindTokenRefreshed})
	}))
	client := zoom.NewClient(tokens)

	retention := audit.DefaultRetention
	if v := os.Getenv("CHRONO_EVENT_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("parse CHRONO_EVENT_RETENTION: %v", err)
		}
		retention = d
	}
	recorder := audit.NewRecorder(st, retention)
	stopPruner := recorder.StartPruner(time.Hour)
	defer stopPruner()

	engineOpts := []sync.Option{sync.WithActivityStream(activity)}
	if v := os.Getenv("CHRONO_SYNC_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("parse CHRONO_SYNC_WORKERS: %v", err)
		}
		engineOpts = append(engineOpts, sync.WithWorkers(n))
	}
	engine := sync.NewEngine(client, st, recorder, engineOpts...)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Deps{
		Engine:     engine,
		Tokens:     tokens,
		Verifier:   webhook.NewVerifier(webhookSecret),
		Store:      st,
		Stream:     activity,
		Provider:   client,
		OAuth:      oauth,
		CronSecret: os.Getenv("CHRONO_CRON_SECRET"),
	})

	addr := os.Getenv("CHRONO_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting chronosync-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
