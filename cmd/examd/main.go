package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/bcrypt"

	"github.com/studydeck/studydeck-exam/internal/analysis"
	api "github.com/studydeck/studydeck-exam/internal/api/http"
	auth "github.com/studydeck/studydeck-exam/internal/auth/middleware"
	"github.com/studydeck/studydeck-exam/internal/config"
	"github.com/studydeck/studydeck-exam/internal/db"
	"github.com/studydeck/studydeck-exam/internal/store"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	st := store.NewSQLStore(dbh)
	events := store.NewEventRepo(dbh)

	// --- Auth (local JWT; the full identity provider is external) ---
	creds := map[string]string{}
	if cfg.AdminPassHash != "" {
		creds[cfg.AdminUser] = cfg.AdminPassHash
	} else {
		// dev fallback: admin/admin
		h, _ := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
		creds[cfg.AdminUser] = string(h)
	}
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, creds)

	// --- Session runtime + analysis engine ---
	rt := api.NewRuntime(st, events, time.Now)
	rt.AutosaveInterval = time.Duration(cfg.AutosaveIntervalSec) * time.Second
	eng := analysis.NewEngine(cfg.SpeedSegmentSize)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc))

	// Protected API
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.Post("/tests", api.PutTestHandler(st))
		pr.Post("/tests/{testID}/sessions", api.StartSessionHandler(rt))
		pr.Get("/tests/{testID}/attempts", api.ListAttemptsHandler(st))

		pr.Route("/sessions/{sessionID}", func(sr chi.Router) {
			sr.Get("/", api.GetSessionHandler(rt))
			sr.Post("/answers", api.SetAnswerHandler(rt))
			sr.Post("/mark", api.ToggleMarkHandler(rt))
			sr.Post("/next", api.NavigateHandler(rt, "next"))
			sr.Post("/prev", api.NavigateHandler(rt, "prev"))
			sr.Post("/goto", api.NavigateHandler(rt, "goto"))
			sr.Post("/draft", api.SaveDraftHandler(rt))
			sr.Post("/submit", api.SubmitHandler(rt))
			sr.Post("/submit/retry", api.RetrySubmitHandler(rt))
		})

		pr.Get("/attempts/{attemptID}/analysis", api.AnalysisHandler(st, eng))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
