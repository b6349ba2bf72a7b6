package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/quizforge/quizforge/internal/api/http"
	"github.com/quizforge/quizforge/internal/attempt"
	"github.com/quizforge/quizforge/internal/auth"
	"github.com/quizforge/quizforge/internal/catalog"
	"github.com/quizforge/quizforge/internal/config"
	"github.com/quizforge/quizforge/internal/db"
	"github.com/quizforge/quizforge/internal/eventlog"
	"github.com/quizforge/quizforge/internal/guest"
	"github.com/quizforge/quizforge/internal/quiz"
	"github.com/quizforge/quizforge/internal/rbac"
	"github.com/quizforge/quizforge/internal/selector"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Open runs the schema bootstrap.
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	questions := catalog.NewSQLStore(dbh)
	quizzes := quiz.NewSQLStore(dbh)
	attempts := attempt.NewSQLStore(dbh)
	events := eventlog.New(dbh)
	picker := selector.New(questions)

	svc := attempt.NewService(attempts, quizzes, questions, picker,
		attempt.WithEvents(events),
		attempt.WithGuests(cfg.EnableGuestAttempts, guest.NewIssuer(cfg.GuestTokenTTL)),
		attempt.WithStaleGrace(cfg.StaleAttemptGrace),
	)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Guest-Token"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh, cfg.AdminUser, cfg.AdminPassHash))

	// Attempt-taking surface. JWT is optional here: guests authenticate per
	// attempt with X-Guest-Token instead.
	r.Group(func(pr chi.Router) {
		pr.Use(auth.OptionalJWT(authSvc))

		pr.Post("/api/quizzes/{quizID}/attempts", api.StartAttemptHandler(svc))
		pr.Get("/api/attempts/{attemptID}", api.GetAttemptHandler(svc, quizzes, questions))
		pr.Put("/api/attempts/{attemptID}/items/{itemID}/answer", api.SaveAnswerHandler(svc))
		pr.Put("/api/attempts/{attemptID}/items/{itemID}/confidence", api.SaveConfidenceHandler(svc))
		pr.Post("/api/attempts/{attemptID}/heartbeat", api.HeartbeatHandler(svc))
		pr.Post("/api/attempts/{attemptID}/navigate", api.NavigateHandler(svc))
		pr.Post("/api/attempts/{attemptID}/submit", api.SubmitAttemptHandler(svc))
		pr.Post("/api/attempts/{attemptID}/abandon", api.AbandonAttemptHandler(svc))
	})

	// Authoring and admin surface (JWT required, role checked).
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.With(rbac.Require("quiz:create")).
			Post("/api/quizzes", api.SaveQuizHandler(quizzes))
		pr.With(rbac.Require("quiz:view")).
			Get("/api/quizzes/{quizID}", api.GetQuizHandler(quizzes))
		pr.With(rbac.Require("quiz:publish")).
			Post("/api/quizzes/{quizID}/publish", api.PublishQuizHandler(quizzes))
		pr.With(rbac.Require("quiz:create")).
			Get("/api/quizzes/{quizID}/rule-counts", api.RuleCountsHandler(quizzes, picker))

		pr.With(rbac.Require("question:edit")).
			Post("/api/questions", api.SaveQuestionHandler(questions))
		pr.With(rbac.Require("question:edit")).
			Get("/api/questions/{questionID}", api.GetQuestionHandler(questions))
		pr.With(rbac.Require("question:edit")).
			Put("/api/questions/{questionID}/status", api.SetQuestionStatusHandler(questions))

		pr.With(rbac.Require("attempt:view-all")).
			Get("/api/attempts", api.ListAttemptsHandler(svc))
		pr.With(rbac.Require("attempt:view-all")).
			Get("/api/events", api.ListEventsHandler(events))
	})

	go sweepStale(svc, cfg.StaleSweepEvery)

	log.Printf("listening on %s (driver=%s)", cfg.HTTPAddr, cfg.DBDriver)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal(err)
	}
}

// sweepStale periodically abandons in-progress attempts that never got an
// answer and fell past the grace window.
func sweepStale(svc *attempt.Service, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for range t.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		n, err := svc.SweepStale(ctx)
		cancel()
		if err != nil {
			log.Printf("stale sweep: %v", err)
		} else if n > 0 {
			log.Printf("stale sweep: abandoned %d attempts", n)
		}
	}
}
