package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	"github.com/mind-engage/mindengage-quiz/internal/assessment"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/scoring"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

func main() {
	cfg := config.Load()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Fatalf("db driver: %v", err)
	}
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	// --- Scoring ---
	var scorer scoring.Delegate
	switch cfg.ScoringDriver {
	case "http":
		scorer = scoring.NewHTTPDelegate(cfg.ScoringURL, cfg.ScoringTimeout)
	default:
		scorer = scoring.NewSQLDelegate(dbh)
	}

	// --- Events: local log, plus AMQP when configured ---
	sinks := syncx.Fanout{syncx.NewEventRepo(dbh, cfg.SiteID)}
	if cfg.EventsAMQPURL != "" {
		amqpSink, err := syncx.DialAMQP(cfg.EventsAMQPURL, cfg.EventsExchange)
		if err != nil {
			log.Printf("events: amqp disabled: %v", err)
		} else {
			defer amqpSink.Close()
			sinks = append(sinks, amqpSink)
		}
	}

	store := assessment.NewSQLStore(dbh)
	svc := assessment.NewService(store, scorer, assessment.WithEvents(sinks))

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, cfg.AuthTokenTTL)
	users := auth.NewUsers(dbh, cfg.AutoProvisionProfiles)

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

	api.Mount(r, api.Deps{
		Service:      svc,
		Auth:         authSvc,
		Users:        users,
		DB:           dbh,
		AuthTimeout:  cfg.AuthTimeout,
		Registration: cfg.EnableRegistration,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s (mode=%s, db=%s, scoring=%s)", cfg.HTTPAddr, cfg.Mode, driver, cfg.ScoringDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
