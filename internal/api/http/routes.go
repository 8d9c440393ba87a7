package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/assessment"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type Deps struct {
	Service      *assessment.Service
	Auth         *auth.AuthService
	Users        *auth.Users
	DB           *sql.DB
	AuthTimeout  time.Duration
	Registration bool
}

// Mount attaches auth, health, student and teacher routes to r.
func Mount(r chi.Router, d Deps) {
	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Users))
	if d.Registration {
		r.Post("/auth/register", auth.RegisterHandler(d.Auth, d.Users))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", ReadyHandler(d.DB))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth, d.Users, d.AuthTimeout))

		pr.Get("/auth/me", auth.MeHandler())
		pr.Post("/auth/password", auth.ChangePasswordHandler(d.Users))

		pr.Route("/student", func(sr chi.Router) {
			sr.With(rbac.Require("assessment:list-published")).
				Get("/assessments", StudentAssessmentsHandler(d.Service))
			sr.With(rbac.Require("attempt:join")).
				Post("/assessments/{id}/join", JoinHandler(d.Service))
			sr.With(rbac.Require("attempt:respond")).
				Post("/attempts/{attemptId}/responses", RecordResponseHandler(d.Service))
			sr.With(rbac.Require("attempt:submit")).
				Post("/attempts/{attemptId}/submit", SubmitHandler(d.Service))
			sr.With(rbac.Require("attempt:view-own")).
				Get("/attempts/{attemptId}", AttemptDetailHandler(d.Service))
			sr.With(rbac.Require("attempt:view-own")).
				Get("/attempts/{attemptId}/result", AttemptResultHandler(d.Service))
		})

		pr.Route("/teacher/assessments", func(tr chi.Router) {
			tr.With(rbac.Require("assessment:list")).Get("/", ListOwnedHandler(d.Service))
			tr.With(rbac.Require("assessment:create")).Post("/", CreateAssessmentHandler(d.Service))
			tr.With(rbac.Require("assessment:read")).Get("/{id}", GetOwnedHandler(d.Service))
			tr.With(rbac.Require("assessment:update")).Patch("/{id}", UpdateAssessmentHandler(d.Service))
			tr.With(rbac.Require("assessment:delete")).Delete("/{id}", DeleteAssessmentHandler(d.Service))

			tr.With(rbac.Require("question:create")).
				Post("/{id}/questions", CreateQuestionHandler(d.Service))
			tr.With(rbac.Require("question:update")).
				Put("/{id}/questions/{questionId}", UpdateQuestionHandler(d.Service))
			tr.With(rbac.Require("question:delete")).
				Delete("/{id}/questions/{questionId}", DeleteQuestionHandler(d.Service))

			tr.With(rbac.Require("attempt:view-all")).Get("/{id}/results", ResultsHandler(d.Service))
			tr.With(rbac.Require("attempt:view-all")).
				Get("/{id}/attempts/{attemptId}", ReviewAttemptHandler(d.Service))
			tr.With(rbac.Require("attempt:feedback")).
				Put("/{id}/attempts/{attemptId}/feedback", FeedbackHandler(d.Service))
		})
	})
}

// ReadyHandler pings the database.
func ReadyHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
