package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/assessment"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type joinReq struct {
	Password string `json:"password" validate:"max=200"`
}

type responseReq struct {
	QuestionID       string `json:"question_id" validate:"required"`
	SelectedOptionID string `json:"selected_option_id" validate:"required"`
}

// POST /student/assessments/{id}/join  { "password"?: "..." }
func JoinHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinReq
		if !decode(w, r, &req) {
			return
		}
		at, err := svc.Join(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"attemptId": at.ID,
			"status":    at.Status,
			"expiresAt": at.ExpiresAt,
		})
	}
}

// POST /student/attempts/{attemptId}/responses
func RecordResponseHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req responseReq
		if !decode(w, r, &req) {
			return
		}
		err := svc.RecordResponse(r.Context(), rbac.IdentityFromContext(r.Context()),
			chi.URLParam(r, "attemptId"), req.QuestionID, req.SelectedOptionID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// POST /student/attempts/{attemptId}/submit
func SubmitHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.Submit(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "attemptId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /student/attempts/{attemptId}
func AttemptDetailHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.AttemptDetail(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "attemptId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// GET /student/attempts/{attemptId}/result
func AttemptResultHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.AttemptResult(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "attemptId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// GET /student/assessments
func StudentAssessmentsHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.StudentAssessments(r.Context(), rbac.IdentityFromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
