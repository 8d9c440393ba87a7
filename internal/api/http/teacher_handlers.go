package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/assessment"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// POST /teacher/assessments
func CreateAssessmentHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in assessment.NewAssessment
		if !decode(w, r, &in) {
			return
		}
		a, err := svc.CreateAssessment(r.Context(), rbac.IdentityFromContext(r.Context()), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": a.ID})
	}
}

// PATCH /teacher/assessments/{id}
func UpdateAssessmentHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p assessment.AssessmentPatch
		if !decode(w, r, &p) {
			return
		}
		a, err := svc.UpdateAssessment(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// DELETE /teacher/assessments/{id}
func DeleteAssessmentHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteAssessment(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /teacher/assessments
func ListOwnedHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListOwned(r.Context(), rbac.IdentityFromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /teacher/assessments/{id}
func GetOwnedHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.GetOwned(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// POST /teacher/assessments/{id}/questions
func CreateQuestionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in assessment.QuestionInput
		if !decode(w, r, &in) {
			return
		}
		q, err := svc.CreateQuestion(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

// PUT /teacher/assessments/{id}/questions/{questionId}
func UpdateQuestionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in assessment.QuestionInput
		if !decode(w, r, &in) {
			return
		}
		q, err := svc.UpdateQuestion(r.Context(), rbac.IdentityFromContext(r.Context()),
			chi.URLParam(r, "id"), chi.URLParam(r, "questionId"), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// DELETE /teacher/assessments/{id}/questions/{questionId}
func DeleteQuestionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.DeleteQuestion(r.Context(), rbac.IdentityFromContext(r.Context()),
			chi.URLParam(r, "id"), chi.URLParam(r, "questionId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /teacher/assessments/{id}/results
func ResultsHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.Results(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// GET /teacher/assessments/{id}/attempts/{attemptId}
func ReviewAttemptHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rv, err := svc.ReviewAttempt(r.Context(), rbac.IdentityFromContext(r.Context()),
			chi.URLParam(r, "id"), chi.URLParam(r, "attemptId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rv)
	}
}

type feedbackReq struct {
	Message string `json:"message" validate:"required,max=5000"`
}

// PUT /teacher/assessments/{id}/attempts/{attemptId}/feedback
func FeedbackHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedbackReq
		if !decode(w, r, &req) {
			return
		}
		f, err := svc.SetFeedback(r.Context(), rbac.IdentityFromContext(r.Context()),
			chi.URLParam(r, "id"), chi.URLParam(r, "attemptId"), req.Message)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}
