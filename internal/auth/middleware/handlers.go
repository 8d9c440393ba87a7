package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

var validate = validator.New()

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerReq struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"required,max=120"`
}

type changePasswordReq struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", "bad json")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}

// POST /auth/login  { "email": "...", "password": "..." }
func LoginHandler(a *AuthService, users *Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if !decode(w, r, &req) {
			return
		}
		id, err := users.Authenticate(r.Context(), req.Email, req.Password)
		switch {
		case errors.Is(err, ErrBadCredentials):
			writeErr(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		case errors.Is(err, ErrInactiveAccount):
			writeErr(w, http.StatusForbidden, "forbidden", "account inactive")
			return
		case err != nil:
			writeErr(w, http.StatusBadGateway, "upstream", err.Error())
			return
		}
		tok, err := a.IssueJWT(id)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "upstream", "issue token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": tok, "role": string(id.Role)})
	}
}

// POST /auth/register creates a STUDENT profile and signs it in.
func RegisterHandler(a *AuthService, users *Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerReq
		if !decode(w, r, &req) {
			return
		}
		id, err := users.Create(r.Context(), req.Email, req.Password, req.Name, rbac.RoleStudent)
		if errors.Is(err, ErrEmailTaken) {
			writeErr(w, http.StatusBadRequest, "bad_request", "email_taken")
			return
		}
		if err != nil {
			writeErr(w, http.StatusBadGateway, "upstream", err.Error())
			return
		}
		log.Printf("auth: registered %s", id.Subject)
		tok, err := a.IssueJWT(id)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "upstream", "issue token")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id.Subject, "access_token": tok, "role": string(id.Role)})
	}
}

// GET /auth/me
func MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := rbac.IdentityFromContext(r.Context())
		if !id.Authenticated() {
			writeErr(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		writeJSON(w, http.StatusOK, id)
	}
}

// POST /auth/password  { "old_password": "...", "new_password": "..." }
func ChangePasswordHandler(users *Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := rbac.IdentityFromContext(r.Context())
		if !id.Authenticated() {
			writeErr(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		var req changePasswordReq
		if !decode(w, r, &req) {
			return
		}
		err := users.ChangePassword(r.Context(), id.Subject, req.OldPassword, req.NewPassword)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, ErrUnknownUser):
			writeErr(w, http.StatusNotFound, "not_found", "user not found")
		case errors.Is(err, ErrBadCredentials):
			writeErr(w, http.StatusForbidden, "forbidden", "incorrect old password")
		default:
			writeErr(w, http.StatusBadGateway, "upstream", err.Error())
		}
	}
}
