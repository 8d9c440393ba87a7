package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type AuthService struct {
	hmac []byte
	ttl  time.Duration
}

func NewAuthService(secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &AuthService{hmac: []byte(secret), ttl: ttl}
}

type Claims struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(id rbac.Identity) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:   id.Subject,
		Role:  string(id.Role),
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "mindengage-quiz",
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Sub == "" {
		return nil, errors.New("invalid token claims")
	}
	return c, nil
}

// Resolver turns verified claims into the caller's current identity.
type Resolver interface {
	Resolve(ctx context.Context, c *Claims) (rbac.Identity, error)
}

// JWTMiddleware verifies the bearer token and attaches the resolved identity.
// Resolution runs under timeout; a failure or timeout is reported as 401,
// except a provisioning clash on the email which is 409.
func JWTMiddleware(a *AuthService, res Resolver, timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeErr(w, http.StatusUnauthorized, "unauthorized", "missing bearer")
				return
			}
			claims, err := a.Parse(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
			if err != nil {
				writeErr(w, http.StatusUnauthorized, "unauthorized", "bad token")
				return
			}
			ctx := r.Context()
			rctx, cancel := ctx, context.CancelFunc(func() {})
			if timeout > 0 {
				rctx, cancel = context.WithTimeout(ctx, timeout)
			}
			id, err := res.Resolve(rctx, claims)
			cancel()
			if err != nil {
				log.Printf("auth: resolve %s: %v", claims.Sub, err)
				if errors.Is(err, ErrEmailTaken) {
					writeErr(w, http.StatusConflict, "conflict", "email already belongs to another profile")
					return
				}
				writeErr(w, http.StatusUnauthorized, "unauthorized", "session could not be resolved")
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.WithIdentity(ctx, id)))
		})
	}
}

func writeErr(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"kind": kind, "message": msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
