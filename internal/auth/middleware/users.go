package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	database "github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

const bcryptCost = 12

var (
	ErrEmailTaken      = errors.New("email_taken")
	ErrBadCredentials  = errors.New("invalid credentials")
	ErrInactiveAccount = errors.New("account inactive")
	ErrUnknownUser     = errors.New("user not found")
)

// Users reads and writes profiles in the users table.
type Users struct {
	db *sql.DB
	// AutoProvision creates a STUDENT profile for a token whose subject has none.
	AutoProvision bool
}

func NewUsers(db *sql.DB, autoProvision bool) *Users {
	return &Users{db: db, AutoProvision: autoProvision}
}

type user struct {
	ID, Email, Name, Role, Hash string
	Active                      bool
}

func (u user) identity() rbac.Identity {
	role := rbac.ParseRole(u.Role)
	if !u.Active {
		role = rbac.RoleInactive
	}
	return rbac.Identity{Subject: u.ID, Email: u.Email, Name: u.Name, Role: role}
}

func (s *Users) find(ctx context.Context, where string, arg any) (user, error) {
	var u user
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, password_hash, is_active FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Hash, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return user{}, ErrUnknownUser
	}
	if err != nil {
		return user{}, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

// Resolve reads the profile behind a token. The stored role wins over the
// claim; inactive profiles resolve to INACTIVE.
func (s *Users) Resolve(ctx context.Context, c *Claims) (rbac.Identity, error) {
	u, err := s.find(ctx, `id=$1`, c.Sub)
	switch {
	case err == nil:
		return u.identity(), nil
	case !errors.Is(err, ErrUnknownUser):
		return rbac.Identity{}, err
	case !s.AutoProvision:
		// valid token, no profile: authenticated but without a role
		return rbac.Identity{Subject: c.Sub, Email: c.Email}, nil
	}

	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" {
		email = c.Sub + "@local"
	}
	// a concurrent provision of the same subject is fine; another profile
	// holding the email is not
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (id,email,password_hash,name,role,is_active,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (id) DO NOTHING`,
		c.Sub, email, "", emailLocalPart(email), string(rbac.RoleStudent), true, time.Now().UnixMilli())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return rbac.Identity{}, fmt.Errorf("provision profile %s: %w", c.Sub, ErrEmailTaken)
		}
		return rbac.Identity{}, fmt.Errorf("provision profile: %w", err)
	}
	log.Printf("auth: provisioned STUDENT profile for %s", c.Sub)
	u, err = s.find(ctx, `id=$1`, c.Sub)
	if err != nil {
		return rbac.Identity{}, err
	}
	return u.identity(), nil
}

func emailLocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

// Create inserts a profile with a bcrypt password hash.
func (s *Users) Create(ctx context.Context, email, password, name string, role rbac.Role) (rbac.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return rbac.Identity{}, err
	}
	u := user{
		ID:     uuid.NewString(),
		Email:  strings.ToLower(strings.TrimSpace(email)),
		Name:   strings.TrimSpace(name),
		Role:   string(role),
		Hash:   string(hash),
		Active: true,
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (id,email,password_hash,name,role,is_active,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`, u.ID, u.Email, u.Hash, u.Name, u.Role, u.Active, time.Now().UnixMilli())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return rbac.Identity{}, ErrEmailTaken
		}
		return rbac.Identity{}, fmt.Errorf("insert user: %w", err)
	}
	return u.identity(), nil
}

// Authenticate checks email and password. Unknown email and wrong password
// are indistinguishable to the caller.
func (s *Users) Authenticate(ctx context.Context, email, password string) (rbac.Identity, error) {
	u, err := s.find(ctx, `email=$1`, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrUnknownUser) {
		return rbac.Identity{}, ErrBadCredentials
	}
	if err != nil {
		return rbac.Identity{}, err
	}
	if u.Hash == "" || bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return rbac.Identity{}, ErrBadCredentials
	}
	if !u.Active {
		return rbac.Identity{}, ErrInactiveAccount
	}
	return u.identity(), nil
}

// ChangePassword verifies the old password before storing the new one.
func (s *Users) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	u, err := s.find(ctx, `id=$1`, id)
	if err != nil {
		return err
	}
	if u.Hash == "" || bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(oldPassword)) != nil {
		return ErrBadCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), id); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetActive toggles a profile; INACTIVE is derived from is_active=false.
func (s *Users) SetActive(ctx context.Context, email string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active=$1 WHERE email=$2`,
		active, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUnknownUser
	}
	return nil
}
