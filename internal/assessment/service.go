package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/scoring"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// Service runs the attempt lifecycle and teacher authoring on top of a Store.
// Every call takes the resolved caller explicitly.
type Service struct {
	store  Store
	scorer scoring.Delegate
	events syncx.Sink
	perms  *rbac.Checker
	now    func() time.Time
	newID  func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }
func WithEvents(sink syncx.Sink) ServiceOption     { return func(s *Service) { s.events = sink } }
func WithIDs(newID func() string) ServiceOption    { return func(s *Service) { s.newID = newID } }
func WithChecker(c *rbac.Checker) ServiceOption    { return func(s *Service) { s.perms = c } }

func NewService(store Store, scorer scoring.Delegate, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		scorer: scorer,
		perms:  rbac.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// gate runs before any state is read or mutated.
func (s *Service) gate(c rbac.Identity, perm string) error {
	if !c.Authenticated() {
		return newErr(KindUnauthorized, "unauthorized")
	}
	if c.Role == rbac.RoleInactive {
		return newErr(KindForbidden, "account inactive")
	}
	if !s.perms.Has(c.Role, perm) {
		return newErr(KindForbidden, "forbidden")
	}
	return nil
}

// notFound turns a missing row into a NotFound with msg; anything else is upstream.
func notFound(err error, msg string) error {
	if errors.Is(err, errRowNotFound) {
		return newErr(KindNotFound, "%s", msg)
	}
	return upstream(err)
}

// ownedAssessment loads an assessment the teacher owns. Someone else's
// assessment is reported as missing.
func (s *Service) ownedAssessment(ctx context.Context, c rbac.Identity, id string) (Assessment, error) {
	a, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return Assessment{}, notFound(err, "assessment not found")
	}
	if a.OwnerID != c.Subject {
		return Assessment{}, newErr(KindNotFound, "assessment not found")
	}
	return a, nil
}

// ownedAttempt loads the student's attempt and its assessment.
func (s *Service) ownedAttempt(ctx context.Context, c rbac.Identity, attemptID string) (Attempt, Assessment, error) {
	if attemptID == "" {
		return Attempt{}, Assessment{}, newErr(KindBadRequest, "missing attempt id")
	}
	at, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, Assessment{}, notFound(err, "attempt not found")
	}
	if at.StudentID != c.Subject {
		return Attempt{}, Assessment{}, newErr(KindNotFound, "attempt not found")
	}
	a, err := s.store.GetAssessment(ctx, at.AssessmentID)
	if err != nil {
		return Attempt{}, Assessment{}, notFound(err, "assessment not found")
	}
	return at, a, nil
}

// reconcile persists TIMED_OUT for an IN_PROGRESS attempt past either bound.
// It reports whether the attempt is expired; at is updated in place.
func (s *Service) reconcile(ctx context.Context, at *Attempt, a Assessment) (bool, error) {
	now := s.now()
	if at.Status != StatusInProgress || !IsExpired(now, *at, a) {
		return false, nil
	}
	changed, err := s.store.MarkTimedOut(ctx, at.ID, now)
	if err != nil {
		return true, upstream(err)
	}
	at.Status = StatusTimedOut
	at.UpdatedAt = now
	if changed {
		log.Printf("attempt %s timed out (assessment %s, student %s)", at.ID, at.AssessmentID, at.StudentID)
		s.emit(ctx, syncx.TypeAttemptTimedOut, *at, nil)
	}
	return true, nil
}

func (s *Service) emit(ctx context.Context, typ string, at Attempt, outcome *Outcome) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(struct {
		Attempt Attempt  `json:"attempt"`
		Outcome *Outcome `json:"outcome,omitempty"`
	}{at, outcome})
	if err != nil {
		log.Printf("event %s %s: encode: %v", typ, at.ID, err)
		return
	}
	ev := syncx.Event{Type: typ, Key: at.ID, DataJSON: string(data), CreatedAt: s.now().UnixMilli()}
	if err := s.events.Append(ctx, ev); err != nil {
		log.Printf("event %s %s: %v", typ, at.ID, err)
	}
}
