package assessment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/password"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/scoring"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

var (
	student = rbac.Identity{Subject: "stu-1", Role: rbac.RoleStudent}
	teacher = rbac.Identity{Subject: "tch-1", Role: rbac.RoleTeacher}
	t0      = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingScorer struct {
	mu    sync.Mutex
	calls int
	res   scoring.Result
	err   error
}

func (s *countingScorer) Score(_ context.Context, _ string) (scoring.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.res, s.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []syncx.Event
}

func (r *recordingSink) Append(_ context.Context, e syncx.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *MemoryStore
	clock  *fakeClock
	scorer *countingScorer
	sink   *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  NewInMemoryStore(),
		clock:  &fakeClock{now: t0},
		scorer: &countingScorer{},
		sink:   &recordingSink{},
	}
	var n int
	var mu sync.Mutex
	ids := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	f.svc = NewService(f.store, f.scorer, WithClock(f.clock.Now), WithEvents(f.sink), WithIDs(ids))
	return f
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt(i int) *int              { return &i }

// seed creates a published assessment with n questions of two options each.
func (f *fixture) seed(t *testing.T, a Assessment, n int) (Assessment, []Question) {
	t.Helper()
	ctx := context.Background()
	a.ID = fmt.Sprintf("asmt-%d", len(f.store.assessments)+1)
	a.OwnerID = teacher.Subject
	a.Title = "Quiz"
	a.IsPublished = true
	a.CreatedAt = f.clock.Now()
	a.UpdatedAt = a.CreatedAt
	require.NoError(t, f.store.CreateAssessment(ctx, a))
	var qs []Question
	for i := 0; i < n; i++ {
		qid := fmt.Sprintf("%s-q%d", a.ID, i+1)
		q, err := f.store.CreateQuestion(ctx, Question{
			ID:           qid,
			AssessmentID: a.ID,
			Prompt:       fmt.Sprintf("question %d", i+1),
			Points:       1,
			Options: []Option{
				{ID: qid + "-a", Text: "A", Position: 1},
				{ID: qid + "-b", Text: "B", Position: 2},
			},
			CorrectOptionID: qid + "-a",
		})
		require.NoError(t, err)
		qs = append(qs, q)
	}
	return a, qs
}

func TestJoinResumesLiveAttempt(t *testing.T) {
	f := newFixture(t)
	a, _ := f.seed(t, Assessment{
		StartAt:         ptrTime(t0.Add(-time.Hour)),
		EndAt:           ptrTime(t0.Add(time.Hour)),
		DurationMinutes: ptrInt(30),
	}, 1)
	ctx := context.Background()

	first, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	f.clock.Advance(500 * time.Millisecond)
	second, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, StatusInProgress, second.Status)
	require.Equal(t, []string{syncx.TypeAttemptStarted}, f.sink.types())
}

func TestJoinConcurrentYieldsOneAttempt(t *testing.T) {
	f := newFixture(t)
	a, _ := f.seed(t, Assessment{}, 1)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at, err := f.svc.Join(ctx, student, a.ID, "")
			if err == nil {
				ids[i] = at.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	rows, err := f.store.ListAttempts(ctx, AttemptFilter{AssessmentID: a.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestJoinExpiryIsEarlierBound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.seed(t, Assessment{
		EndAt:           ptrTime(t0.Add(10 * time.Minute)),
		DurationMinutes: ptrInt(30),
	}, 1)
	at, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	require.NotNil(t, at.ExpiresAt)
	require.True(t, at.ExpiresAt.Equal(t0.Add(10*time.Minute)))

	b, _ := f.seed(t, Assessment{}, 1)
	open, err := f.svc.Join(ctx, student, b.ID, "")
	require.NoError(t, err)
	require.Nil(t, open.ExpiresAt)
}

func TestJoinWindowAndVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	early, _ := f.seed(t, Assessment{StartAt: ptrTime(t0.Add(time.Hour))}, 1)
	_, err := f.svc.Join(ctx, student, early.ID, "")
	require.ErrorIs(t, err, ErrInvalidWindow)
	require.ErrorIs(t, err, ErrBadRequest)

	late, _ := f.seed(t, Assessment{EndAt: ptrTime(t0.Add(-time.Minute))}, 1)
	_, err = f.svc.Join(ctx, student, late.ID, "")
	require.ErrorIs(t, err, ErrInvalidWindow)

	hidden, _ := f.seed(t, Assessment{}, 1)
	hidden.IsPublished = false
	require.NoError(t, f.store.UpdateAssessment(ctx, hidden))
	_, err = f.svc.Join(ctx, student, hidden.ID, "")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Join(ctx, student, "nope", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestJoinPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := password.Hash("s3cret")
	require.NoError(t, err)
	a, _ := f.seed(t, Assessment{PasswordHash: h}, 1)

	_, err = f.svc.Join(ctx, student, a.ID, "wrong")
	require.ErrorIs(t, err, ErrBadRequest)
	_, err = f.svc.Join(ctx, student, a.ID, "   ")
	require.ErrorIs(t, err, ErrBadRequest)

	rows, err := f.store.ListAttempts(ctx, AttemptFilter{AssessmentID: a.ID})
	require.NoError(t, err)
	require.Empty(t, rows)

	at, err := f.svc.Join(ctx, student, a.ID, "  s3cret ")
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, at.Status)
}

func TestIdentityGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.seed(t, Assessment{}, 1)

	_, err := f.svc.Join(ctx, rbac.Identity{}, a.ID, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Join(ctx, rbac.Identity{Subject: "x", Role: rbac.RoleInactive}, a.ID, "")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Join(ctx, teacher, a.ID, "")
	require.ErrorIs(t, err, ErrForbidden)

	rows, err := f.store.ListAttempts(ctx, AttemptFilter{})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestExpiredAttemptFlowsToTimedOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, qs := f.seed(t, Assessment{
		StartAt:         ptrTime(t0.Add(-time.Hour)),
		EndAt:           ptrTime(t0.Add(time.Hour)),
		DurationMinutes: ptrInt(1),
	}, 1)

	at, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, at.Status)
	require.True(t, at.ExpiresAt.Equal(t0.Add(time.Minute)))

	f.clock.Advance(61 * time.Second)
	err = f.svc.RecordResponse(ctx, student, at.ID, qs[0].ID, qs[0].Options[0].ID)
	require.ErrorIs(t, err, ErrExpired)

	stored, err := f.store.GetAttempt(ctx, at.ID)
	require.NoError(t, err)
	require.Equal(t, StatusTimedOut, stored.Status)

	_, err = f.svc.Submit(ctx, student, at.ID)
	require.ErrorIs(t, err, ErrNotInProgress)
	require.ErrorIs(t, err, ErrBadRequest)
	require.Zero(t, f.scorer.calls)
	require.Equal(t, []string{syncx.TypeAttemptStarted, syncx.TypeAttemptTimedOut}, f.sink.types())
}

func TestRejoinAfterTimeoutStartsFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.seed(t, Assessment{DurationMinutes: ptrInt(5)}, 1)

	first, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	f.clock.Advance(6 * time.Minute)

	second, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	old, err := f.store.GetAttempt(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusTimedOut, old.Status)
}

func TestRecordResponsesAndSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, qs := f.seed(t, Assessment{}, 3)
	score := 2.5
	f.scorer.res = scoring.Result{Correct: 2, Wrong: 1, Total: 3, Score: &score}

	at, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	require.Nil(t, at.ExpiresAt)

	for _, q := range qs {
		require.NoError(t, f.svc.RecordResponse(ctx, student, at.ID, q.ID, q.Options[0].ID))
	}
	require.NoError(t, f.svc.RecordResponse(ctx, student, at.ID, qs[2].ID, qs[2].Options[1].ID))

	rs, err := f.store.ListResponses(ctx, at.ID)
	require.NoError(t, err)
	require.Len(t, rs, 3)
	require.Equal(t, qs[2].Options[1].ID, rs[2].SelectedOptionID)

	out, err := f.svc.Submit(ctx, student, at.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.scorer.calls)
	require.Equal(t, 2.5, out.Score)

	stored, err := f.store.GetAttempt(ctx, at.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, stored.Status)
	require.Equal(t, 2.5, *stored.Score)
	require.NotNil(t, stored.SubmittedAt)

	_, err = f.svc.Submit(ctx, student, at.ID)
	require.ErrorIs(t, err, ErrBadRequest)
	again, err := f.store.GetAttempt(ctx, at.ID)
	require.NoError(t, err)
	require.Equal(t, 2.5, *again.Score)
	require.Equal(t, 1, f.scorer.calls)

	err = f.svc.RecordResponse(ctx, student, at.ID, qs[0].ID, qs[0].Options[1].ID)
	require.ErrorIs(t, err, ErrNotInProgress)
}

func TestSubmitFallsBackToCorrectCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.seed(t, Assessment{}, 2)
	f.scorer.res = scoring.Result{Correct: 1, Blank: 1, Total: 2}

	at, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	out, err := f.svc.Submit(ctx, student, at.ID)
	require.NoError(t, err)
	require.Equal(t, 1.0, out.Score)
}

func TestSubmitDelegateFailureLeavesAttemptOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.seed(t, Assessment{}, 1)
	f.scorer.err = errors.New("function score_attempt does not exist")

	at, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, student, at.ID)
	require.ErrorIs(t, err, ErrUpstream)
	require.Contains(t, err.Error(), "score_attempt does not exist")

	stored, err := f.store.GetAttempt(ctx, at.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, stored.Status)
}

func TestRecordResponseValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, qs := f.seed(t, Assessment{}, 1)
	_, other := f.seed(t, Assessment{}, 1)

	at, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)

	err = f.svc.RecordResponse(ctx, student, at.ID, "", qs[0].Options[0].ID)
	require.ErrorIs(t, err, ErrBadRequest)
	err = f.svc.RecordResponse(ctx, student, at.ID, other[0].ID, other[0].Options[0].ID)
	require.ErrorIs(t, err, ErrBadRequest)
	err = f.svc.RecordResponse(ctx, student, at.ID, qs[0].ID, other[0].Options[0].ID)
	require.ErrorIs(t, err, ErrBadRequest)

	intruder := rbac.Identity{Subject: "stu-2", Role: rbac.RoleStudent}
	err = f.svc.RecordResponse(ctx, intruder, at.ID, qs[0].ID, qs[0].Options[0].ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAttemptDetailHidesKeysAndReportsRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, qs := f.seed(t, Assessment{DurationMinutes: ptrInt(10)}, 2)

	at, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.RecordResponse(ctx, student, at.ID, qs[1].ID, qs[1].Options[1].ID))
	f.clock.Advance(4 * time.Minute)

	d, err := f.svc.AttemptDetail(ctx, student, at.ID)
	require.NoError(t, err)
	require.Len(t, d.Questions, 2)
	for _, q := range d.Questions {
		require.Empty(t, q.CorrectOptionID)
	}
	require.Len(t, d.Responses, 1)
	require.NotNil(t, d.RemainingSeconds)
	require.EqualValues(t, 6*60, *d.RemainingSeconds)

	_, err = f.svc.AttemptResult(ctx, student, at.ID)
	require.ErrorIs(t, err, ErrNotInProgress)

	f.clock.Advance(7 * time.Minute)
	d, err = f.svc.AttemptDetail(ctx, student, at.ID)
	require.NoError(t, err)
	require.Equal(t, StatusTimedOut, d.Attempt.Status)
	require.Nil(t, d.RemainingSeconds)

	res, err := f.svc.AttemptResult(ctx, student, at.ID)
	require.NoError(t, err)
	require.Equal(t, StatusTimedOut, res.Attempt.Status)
}

func TestStudentAssessments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	open, _ := f.seed(t, Assessment{}, 1)
	soon, _ := f.seed(t, Assessment{StartAt: ptrTime(t0.Add(time.Hour))}, 1)
	timed, _ := f.seed(t, Assessment{DurationMinutes: ptrInt(5)}, 1)

	first, err := f.svc.Join(ctx, student, open.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, student, first.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	again, err := f.svc.Join(ctx, student, open.ID, "")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, again.ID)

	stale, err := f.svc.Join(ctx, student, timed.ID, "")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)

	list, err := f.svc.StudentAssessments(ctx, student)
	require.NoError(t, err)
	require.Len(t, list, 3)
	byID := map[string]StudentAssessment{}
	for _, row := range list {
		byID[row.Assessment.ID] = row
	}

	// the open retake is not reported; the submitted attempt is
	require.Equal(t, WindowOpen, byID[open.ID].Window)
	require.Equal(t, first.ID, byID[open.ID].Completed.ID)
	require.Equal(t, StatusSubmitted, byID[open.ID].Completed.Status)

	require.Equal(t, stale.ID, byID[timed.ID].Completed.ID)
	require.Equal(t, StatusTimedOut, byID[timed.ID].Completed.Status)

	require.Equal(t, WindowUpcoming, byID[soon.ID].Window)
	require.Nil(t, byID[soon.ID].Completed)
	require.Nil(t, byID[soon.ID].Feedback)
}

func TestStudentAssessmentsPicksLatestCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.seed(t, Assessment{}, 1)

	first, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, student, first.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, student, second.ID)
	require.NoError(t, err)

	_, err = f.svc.SetFeedback(ctx, teacher, a.ID, second.ID, "better")
	require.NoError(t, err)

	list, err := f.svc.StudentAssessments(ctx, student)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, second.ID, list[0].Completed.ID)
	require.Equal(t, "better", list[0].Feedback.Message)
}

func TestCustomCheckerGatesOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.seed(t, Assessment{}, 1)

	noJoin := rbac.NewChecker(map[rbac.Role][]string{rbac.RoleStudent: {"assessment:list-published"}})
	svc := NewService(f.store, f.scorer, WithClock(f.clock.Now), WithChecker(noJoin))

	_, err := svc.Join(ctx, student, a.ID, "")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.StudentAssessments(ctx, student)
	require.NoError(t, err)
}
