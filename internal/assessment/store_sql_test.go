package assessment

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	database "github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/scoring"
)

func openSQLStore(t *testing.T) (*SQLStore, *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dsn := fmt.Sprintf("file:store-%d?mode=memory&cache=shared", time.Now().UnixNano())
	h, err := database.Open(ctx, database.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return NewSQLStore(h), h
}

func sqlFixture(t *testing.T) (*Service, *SQLStore, *sql.DB, *fakeClock) {
	t.Helper()
	st, h := openSQLStore(t)
	clock := &fakeClock{now: t0}
	svc := NewService(st, scoring.NewSQLDelegate(h), WithClock(clock.Now))
	return svc, st, h, clock
}

func TestSQLStoreFullLifecycle(t *testing.T) {
	svc, st, h, clock := sqlFixture(t)
	ctx := context.Background()

	_, err := h.ExecContext(ctx, `INSERT INTO users (id,email,password_hash,name,role,is_active,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`, student.Subject, "ada@example.com", "x", "Ada", "STUDENT", true, t0.UnixMilli())
	require.NoError(t, err)

	a, err := svc.CreateAssessment(ctx, teacher, NewAssessment{Title: "Chem", DurationMinutes: ptrInt(30)})
	require.NoError(t, err)
	_, err = svc.UpdateAssessment(ctx, teacher, a.ID, AssessmentPatch{IsPublished: Some(true)})
	require.NoError(t, err)

	var qs []Question
	for i := 0; i < 3; i++ {
		q, err := svc.CreateQuestion(ctx, teacher, a.ID, QuestionInput{
			Prompt:       fmt.Sprintf("q%d", i),
			Points:       func() *float64 { p := 2.0; return &p }(),
			Options:      []OptionInput{{Text: "right"}, {Text: "wrong"}},
			CorrectIndex: ptrInt(0),
		})
		require.NoError(t, err)
		require.Equal(t, i+1, q.Position)
		qs = append(qs, q)
	}

	at, err := svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	require.True(t, at.ExpiresAt.Equal(t0.Add(30*time.Minute)))

	again, err := svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	require.Equal(t, at.ID, again.ID)

	require.NoError(t, svc.RecordResponse(ctx, student, at.ID, qs[0].ID, qs[0].Options[0].ID))
	require.NoError(t, svc.RecordResponse(ctx, student, at.ID, qs[1].ID, qs[1].Options[0].ID))
	require.NoError(t, svc.RecordResponse(ctx, student, at.ID, qs[1].ID, qs[1].Options[1].ID))

	clock.Advance(10 * time.Minute)
	out, err := svc.Submit(ctx, student, at.ID)
	require.NoError(t, err)
	require.Equal(t, Outcome{Score: 2, Correct: 1, Wrong: 1, Blank: 1, Total: 3}, out)

	rows, err := st.ListAttempts(ctx, AttemptFilter{AssessmentID: a.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Ada", rows[0].StudentName)
	require.Equal(t, StatusSubmitted, rows[0].Status)
	require.Equal(t, 2.0, *rows[0].Score)
	require.Equal(t, []int{1, 1, 1, 3}, []int{rows[0].Correct, rows[0].Wrong, rows[0].Blank, rows[0].Total})

	_, err = svc.Submit(ctx, student, at.ID)
	require.ErrorIs(t, err, ErrNotInProgress)

	_, err = svc.SetFeedback(ctx, teacher, a.ID, at.ID, "check q2")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.SetFeedback(ctx, teacher, a.ID, at.ID, "well done")
	require.NoError(t, err)
	res, err := svc.AttemptResult(ctx, student, at.ID)
	require.NoError(t, err)
	require.Equal(t, "well done", res.Feedback.Message)
	require.True(t, res.Feedback.UpdatedAt.Equal(t0.Add(11*time.Minute)))
}

func TestSQLStoreActiveAttemptUnique(t *testing.T) {
	svc, st, _, _ := sqlFixture(t)
	ctx := context.Background()
	a, err := svc.CreateAssessment(ctx, teacher, NewAssessment{Title: "Race"})
	require.NoError(t, err)
	_, err = svc.UpdateAssessment(ctx, teacher, a.ID, AssessmentPatch{IsPublished: Some(true)})
	require.NoError(t, err)

	first := Attempt{ID: "a1", AssessmentID: a.ID, StudentID: student.Subject, Status: StatusInProgress, StartedAt: t0, UpdatedAt: t0}
	require.NoError(t, st.CreateAttempt(ctx, first))
	dup := first
	dup.ID = "a2"
	require.ErrorIs(t, st.CreateAttempt(ctx, dup), errActiveAttemptTaken)

	const n = 6
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at, err := svc.Join(ctx, rbac.Identity{Subject: "racer", Role: rbac.RoleStudent}, a.ID, "")
			if err == nil {
				ids[i] = at.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}

func TestSQLStoreUpdateQuestionPrunesResponses(t *testing.T) {
	svc, st, _, _ := sqlFixture(t)
	ctx := context.Background()
	a, err := svc.CreateAssessment(ctx, teacher, NewAssessment{Title: "Edit"})
	require.NoError(t, err)
	_, err = svc.UpdateAssessment(ctx, teacher, a.ID, AssessmentPatch{IsPublished: Some(true)})
	require.NoError(t, err)
	q, err := svc.CreateQuestion(ctx, teacher, a.ID, QuestionInput{
		Prompt:       "pick",
		Options:      []OptionInput{{Text: "a"}, {Text: "b"}, {Text: "c"}},
		CorrectIndex: ptrInt(2),
	})
	require.NoError(t, err)

	at, err := svc.Join(ctx, student, a.ID, "")
	require.NoError(t, err)
	require.NoError(t, svc.RecordResponse(ctx, student, at.ID, q.ID, q.Options[2].ID))

	// drop "c" and point the key at "a"
	_, err = svc.UpdateQuestion(ctx, teacher, a.ID, q.ID, QuestionInput{
		Prompt:       "pick again",
		Options:      []OptionInput{{ID: q.Options[0].ID, Text: "a"}, {ID: q.Options[1].ID, Text: "b!"}},
		CorrectIndex: ptrInt(0),
	})
	require.NoError(t, err)

	got, err := st.GetQuestion(ctx, a.ID, q.ID)
	require.NoError(t, err)
	require.Len(t, got.Options, 2)
	require.Equal(t, "b!", got.Options[1].Text)
	require.Equal(t, q.Options[0].ID, got.CorrectOptionID)

	rs, err := st.ListResponses(ctx, at.ID)
	require.NoError(t, err)
	require.Empty(t, rs)
}

func TestSQLStoreUnpublishAndDelete(t *testing.T) {
	svc, st, _, clock := sqlFixture(t)
	ctx := context.Background()
	a, err := svc.CreateAssessment(ctx, teacher, NewAssessment{Title: "Old", EndAt: ptrTime(t0.Add(time.Hour))})
	require.NoError(t, err)
	_, err = svc.UpdateAssessment(ctx, teacher, a.ID, AssessmentPatch{IsPublished: Some(true)})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	n, err := svc.UnpublishEnded(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	got, err := st.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, got.IsPublished)

	require.NoError(t, svc.DeleteAssessment(ctx, teacher, a.ID))
	_, err = st.GetAssessment(ctx, a.ID)
	require.ErrorIs(t, err, errRowNotFound)
}
