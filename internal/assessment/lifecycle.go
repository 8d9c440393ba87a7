package assessment

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/password"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// Outcome is what a submission reports back to the student.
type Outcome struct {
	Score   float64 `json:"score"`
	Correct int     `json:"correct"`
	Wrong   int     `json:"wrong"`
	Blank   int     `json:"blank"`
	Total   int     `json:"total"`
}

// AttemptDetail is the student's view of an attempt in progress or finished.
type AttemptDetail struct {
	Attempt    Attempt    `json:"attempt"`
	Assessment Assessment `json:"assessment"`
	Questions  []Question `json:"questions"`
	Responses  []Response `json:"responses"`
	// RemainingSeconds is nil when the attempt has no deadline.
	RemainingSeconds *int64    `json:"remaining_seconds"`
	Feedback         *Feedback `json:"feedback,omitempty"`
}

// StudentAssessment is one row of the student's assessment list.
type StudentAssessment struct {
	Assessment Assessment  `json:"assessment"`
	Window     WindowState `json:"window"`
	// Completed is the latest SUBMITTED or TIMED_OUT attempt, if any.
	Completed *Attempt  `json:"completed_attempt,omitempty"`
	Feedback  *Feedback `json:"feedback,omitempty"`
}

// Join resumes the student's live attempt or starts a new one.
func (s *Service) Join(ctx context.Context, c rbac.Identity, assessmentID, pass string) (Attempt, error) {
	if err := s.gate(c, "attempt:join"); err != nil {
		return Attempt{}, err
	}
	if assessmentID == "" {
		return Attempt{}, newErr(KindBadRequest, "missing assessment id")
	}
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return Attempt{}, notFound(err, "assessment not found")
	}
	if !a.IsPublished {
		return Attempt{}, newErr(KindNotFound, "assessment not found")
	}

	now := s.now()
	switch Window(now, a) {
	case WindowUpcoming:
		return Attempt{}, newErr(KindInvalidWindow, "assessment has not started")
	case WindowEnded:
		return Attempt{}, newErr(KindInvalidWindow, "assessment has ended")
	}

	if a.PasswordHash != "" {
		pass = strings.TrimSpace(pass)
		if pass == "" {
			return Attempt{}, newErr(KindBadRequest, "password required")
		}
		if !password.Verify(pass, a.PasswordHash) {
			return Attempt{}, newErr(KindBadRequest, "wrong password")
		}
	}

	existing, err := s.store.LatestInProgressAttempt(ctx, a.ID, c.Subject)
	switch {
	case err == nil:
		expired, rerr := s.reconcile(ctx, &existing, a)
		if rerr != nil {
			return Attempt{}, rerr
		}
		if !expired {
			return existing, nil
		}
	case !errors.Is(err, errRowNotFound):
		return Attempt{}, upstream(err)
	}

	at := Attempt{
		ID:           s.newID(),
		AssessmentID: a.ID,
		StudentID:    c.Subject,
		Status:       StatusInProgress,
		StartedAt:    now,
		ExpiresAt:    ComputeExpiry(now, a),
		UpdatedAt:    now,
	}
	if err := s.store.CreateAttempt(ctx, at); err != nil {
		if !errors.Is(err, errActiveAttemptTaken) {
			return Attempt{}, upstream(err)
		}
		// a concurrent join won the insert; resume that attempt
		winner, gerr := s.store.LatestInProgressAttempt(ctx, a.ID, c.Subject)
		if gerr != nil {
			return Attempt{}, newErr(KindConflict, "attempt already in progress")
		}
		return winner, nil
	}
	s.emit(ctx, syncx.TypeAttemptStarted, at, nil)
	return at, nil
}

// RecordResponse upserts the selected option for one question.
func (s *Service) RecordResponse(ctx context.Context, c rbac.Identity, attemptID, questionID, optionID string) error {
	if err := s.gate(c, "attempt:respond"); err != nil {
		return err
	}
	if questionID == "" || optionID == "" {
		return newErr(KindBadRequest, "question_id and selected_option_id required")
	}
	at, a, err := s.ownedAttempt(ctx, c, attemptID)
	if err != nil {
		return err
	}
	expired, err := s.reconcile(ctx, &at, a)
	if err != nil {
		return err
	}
	if expired {
		return newErr(KindExpired, "attempt time is up")
	}
	if at.Status != StatusInProgress {
		return newErr(KindNotInProgress, "attempt not in progress")
	}

	q, err := s.store.GetQuestion(ctx, a.ID, questionID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return newErr(KindBadRequest, "question not in assessment")
		}
		return upstream(err)
	}
	if !hasOption(q, optionID) {
		return newErr(KindBadRequest, "option not in question")
	}

	if err := s.store.UpsertResponse(ctx, Response{
		AttemptID:        at.ID,
		QuestionID:       q.ID,
		SelectedOptionID: optionID,
		UpdatedAt:        s.now(),
	}); err != nil {
		return upstream(err)
	}
	return nil
}

// Submit scores and finalizes the attempt. Late submissions are rejected.
func (s *Service) Submit(ctx context.Context, c rbac.Identity, attemptID string) (Outcome, error) {
	if err := s.gate(c, "attempt:submit"); err != nil {
		return Outcome{}, err
	}
	at, a, err := s.ownedAttempt(ctx, c, attemptID)
	if err != nil {
		return Outcome{}, err
	}
	if at.Status != StatusInProgress {
		return Outcome{}, newErr(KindNotInProgress, "attempt not in progress")
	}
	expired, err := s.reconcile(ctx, &at, a)
	if err != nil {
		return Outcome{}, err
	}
	if expired {
		return Outcome{}, newErr(KindExpired, "attempt time is up")
	}

	res, err := s.scorer.Score(ctx, at.ID)
	if err != nil {
		return Outcome{}, upstream(err)
	}
	out := Outcome{Score: res.Final(), Correct: res.Correct, Wrong: res.Wrong, Blank: res.Blank, Total: res.Total}

	now := s.now()
	if err := s.store.MarkSubmitted(ctx, at.ID, out, now); err != nil {
		if errors.Is(err, errStateChanged) {
			return Outcome{}, newErr(KindNotInProgress, "attempt not in progress")
		}
		return Outcome{}, upstream(err)
	}
	at.Status = StatusSubmitted
	at.SubmittedAt = &now
	at.Score = &out.Score
	at.Correct, at.Wrong, at.Blank, at.Total = out.Correct, out.Wrong, out.Blank, out.Total
	at.UpdatedAt = now
	log.Printf("attempt %s submitted: score=%.2f correct=%d/%d", at.ID, out.Score, out.Correct, out.Total)
	s.emit(ctx, syncx.TypeAttemptSubmitted, at, &out)
	return out, nil
}

// AttemptDetail returns the attempt with its questions and saved responses.
// An attempt found past its deadline is marked TIMED_OUT and still returned.
func (s *Service) AttemptDetail(ctx context.Context, c rbac.Identity, attemptID string) (AttemptDetail, error) {
	if err := s.gate(c, "attempt:view-own"); err != nil {
		return AttemptDetail{}, err
	}
	at, a, err := s.ownedAttempt(ctx, c, attemptID)
	if err != nil {
		return AttemptDetail{}, err
	}
	if _, err := s.reconcile(ctx, &at, a); err != nil {
		return AttemptDetail{}, err
	}
	qs, err := s.store.ListQuestions(ctx, a.ID, false)
	if err != nil {
		return AttemptDetail{}, upstream(err)
	}
	rs, err := s.store.ListResponses(ctx, at.ID)
	if err != nil {
		return AttemptDetail{}, upstream(err)
	}
	d := AttemptDetail{Attempt: at, Assessment: a, Questions: qs, Responses: rs}
	if at.Status == StatusInProgress {
		if left, ok := Remaining(s.now(), at, a); ok {
			secs := int64(left / time.Second)
			d.RemainingSeconds = &secs
		}
	}
	return d, nil
}

// AttemptResult is AttemptDetail for a finished attempt, with the teacher's feedback.
func (s *Service) AttemptResult(ctx context.Context, c rbac.Identity, attemptID string) (AttemptDetail, error) {
	d, err := s.AttemptDetail(ctx, c, attemptID)
	if err != nil {
		return AttemptDetail{}, err
	}
	if !d.Attempt.Status.Finished() {
		return AttemptDetail{}, newErr(KindNotInProgress, "attempt not finished")
	}
	if d.Feedback, err = s.feedbackFor(ctx, d.Attempt.ID); err != nil {
		return AttemptDetail{}, err
	}
	return d, nil
}

func (s *Service) feedbackFor(ctx context.Context, attemptID string) (*Feedback, error) {
	f, err := s.store.GetFeedback(ctx, attemptID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return nil, nil
		}
		return nil, upstream(err)
	}
	return &f, nil
}

// StudentAssessments lists published assessments with the caller's latest
// completed attempt on each and the feedback left on it. Expired IN_PROGRESS
// attempts are timed out first so they count as completed.
func (s *Service) StudentAssessments(ctx context.Context, c rbac.Identity) ([]StudentAssessment, error) {
	if err := s.gate(c, "assessment:list-published"); err != nil {
		return nil, err
	}
	list, err := s.store.ListPublishedAssessments(ctx)
	if err != nil {
		return nil, upstream(err)
	}
	mine, err := s.store.ListAttempts(ctx, AttemptFilter{StudentID: c.Subject})
	if err != nil {
		return nil, upstream(err)
	}
	byID := make(map[string]Assessment, len(list))
	for _, a := range list {
		byID[a.ID] = a
	}
	completed := map[string]Attempt{}
	for _, r := range mine {
		at := r.Attempt
		a, ok := byID[at.AssessmentID]
		if !ok {
			continue
		}
		if _, err := s.reconcile(ctx, &at, a); err != nil {
			return nil, err
		}
		if !at.Status.Finished() {
			continue
		}
		if cur, ok := completed[a.ID]; !ok || at.UpdatedAt.After(cur.UpdatedAt) {
			completed[a.ID] = at
		}
	}
	now := s.now()
	out := make([]StudentAssessment, 0, len(list))
	for _, a := range list {
		row := StudentAssessment{Assessment: a, Window: Window(now, a)}
		if at, ok := completed[a.ID]; ok {
			row.Completed = &at
			if row.Feedback, err = s.feedbackFor(ctx, at.ID); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func hasOption(q Question, optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}
