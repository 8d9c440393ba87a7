package assessment

import (
	"context"
	"log"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/password"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// AssessmentDetail is the owning teacher's view, answer keys included.
type AssessmentDetail struct {
	Assessment Assessment `json:"assessment"`
	Questions  []Question `json:"questions"`
}

// ReviewItem pairs a question with the student's pick.
type ReviewItem struct {
	Question         Question `json:"question"`
	SelectedOptionID string   `json:"selected_option_id,omitempty"`
	Correct          bool     `json:"correct"`
}

type AttemptReview struct {
	Attempt  Attempt      `json:"attempt"`
	Items    []ReviewItem `json:"items"`
	Feedback *Feedback    `json:"feedback,omitempty"`
}

func (s *Service) CreateAssessment(ctx context.Context, c rbac.Identity, in NewAssessment) (Assessment, error) {
	if err := s.gate(c, "assessment:create"); err != nil {
		return Assessment{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Assessment{}, newErr(KindBadRequest, "title required")
	}
	now := s.now()
	a := Assessment{
		ID:              s.newID(),
		OwnerID:         c.Subject,
		Title:           title,
		Description:     in.Description,
		SubjectName:     strings.TrimSpace(in.SubjectName),
		StartAt:         in.StartAt,
		EndAt:           in.EndAt,
		DurationMinutes: in.DurationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := checkSchedule(a); err != nil {
		return Assessment{}, err
	}
	if pw := strings.TrimSpace(in.Password); pw != "" {
		h, err := password.Hash(pw)
		if err != nil {
			return Assessment{}, upstream(err)
		}
		a.PasswordHash = h
	}
	if err := s.store.CreateAssessment(ctx, a); err != nil {
		return Assessment{}, upstream(err)
	}
	a.HasPassword = a.PasswordHash != ""
	log.Printf("assessment %s created by %s", a.ID, c.Subject)
	return a, nil
}

// UpdateAssessment applies only the members present in p.
func (s *Service) UpdateAssessment(ctx context.Context, c rbac.Identity, id string, p AssessmentPatch) (Assessment, error) {
	if err := s.gate(c, "assessment:update"); err != nil {
		return Assessment{}, err
	}
	a, err := s.ownedAssessment(ctx, c, id)
	if err != nil {
		return Assessment{}, err
	}
	if p.Title.Set {
		t := strings.TrimSpace(p.Title.Value())
		if t == "" {
			return Assessment{}, newErr(KindBadRequest, "title required")
		}
		a.Title = t
	}
	if p.Description.Set {
		a.Description = p.Description.Value()
	}
	if p.SubjectName.Set {
		a.SubjectName = strings.TrimSpace(p.SubjectName.Value())
	}
	if p.StartAt.Set {
		a.StartAt = p.StartAt.Val
	}
	if p.EndAt.Set {
		a.EndAt = p.EndAt.Val
	}
	if p.DurationMinutes.Set {
		a.DurationMinutes = p.DurationMinutes.Val
	}
	if p.IsPublished.Set {
		a.IsPublished = p.IsPublished.Value()
	}
	switch {
	case p.ClearPassword:
		a.PasswordHash = ""
	case p.Password.Set:
		pw := strings.TrimSpace(p.Password.Value())
		if pw == "" {
			a.PasswordHash = ""
			break
		}
		h, err := password.Hash(pw)
		if err != nil {
			return Assessment{}, upstream(err)
		}
		a.PasswordHash = h
	}
	if err := checkSchedule(a); err != nil {
		return Assessment{}, err
	}
	a.UpdatedAt = s.now()
	if err := s.store.UpdateAssessment(ctx, a); err != nil {
		return Assessment{}, notFound(err, "assessment not found")
	}
	a.HasPassword = a.PasswordHash != ""
	return a, nil
}

func checkSchedule(a Assessment) error {
	if a.StartAt != nil && a.EndAt != nil && !a.EndAt.After(*a.StartAt) {
		return newErr(KindBadRequest, "end_at must be after start_at")
	}
	if a.DurationMinutes != nil && *a.DurationMinutes < 0 {
		return newErr(KindBadRequest, "duration_minutes must not be negative")
	}
	return nil
}

func (s *Service) DeleteAssessment(ctx context.Context, c rbac.Identity, id string) error {
	if err := s.gate(c, "assessment:delete"); err != nil {
		return err
	}
	if _, err := s.ownedAssessment(ctx, c, id); err != nil {
		return err
	}
	if err := s.store.DeleteAssessment(ctx, id, c.Subject); err != nil {
		return notFound(err, "assessment not found")
	}
	log.Printf("assessment %s deleted by %s", id, c.Subject)
	return nil
}

// ListOwned unpublishes the caller's ended assessments, then lists them.
func (s *Service) ListOwned(ctx context.Context, c rbac.Identity) ([]Assessment, error) {
	if err := s.gate(c, "assessment:list"); err != nil {
		return nil, err
	}
	n, err := s.store.UnpublishEnded(ctx, c.Subject, s.now())
	if err != nil {
		return nil, upstream(err)
	}
	if n > 0 {
		log.Printf("unpublished %d ended assessment(s) for %s", n, c.Subject)
	}
	list, err := s.store.ListAssessmentsByOwner(ctx, c.Subject)
	if err != nil {
		return nil, upstream(err)
	}
	return list, nil
}

// UnpublishEnded sweeps every owner. Used by the admin CLI.
func (s *Service) UnpublishEnded(ctx context.Context) (int, error) {
	n, err := s.store.UnpublishEnded(ctx, "", s.now())
	if err != nil {
		return 0, upstream(err)
	}
	return n, nil
}

func (s *Service) GetOwned(ctx context.Context, c rbac.Identity, id string) (AssessmentDetail, error) {
	if err := s.gate(c, "assessment:read"); err != nil {
		return AssessmentDetail{}, err
	}
	a, err := s.ownedAssessment(ctx, c, id)
	if err != nil {
		return AssessmentDetail{}, err
	}
	qs, err := s.store.ListQuestions(ctx, a.ID, true)
	if err != nil {
		return AssessmentDetail{}, upstream(err)
	}
	return AssessmentDetail{Assessment: a, Questions: qs}, nil
}

func (s *Service) CreateQuestion(ctx context.Context, c rbac.Identity, assessmentID string, in QuestionInput) (Question, error) {
	if err := s.gate(c, "question:create"); err != nil {
		return Question{}, err
	}
	if _, err := s.ownedAssessment(ctx, c, assessmentID); err != nil {
		return Question{}, err
	}
	q := Question{ID: s.newID(), AssessmentID: assessmentID, Position: in.Position}
	if err := s.fillQuestion(&q, in, nil); err != nil {
		return Question{}, err
	}
	if in.CorrectIndex == nil {
		return Question{}, newErr(KindBadRequest, "correct_index required")
	}
	created, err := s.store.CreateQuestion(ctx, q)
	if err != nil {
		return Question{}, upstream(err)
	}
	return created, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, c rbac.Identity, assessmentID, questionID string, in QuestionInput) (Question, error) {
	if err := s.gate(c, "question:update"); err != nil {
		return Question{}, err
	}
	if _, err := s.ownedAssessment(ctx, c, assessmentID); err != nil {
		return Question{}, err
	}
	cur, err := s.store.GetQuestion(ctx, assessmentID, questionID)
	if err != nil {
		return Question{}, notFound(err, "question not found")
	}
	q := Question{ID: cur.ID, AssessmentID: assessmentID, Position: cur.Position}
	if in.Position > 0 {
		q.Position = in.Position
	}
	if err := s.fillQuestion(&q, in, cur.Options); err != nil {
		return Question{}, err
	}
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return Question{}, notFound(err, "question not found")
	}
	return q, nil
}

// fillQuestion copies in onto q, assigning ids to new options and resolving the key.
// existing holds the question's current options; ids outside it are rejected.
func (s *Service) fillQuestion(q *Question, in QuestionInput, existing []Option) error {
	q.Prompt = strings.TrimSpace(in.Prompt)
	if q.Prompt == "" {
		return newErr(KindBadRequest, "prompt required")
	}
	q.Points = 1
	if in.Points != nil {
		if *in.Points < 0 {
			return newErr(KindBadRequest, "points must not be negative")
		}
		q.Points = *in.Points
	}
	if len(in.Options) < 2 {
		return newErr(KindBadRequest, "at least 2 options required")
	}
	known := map[string]bool{}
	for _, o := range existing {
		known[o.ID] = true
	}
	seen := map[string]bool{}
	q.Options = make([]Option, 0, len(in.Options))
	for i, o := range in.Options {
		text := strings.TrimSpace(o.Text)
		if text == "" {
			return newErr(KindBadRequest, "option %d: text required", i)
		}
		id := o.ID
		if id == "" {
			id = s.newID()
		} else if !known[id] || seen[id] {
			return newErr(KindBadRequest, "option %s does not belong to question", id)
		}
		seen[id] = true
		q.Options = append(q.Options, Option{ID: id, QuestionID: q.ID, Text: text, Position: i + 1})
	}

	switch {
	case in.CorrectIndex != nil:
		i := *in.CorrectIndex
		if i < 0 || i >= len(q.Options) {
			return newErr(KindBadRequest, "correct_index out of range")
		}
		q.CorrectOptionID = q.Options[i].ID
	case in.CorrectOptionID != "":
		if !seen[in.CorrectOptionID] {
			return newErr(KindBadRequest, "correct_option_id not among options")
		}
		q.CorrectOptionID = in.CorrectOptionID
	case existing != nil:
		return newErr(KindBadRequest, "correct_option_id or correct_index required")
	}
	return nil
}

func (s *Service) DeleteQuestion(ctx context.Context, c rbac.Identity, assessmentID, questionID string) error {
	if err := s.gate(c, "question:delete"); err != nil {
		return err
	}
	if _, err := s.ownedAssessment(ctx, c, assessmentID); err != nil {
		return err
	}
	if err := s.store.DeleteQuestion(ctx, assessmentID, questionID); err != nil {
		return notFound(err, "question not found")
	}
	return nil
}

// Results lists every attempt on the assessment, best score first.
// Stale IN_PROGRESS attempts are timed out on the way.
func (s *Service) Results(ctx context.Context, c rbac.Identity, assessmentID string) ([]AttemptRow, error) {
	if err := s.gate(c, "attempt:view-all"); err != nil {
		return nil, err
	}
	a, err := s.ownedAssessment(ctx, c, assessmentID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListAttempts(ctx, AttemptFilter{AssessmentID: a.ID})
	if err != nil {
		return nil, upstream(err)
	}
	for i := range rows {
		if _, err := s.reconcile(ctx, &rows[i].Attempt, a); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// ReviewAttempt shows a student's attempt against the key.
func (s *Service) ReviewAttempt(ctx context.Context, c rbac.Identity, assessmentID, attemptID string) (AttemptReview, error) {
	if err := s.gate(c, "attempt:view-all"); err != nil {
		return AttemptReview{}, err
	}
	at, a, err := s.attemptOnOwned(ctx, c, assessmentID, attemptID)
	if err != nil {
		return AttemptReview{}, err
	}
	qs, err := s.store.ListQuestions(ctx, a.ID, true)
	if err != nil {
		return AttemptReview{}, upstream(err)
	}
	rs, err := s.store.ListResponses(ctx, at.ID)
	if err != nil {
		return AttemptReview{}, upstream(err)
	}
	picked := make(map[string]string, len(rs))
	for _, r := range rs {
		picked[r.QuestionID] = r.SelectedOptionID
	}
	items := make([]ReviewItem, 0, len(qs))
	for _, q := range qs {
		sel := picked[q.ID]
		items = append(items, ReviewItem{
			Question:         q,
			SelectedOptionID: sel,
			Correct:          sel != "" && sel == q.CorrectOptionID,
		})
	}
	fb, err := s.feedbackFor(ctx, at.ID)
	if err != nil {
		return AttemptReview{}, err
	}
	return AttemptReview{Attempt: at, Items: items, Feedback: fb}, nil
}

// attemptOnOwned loads an attempt on an assessment the teacher owns, timing
// it out if it is past its deadline.
func (s *Service) attemptOnOwned(ctx context.Context, c rbac.Identity, assessmentID, attemptID string) (Attempt, Assessment, error) {
	a, err := s.ownedAssessment(ctx, c, assessmentID)
	if err != nil {
		return Attempt{}, Assessment{}, err
	}
	at, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, Assessment{}, notFound(err, "attempt not found")
	}
	if at.AssessmentID != a.ID {
		return Attempt{}, Assessment{}, newErr(KindNotFound, "attempt not found")
	}
	if _, err := s.reconcile(ctx, &at, a); err != nil {
		return Attempt{}, Assessment{}, err
	}
	return at, a, nil
}

// SetFeedback leaves or replaces the teacher's note on a finished attempt.
func (s *Service) SetFeedback(ctx context.Context, c rbac.Identity, assessmentID, attemptID, message string) (Feedback, error) {
	if err := s.gate(c, "attempt:feedback"); err != nil {
		return Feedback{}, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return Feedback{}, newErr(KindBadRequest, "message required")
	}
	at, _, err := s.attemptOnOwned(ctx, c, assessmentID, attemptID)
	if err != nil {
		return Feedback{}, err
	}
	if !at.Status.Finished() {
		return Feedback{}, newErr(KindNotInProgress, "attempt not finished")
	}
	f := Feedback{AttemptID: at.ID, Message: message, UpdatedAt: s.now()}
	if err := s.store.UpsertFeedback(ctx, f); err != nil {
		return Feedback{}, upstream(err)
	}
	log.Printf("feedback on attempt %s by %s", at.ID, c.Subject)
	return f, nil
}
