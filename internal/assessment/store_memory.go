package assessment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps everything in maps. It enforces the same single active
// attempt rule as the SQL schema and is used by tests and offline demos.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string]Assessment
	questions   map[string]Question // answer keys included
	attempts    map[string]Attempt
	responses   map[string]map[string]Response // attemptID -> questionID -> response
	students    map[string][2]string           // studentID -> name, email
	feedback    map[string]Feedback            // attemptID -> feedback
}

func NewInMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: map[string]Assessment{},
		questions:   map[string]Question{},
		attempts:    map[string]Attempt{},
		responses:   map[string]map[string]Response{},
		students:    map[string][2]string{},
		feedback:    map[string]Feedback{},
	}
}

// PutStudent records display data used by ListAttempts.
func (m *MemoryStore) PutStudent(id, name, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[id] = [2]string{name, email}
}

func (m *MemoryStore) CreateAssessment(_ context.Context, a Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assessments[a.ID]; ok {
		return fmt.Errorf("assessment %s exists", a.ID)
	}
	a.HasPassword = a.PasswordHash != ""
	m.assessments[a.ID] = a
	return nil
}

func (m *MemoryStore) UpdateAssessment(_ context.Context, a Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.assessments[a.ID]
	if !ok || cur.OwnerID != a.OwnerID {
		return fmt.Errorf("assessment: %w", errRowNotFound)
	}
	a.CreatedAt = cur.CreatedAt
	a.HasPassword = a.PasswordHash != ""
	m.assessments[a.ID] = a
	return nil
}

func (m *MemoryStore) DeleteAssessment(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.assessments[id]
	if !ok || cur.OwnerID != ownerID {
		return fmt.Errorf("assessment: %w", errRowNotFound)
	}
	delete(m.assessments, id)
	for qid, q := range m.questions {
		if q.AssessmentID == id {
			delete(m.questions, qid)
		}
	}
	for aid, at := range m.attempts {
		if at.AssessmentID == id {
			delete(m.attempts, aid)
			delete(m.responses, aid)
			delete(m.feedback, aid)
		}
	}
	return nil
}

func (m *MemoryStore) GetAssessment(_ context.Context, id string) (Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assessments[id]
	if !ok {
		return Assessment{}, fmt.Errorf("assessment %s: %w", id, errRowNotFound)
	}
	return a, nil
}

func (m *MemoryStore) ListAssessmentsByOwner(_ context.Context, ownerID string) ([]Assessment, error) {
	return m.filterAssessments(func(a Assessment) bool { return a.OwnerID == ownerID }), nil
}

func (m *MemoryStore) ListPublishedAssessments(_ context.Context) ([]Assessment, error) {
	return m.filterAssessments(func(a Assessment) bool { return a.IsPublished }), nil
}

func (m *MemoryStore) filterAssessments(keep func(Assessment) bool) []Assessment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Assessment{}
	for _, a := range m.assessments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) UnpublishEnded(_ context.Context, ownerID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, a := range m.assessments {
		if !a.IsPublished || a.EndAt == nil || !a.EndAt.Before(now) {
			continue
		}
		if ownerID != "" && a.OwnerID != ownerID {
			continue
		}
		a.IsPublished = false
		a.UpdatedAt = now
		m.assessments[id] = a
		n++
	}
	return n, nil
}

// ---- questions ----

func (m *MemoryStore) ListQuestions(_ context.Context, assessmentID string, withKeys bool) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Question{}
	for _, q := range m.questions {
		if q.AssessmentID != assessmentID {
			continue
		}
		q.Options = append([]Option(nil), q.Options...)
		if !withKeys {
			q.CorrectOptionID = ""
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetQuestion(_ context.Context, assessmentID, questionID string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[questionID]
	if !ok || q.AssessmentID != assessmentID {
		return Question{}, fmt.Errorf("question %s: %w", questionID, errRowNotFound)
	}
	q.Options = append([]Option(nil), q.Options...)
	return q, nil
}

func (m *MemoryStore) CreateQuestion(_ context.Context, q Question) (Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.Position <= 0 {
		last := 0
		for _, other := range m.questions {
			if other.AssessmentID == q.AssessmentID && other.Position > last {
				last = other.Position
			}
		}
		q.Position = last + 1
	}
	for i := range q.Options {
		q.Options[i].QuestionID = q.ID
	}
	sortOptions(q.Options)
	m.questions[q.ID] = q
	return q, nil
}

func (m *MemoryStore) UpdateQuestion(_ context.Context, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.questions[q.ID]
	if !ok || cur.AssessmentID != q.AssessmentID {
		return fmt.Errorf("question: %w", errRowNotFound)
	}
	keep := map[string]bool{}
	for i := range q.Options {
		q.Options[i].QuestionID = q.ID
		keep[q.Options[i].ID] = true
	}
	// responses pointing at removed options go with them
	for _, o := range cur.Options {
		if keep[o.ID] {
			continue
		}
		for _, byQ := range m.responses {
			if r, ok := byQ[q.ID]; ok && r.SelectedOptionID == o.ID {
				delete(byQ, q.ID)
			}
		}
	}
	sortOptions(q.Options)
	m.questions[q.ID] = q
	return nil
}

func (m *MemoryStore) DeleteQuestion(_ context.Context, assessmentID, questionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[questionID]
	if !ok || q.AssessmentID != assessmentID {
		return fmt.Errorf("question: %w", errRowNotFound)
	}
	delete(m.questions, questionID)
	for _, byQ := range m.responses {
		delete(byQ, questionID)
	}
	return nil
}

func sortOptions(opts []Option) {
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Position < opts[j].Position })
}

// ---- attempts ----

func (m *MemoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assessments[a.AssessmentID]; !ok {
		return fmt.Errorf("insert attempt: assessment %s missing", a.AssessmentID)
	}
	if a.Status == StatusInProgress {
		for _, other := range m.attempts {
			if other.AssessmentID == a.AssessmentID && other.StudentID == a.StudentID && other.Status == StatusInProgress {
				return fmt.Errorf("insert attempt: %w", errActiveAttemptTaken)
			}
		}
	}
	m.attempts[a.ID] = a
	return nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %s: %w", id, errRowNotFound)
	}
	return a, nil
}

func (m *MemoryStore) LatestInProgressAttempt(_ context.Context, assessmentID, studentID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *Attempt
	for _, a := range m.attempts {
		if a.AssessmentID != assessmentID || a.StudentID != studentID || a.Status != StatusInProgress {
			continue
		}
		if best == nil || a.StartedAt.After(best.StartedAt) {
			a := a
			best = &a
		}
	}
	if best == nil {
		return Attempt{}, fmt.Errorf("active attempt: %w", errRowNotFound)
	}
	return *best, nil
}

func (m *MemoryStore) MarkTimedOut(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.Status != StatusInProgress {
		return false, nil
	}
	a.Status = StatusTimedOut
	a.UpdatedAt = now
	m.attempts[id] = a
	return true, nil
}

func (m *MemoryStore) MarkSubmitted(_ context.Context, id string, out Outcome, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.Status != StatusInProgress {
		return fmt.Errorf("attempt %s: %w", id, errStateChanged)
	}
	a.Status = StatusSubmitted
	a.SubmittedAt = &now
	score := out.Score
	a.Score = &score
	a.Correct, a.Wrong, a.Blank, a.Total = out.Correct, out.Wrong, out.Blank, out.Total
	a.UpdatedAt = now
	m.attempts[id] = a
	return nil
}

func (m *MemoryStore) ListAttempts(_ context.Context, f AttemptFilter) ([]AttemptRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []AttemptRow{}
	for _, a := range m.attempts {
		if f.AssessmentID != "" && a.AssessmentID != f.AssessmentID {
			continue
		}
		if f.StudentID != "" && a.StudentID != f.StudentID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
			continue
		}
		info := m.students[a.StudentID]
		out = append(out, AttemptRow{Attempt: a, StudentName: info[0], StudentEmail: info[1]})
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Score, out[j].Score
		switch {
		case si == nil && sj == nil:
			return out[i].StartedAt.After(out[j].StartedAt)
		case si == nil:
			return false
		case sj == nil:
			return true
		case *si != *sj:
			return *si > *sj
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *MemoryStore) UpsertResponse(_ context.Context, r Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[r.AttemptID]; !ok {
		return fmt.Errorf("upsert response: attempt %s missing", r.AttemptID)
	}
	byQ, ok := m.responses[r.AttemptID]
	if !ok {
		byQ = map[string]Response{}
		m.responses[r.AttemptID] = byQ
	}
	byQ[r.QuestionID] = r
	return nil
}

func (m *MemoryStore) ListResponses(_ context.Context, attemptID string) ([]Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Response{}
	for _, r := range m.responses[attemptID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (m *MemoryStore) UpsertFeedback(_ context.Context, f Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[f.AttemptID]; !ok {
		return fmt.Errorf("upsert feedback: attempt %s missing", f.AttemptID)
	}
	m.feedback[f.AttemptID] = f
	return nil
}

func (m *MemoryStore) GetFeedback(_ context.Context, attemptID string) (Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.feedback[attemptID]
	if !ok {
		return Feedback{}, fmt.Errorf("feedback %s: %w", attemptID, errRowNotFound)
	}
	return f, nil
}
