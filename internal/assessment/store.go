package assessment

import (
	"context"
	"time"
)

type AssessmentStore interface {
	CreateAssessment(ctx context.Context, a Assessment) error
	// UpdateAssessment overwrites the row matching a.ID and a.OwnerID.
	UpdateAssessment(ctx context.Context, a Assessment) error
	// DeleteAssessment removes the assessment and everything hanging off it.
	DeleteAssessment(ctx context.Context, id, ownerID string) error
	GetAssessment(ctx context.Context, id string) (Assessment, error)
	ListAssessmentsByOwner(ctx context.Context, ownerID string) ([]Assessment, error)
	ListPublishedAssessments(ctx context.Context) ([]Assessment, error)
	// UnpublishEnded clears is_published on assessments whose end is before now.
	// An empty ownerID applies to every owner.
	UnpublishEnded(ctx context.Context, ownerID string, now time.Time) (int, error)
}

type QuestionStore interface {
	// ListQuestions returns questions ordered by position with their options.
	// Answer keys are filled only when withKeys is set.
	ListQuestions(ctx context.Context, assessmentID string, withKeys bool) ([]Question, error)
	GetQuestion(ctx context.Context, assessmentID, questionID string) (Question, error)
	// CreateQuestion inserts q, its options and its key. A zero Position appends.
	CreateQuestion(ctx context.Context, q Question) (Question, error)
	// UpdateQuestion updates q in place: listed options are upserted by id,
	// options not listed are removed, and the key is pointed at q.CorrectOptionID.
	UpdateQuestion(ctx context.Context, q Question) error
	DeleteQuestion(ctx context.Context, assessmentID, questionID string) error
}

type AttemptStore interface {
	// CreateAttempt fails with errActiveAttemptTaken when the student already
	// holds an IN_PROGRESS attempt on the assessment.
	CreateAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	LatestInProgressAttempt(ctx context.Context, assessmentID, studentID string) (Attempt, error)
	// MarkTimedOut flips an IN_PROGRESS attempt to TIMED_OUT; reports whether it changed.
	MarkTimedOut(ctx context.Context, id string, now time.Time) (bool, error)
	// MarkSubmitted finalizes an IN_PROGRESS attempt with its score and counts;
	// errStateChanged otherwise.
	MarkSubmitted(ctx context.Context, id string, out Outcome, now time.Time) error
	ListAttempts(ctx context.Context, f AttemptFilter) ([]AttemptRow, error)

	UpsertResponse(ctx context.Context, r Response) error
	ListResponses(ctx context.Context, attemptID string) ([]Response, error)

	// UpsertFeedback replaces the attempt's feedback.
	UpsertFeedback(ctx context.Context, f Feedback) error
	// GetFeedback fails with errRowNotFound when none was left.
	GetFeedback(ctx context.Context, attemptID string) (Feedback, error)
}

// Store is the data-access handle every operation receives.
type Store interface {
	AssessmentStore
	QuestionStore
	AttemptStore
}
