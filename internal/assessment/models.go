package assessment

import "time"

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusTimedOut   Status = "TIMED_OUT"
	StatusReset      Status = "RESET"
)

// Finished reports whether the attempt can no longer change.
func (s Status) Finished() bool { return s == StatusSubmitted || s == StatusTimedOut }

type Assessment struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	SubjectName     string     `json:"subject_name,omitempty"`
	IsPublished     bool       `json:"is_published"`
	StartAt         *time.Time `json:"start_at"`
	EndAt           *time.Time `json:"end_at"`
	DurationMinutes *int       `json:"duration_minutes"`
	PasswordHash    string     `json:"-"`
	HasPassword     bool       `json:"has_password"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Option struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id,omitempty"`
	Text       string `json:"text"`
	Position   int    `json:"position"`
}

type Question struct {
	ID           string   `json:"id"`
	AssessmentID string   `json:"assessment_id"`
	Prompt       string   `json:"prompt"`
	Points       float64  `json:"points"`
	Position     int      `json:"position"`
	Options      []Option `json:"options"`
	// CorrectOptionID is only populated for the owning teacher.
	CorrectOptionID string `json:"correct_option_id,omitempty"`
}

type Attempt struct {
	ID           string     `json:"id"`
	AssessmentID string     `json:"assessment_id"`
	StudentID    string     `json:"student_id"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	ExpiresAt    *time.Time `json:"expires_at"`
	SubmittedAt  *time.Time `json:"submitted_at"`
	Score        *float64   `json:"score"`
	Correct      int        `json:"correct"`
	Wrong        int        `json:"wrong"`
	Blank        int        `json:"blank"`
	Total        int        `json:"total"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Feedback is the teacher's note on a finished attempt. One per attempt.
type Feedback struct {
	AttemptID string    `json:"attempt_id"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Response struct {
	AttemptID        string    `json:"attempt_id,omitempty"`
	QuestionID       string    `json:"question_id"`
	SelectedOptionID string    `json:"selected_option_id"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AttemptRow is an attempt joined with the student's profile, for result listings.
type AttemptRow struct {
	Attempt
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
}

type AttemptFilter struct {
	AssessmentID string
	StudentID    string
	Statuses     []Status
}

// WindowState is the student-facing availability of a published assessment.
type WindowState string

const (
	WindowUpcoming WindowState = "UPCOMING"
	WindowOpen     WindowState = "OPEN"
	WindowEnded    WindowState = "ENDED"
)
