package assessment

import (
	"bytes"
	"encoding/json"
	"time"
)

// Field distinguishes an absent JSON member from an explicit null.
// Set is true when the member was present; Val is nil for null.
type Field[T any] struct {
	Set bool
	Val *T
}

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		f.Val = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f.Val = &v
	return nil
}

// Value returns the set value, or the zero value when absent or null.
func (f Field[T]) Value() T {
	var zero T
	if f.Val == nil {
		return zero
	}
	return *f.Val
}

// Some builds a present, non-null Field.
func Some[T any](v T) Field[T] { return Field[T]{Set: true, Val: &v} }

type NewAssessment struct {
	Title           string     `json:"title" validate:"required,max=200"`
	Description     string     `json:"description" validate:"max=5000"`
	SubjectName     string     `json:"subject_name" validate:"max=200"`
	StartAt         *time.Time `json:"start_at"`
	EndAt           *time.Time `json:"end_at"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,min=0,max=10080"`
	Password        string     `json:"password" validate:"max=200"`
}

// AssessmentPatch carries only the members the teacher sent.
type AssessmentPatch struct {
	Title           Field[string]    `json:"title"`
	Description     Field[string]    `json:"description"`
	SubjectName     Field[string]    `json:"subject_name"`
	StartAt         Field[time.Time] `json:"start_at"`
	EndAt           Field[time.Time] `json:"end_at"`
	DurationMinutes Field[int]       `json:"duration_minutes"`
	Password        Field[string]    `json:"password"`
	ClearPassword   bool             `json:"clear_password"`
	IsPublished     Field[bool]      `json:"is_published"`
}

type OptionInput struct {
	ID   string `json:"id"`
	Text string `json:"text" validate:"required,max=1000"`
}

// QuestionInput is used for both create and update. The key is given either by
// option id (update only) or by index into Options.
type QuestionInput struct {
	Prompt          string        `json:"prompt" validate:"required,max=5000"`
	Points          *float64      `json:"points" validate:"omitempty,gte=0"`
	Position        int           `json:"position" validate:"gte=0"`
	Options         []OptionInput `json:"options" validate:"min=2,dive"`
	CorrectIndex    *int          `json:"correct_index" validate:"omitempty,gte=0"`
	CorrectOptionID string        `json:"correct_option_id"`
}
