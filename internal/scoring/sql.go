package scoring

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLDelegate is the score_attempt procedure expressed as one aggregate query:
// every question of the attempt's assessment is correct, wrong or blank, and
// the score is the sum of points of the correct ones.
type SQLDelegate struct {
	db *sql.DB
}

func NewSQLDelegate(db *sql.DB) *SQLDelegate { return &SQLDelegate{db: db} }

const scoreAttemptSQL = `
SELECT
  COALESCE(SUM(CASE WHEN r.selected_option_id IS NOT NULL AND r.selected_option_id = k.correct_option_id THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN r.selected_option_id IS NOT NULL AND (k.correct_option_id IS NULL OR r.selected_option_id <> k.correct_option_id) THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN r.selected_option_id IS NULL THEN 1 ELSE 0 END), 0),
  COUNT(q.id),
  COALESCE(SUM(CASE WHEN r.selected_option_id IS NOT NULL AND r.selected_option_id = k.correct_option_id THEN q.points ELSE 0 END), 0)
FROM attempts a
JOIN questions q ON q.assessment_id = a.assessment_id
LEFT JOIN answer_keys k ON k.question_id = q.id
LEFT JOIN responses r ON r.attempt_id = a.id AND r.question_id = q.id
WHERE a.id = $1`

func (d *SQLDelegate) Score(ctx context.Context, attemptID string) (Result, error) {
	var res Result
	var score float64
	if err := d.db.QueryRowContext(ctx, scoreAttemptSQL, attemptID).
		Scan(&res.Correct, &res.Wrong, &res.Blank, &res.Total, &score); err != nil {
		return Result{}, fmt.Errorf("score_attempt: %w", err)
	}
	res.Score = &score
	return res, nil
}
