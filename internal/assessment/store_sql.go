package assessment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	database "github.com/mind-engage/mindengage-quiz/internal/db"
)

// SQLStore implements Store on database/sql for sqlite and postgres.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const assessmentCols = `id,owner_id,title,description,subject_name,is_published,start_at,end_at,duration_minutes,access_password_hash,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(r rowScanner) (Assessment, error) {
	var a Assessment
	var start, end sql.NullInt64
	var dur sql.NullInt64
	var created, updated int64
	if err := r.Scan(&a.ID, &a.OwnerID, &a.Title, &a.Description, &a.SubjectName, &a.IsPublished,
		&start, &end, &dur, &a.PasswordHash, &created, &updated); err != nil {
		return Assessment{}, err
	}
	a.StartAt = fromMillis(start)
	a.EndAt = fromMillis(end)
	if dur.Valid {
		d := int(dur.Int64)
		a.DurationMinutes = &d
	}
	a.HasPassword = a.PasswordHash != ""
	a.CreatedAt = time.UnixMilli(created)
	a.UpdatedAt = time.UnixMilli(updated)
	return a, nil
}

func (s *SQLStore) CreateAssessment(ctx context.Context, a Assessment) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO assessments (`+assessmentCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.OwnerID, a.Title, a.Description, a.SubjectName, a.IsPublished,
		toMillis(a.StartAt), toMillis(a.EndAt), intOrNil(a.DurationMinutes), a.PasswordHash,
		a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateAssessment(ctx context.Context, a Assessment) error {
	res, err := s.db.ExecContext(ctx, `UPDATE assessments SET
		title=$1, description=$2, subject_name=$3, is_published=$4, start_at=$5, end_at=$6,
		duration_minutes=$7, access_password_hash=$8, updated_at=$9
		WHERE id=$10 AND owner_id=$11`,
		a.Title, a.Description, a.SubjectName, a.IsPublished, toMillis(a.StartAt), toMillis(a.EndAt),
		intOrNil(a.DurationMinutes), a.PasswordHash, a.UpdatedAt.UnixMilli(), a.ID, a.OwnerID)
	if err != nil {
		return fmt.Errorf("update assessment: %w", err)
	}
	return requireRow(res, "assessment")
}

func (s *SQLStore) DeleteAssessment(ctx context.Context, id, ownerID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assessments WHERE id=$1 AND owner_id=$2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	return requireRow(res, "assessment")
}

func (s *SQLStore) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	a, err := scanAssessment(s.db.QueryRowContext(ctx, `SELECT `+assessmentCols+` FROM assessments WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Assessment{}, fmt.Errorf("assessment %s: %w", id, errRowNotFound)
		}
		return Assessment{}, fmt.Errorf("get assessment: %w", err)
	}
	return a, nil
}

func (s *SQLStore) ListAssessmentsByOwner(ctx context.Context, ownerID string) ([]Assessment, error) {
	return s.listAssessments(ctx, `SELECT `+assessmentCols+` FROM assessments WHERE owner_id=$1 ORDER BY created_at DESC`, ownerID)
}

func (s *SQLStore) ListPublishedAssessments(ctx context.Context) ([]Assessment, error) {
	return s.listAssessments(ctx, `SELECT `+assessmentCols+` FROM assessments WHERE is_published=$1
		ORDER BY (start_at IS NULL), start_at, created_at DESC`, true)
}

func (s *SQLStore) listAssessments(ctx context.Context, q string, args ...any) ([]Assessment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()
	out := []Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) UnpublishEnded(ctx context.Context, ownerID string, now time.Time) (int, error) {
	q := `UPDATE assessments SET is_published=$1, updated_at=$2
		WHERE is_published=$3 AND end_at IS NOT NULL AND end_at < $4`
	args := []any{false, now.UnixMilli(), true, now.UnixMilli()}
	if ownerID != "" {
		q += ` AND owner_id=$5`
		args = append(args, ownerID)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("unpublish ended: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- questions ----

func (s *SQLStore) ListQuestions(ctx context.Context, assessmentID string, withKeys bool) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,assessment_id,prompt,points,position
		FROM questions WHERE assessment_id=$1 ORDER BY position, id`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	out := []Question{}
	idx := map[string]int{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.AssessmentID, &q.Prompt, &q.Points, &q.Position); err != nil {
			rows.Close()
			return nil, err
		}
		q.Options = []Option{}
		idx[q.ID] = len(out)
		out = append(out, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orows, err := s.db.QueryContext(ctx, `SELECT o.id,o.question_id,o.text,o.position
		FROM options o JOIN questions q ON q.id=o.question_id
		WHERE q.assessment_id=$1 ORDER BY o.question_id, o.position`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	for orows.Next() {
		var o Option
		if err := orows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.Position); err != nil {
			orows.Close()
			return nil, err
		}
		if i, ok := idx[o.QuestionID]; ok {
			out[i].Options = append(out[i].Options, o)
		}
	}
	orows.Close()
	if err := orows.Err(); err != nil {
		return nil, err
	}

	if !withKeys {
		return out, nil
	}
	krows, err := s.db.QueryContext(ctx, `SELECT k.question_id,k.correct_option_id
		FROM answer_keys k JOIN questions q ON q.id=k.question_id WHERE q.assessment_id=$1`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list answer keys: %w", err)
	}
	defer krows.Close()
	for krows.Next() {
		var qid, oid string
		if err := krows.Scan(&qid, &oid); err != nil {
			return nil, err
		}
		if i, ok := idx[qid]; ok {
			out[i].CorrectOptionID = oid
		}
	}
	return out, krows.Err()
}

func (s *SQLStore) GetQuestion(ctx context.Context, assessmentID, questionID string) (Question, error) {
	qs, err := s.ListQuestions(ctx, assessmentID, true)
	if err != nil {
		return Question{}, err
	}
	for _, q := range qs {
		if q.ID == questionID {
			return q, nil
		}
	}
	return Question{}, fmt.Errorf("question %s: %w", questionID, errRowNotFound)
}

func (s *SQLStore) CreateQuestion(ctx context.Context, q Question) (Question, error) {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if q.Position <= 0 {
			var last sql.NullInt64
			if err := tx.QueryRowContext(ctx, `SELECT MAX(position) FROM questions WHERE assessment_id=$1`,
				q.AssessmentID).Scan(&last); err != nil {
				return fmt.Errorf("next position: %w", err)
			}
			q.Position = int(last.Int64) + 1
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO questions (id,assessment_id,prompt,points,position)
			VALUES ($1,$2,$3,$4,$5)`, q.ID, q.AssessmentID, q.Prompt, q.Points, q.Position); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		for _, o := range q.Options {
			if _, err := tx.ExecContext(ctx, `INSERT INTO options (id,question_id,text,position) VALUES ($1,$2,$3,$4)`,
				o.ID, q.ID, o.Text, o.Position); err != nil {
				return fmt.Errorf("insert option: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO answer_keys (question_id,correct_option_id) VALUES ($1,$2)`,
			q.ID, q.CorrectOptionID); err != nil {
			return fmt.Errorf("insert answer key: %w", err)
		}
		return nil
	})
	if err != nil {
		return Question{}, err
	}
	for i := range q.Options {
		q.Options[i].QuestionID = q.ID
	}
	return q, nil
}

func (s *SQLStore) UpdateQuestion(ctx context.Context, q Question) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE questions SET prompt=$1, points=$2, position=$3
			WHERE id=$4 AND assessment_id=$5`, q.Prompt, q.Points, q.Position, q.ID, q.AssessmentID)
		if err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		if err := requireRow(res, "question"); err != nil {
			return err
		}
		keep := make([]any, 0, len(q.Options)+1)
		keep = append(keep, q.ID)
		for _, o := range q.Options {
			if _, err := tx.ExecContext(ctx, `INSERT INTO options (id,question_id,text,position) VALUES ($1,$2,$3,$4)
				ON CONFLICT (id) DO UPDATE SET text=excluded.text, position=excluded.position
				WHERE options.question_id=excluded.question_id`, o.ID, q.ID, o.Text, o.Position); err != nil {
				return fmt.Errorf("upsert option: %w", err)
			}
			keep = append(keep, o.ID)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO answer_keys (question_id,correct_option_id) VALUES ($1,$2)
			ON CONFLICT (question_id) DO UPDATE SET correct_option_id=excluded.correct_option_id`,
			q.ID, q.CorrectOptionID); err != nil {
			return fmt.Errorf("upsert answer key: %w", err)
		}
		del := `DELETE FROM options WHERE question_id=$1`
		if len(keep) > 1 {
			del += ` AND id NOT IN (` + placeholders(2, len(keep)-1) + `)`
		}
		if _, err := tx.ExecContext(ctx, del, keep...); err != nil {
			return fmt.Errorf("prune options: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, assessmentID, questionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id=$1 AND assessment_id=$2`, questionID, assessmentID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return requireRow(res, "question")
}

// ---- attempts ----

const attemptCols = `a.id,a.assessment_id,a.student_id,a.status,a.started_at,a.expires_at,a.submitted_at,a.score,a.correct,a.wrong,a.blank,a.total,a.updated_at`

func scanAttempt(r rowScanner, extra ...any) (Attempt, error) {
	var at Attempt
	var status string
	var started, updated int64
	var expires, submitted sql.NullInt64
	var score sql.NullFloat64
	dest := append([]any{&at.ID, &at.AssessmentID, &at.StudentID, &status, &started, &expires, &submitted, &score,
		&at.Correct, &at.Wrong, &at.Blank, &at.Total, &updated}, extra...)
	if err := r.Scan(dest...); err != nil {
		return Attempt{}, err
	}
	at.Status = Status(status)
	at.StartedAt = time.UnixMilli(started)
	at.ExpiresAt = fromMillis(expires)
	at.SubmittedAt = fromMillis(submitted)
	if score.Valid {
		v := score.Float64
		at.Score = &v
	}
	at.UpdatedAt = time.UnixMilli(updated)
	return at, nil
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO attempts (id,assessment_id,student_id,status,started_at,expires_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.AssessmentID, a.StudentID, string(a.Status), a.StartedAt.UnixMilli(), toMillis(a.ExpiresAt), a.UpdatedAt.UnixMilli())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("insert attempt: %w", errActiveAttemptTaken)
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	at, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts a WHERE a.id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, fmt.Errorf("attempt %s: %w", id, errRowNotFound)
		}
		return Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return at, nil
}

func (s *SQLStore) LatestInProgressAttempt(ctx context.Context, assessmentID, studentID string) (Attempt, error) {
	at, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts a
		WHERE a.assessment_id=$1 AND a.student_id=$2 AND a.status=$3
		ORDER BY a.started_at DESC LIMIT 1`, assessmentID, studentID, string(StatusInProgress)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, fmt.Errorf("active attempt: %w", errRowNotFound)
		}
		return Attempt{}, fmt.Errorf("latest attempt: %w", err)
	}
	return at, nil
}

func (s *SQLStore) MarkTimedOut(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4`,
		string(StatusTimedOut), now.UnixMilli(), id, string(StatusInProgress))
	if err != nil {
		return false, fmt.Errorf("mark timed out: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLStore) MarkSubmitted(ctx context.Context, id string, out Outcome, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE attempts
		SET status=$1, submitted_at=$2, score=$3, correct=$4, wrong=$5, blank=$6, total=$7, updated_at=$2
		WHERE id=$8 AND status=$9`,
		string(StatusSubmitted), now.UnixMilli(), out.Score, out.Correct, out.Wrong, out.Blank, out.Total,
		id, string(StatusInProgress))
	if err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("attempt %s: %w", id, errStateChanged)
	}
	return nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, f AttemptFilter) ([]AttemptRow, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.AssessmentID != "" {
		add("a.assessment_id=?", f.AssessmentID)
	}
	if f.StudentID != "" {
		add("a.student_id=?", f.StudentID)
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			args = append(args, string(st))
			ph[i] = "$" + strconv.Itoa(len(args))
		}
		where = append(where, "a.status IN ("+strings.Join(ph, ",")+")")
	}
	q := `SELECT ` + attemptCols + `, COALESCE(u.name,''), COALESCE(u.email,'')
		FROM attempts a LEFT JOIN users u ON u.id=a.student_id`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY (a.score IS NULL), a.score DESC, a.started_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()
	out := []AttemptRow{}
	for rows.Next() {
		var r AttemptRow
		at, err := scanAttempt(rows, &r.StudentName, &r.StudentEmail)
		if err != nil {
			return nil, err
		}
		r.Attempt = at
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpsertResponse(ctx context.Context, r Response) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO responses (attempt_id,question_id,selected_option_id,updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (attempt_id,question_id) DO UPDATE SET selected_option_id=excluded.selected_option_id, updated_at=excluded.updated_at`,
		r.AttemptID, r.QuestionID, r.SelectedOptionID, r.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert response: %w", err)
	}
	return nil
}

func (s *SQLStore) ListResponses(ctx context.Context, attemptID string) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT attempt_id,question_id,selected_option_id,updated_at
		FROM responses WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()
	out := []Response{}
	for rows.Next() {
		var r Response
		var updated int64
		if err := rows.Scan(&r.AttemptID, &r.QuestionID, &r.SelectedOptionID, &updated); err != nil {
			return nil, err
		}
		r.UpdatedAt = time.UnixMilli(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- feedback ----

func (s *SQLStore) UpsertFeedback(ctx context.Context, f Feedback) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO teacher_feedback (attempt_id,message,updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (attempt_id) DO UPDATE SET message=excluded.message, updated_at=excluded.updated_at`,
		f.AttemptID, f.Message, f.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert feedback: %w", err)
	}
	return nil
}

func (s *SQLStore) GetFeedback(ctx context.Context, attemptID string) (Feedback, error) {
	var f Feedback
	var updated int64
	err := s.db.QueryRowContext(ctx, `SELECT attempt_id,message,updated_at FROM teacher_feedback WHERE attempt_id=$1`,
		attemptID).Scan(&f.AttemptID, &f.Message, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Feedback{}, fmt.Errorf("feedback %s: %w", attemptID, errRowNotFound)
		}
		return Feedback{}, fmt.Errorf("get feedback: %w", err)
	}
	f.UpdatedAt = time.UnixMilli(updated)
	return f, nil
}

// ---- helpers ----

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, errRowNotFound)
	}
	return nil
}

func placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(ph, ",")
}

func toMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
