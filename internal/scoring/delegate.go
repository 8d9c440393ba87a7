// Package scoring computes attempt scores outside the lifecycle code. The
// lifecycle only knows a Delegate, invoked once per submission with the
// attempt id.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Result mirrors the score_attempt row: counts plus an optional score.
type Result struct {
	Correct int      `json:"correct"`
	Wrong   int      `json:"wrong"`
	Blank   int      `json:"blank"`
	Total   int      `json:"total"`
	Score   *float64 `json:"score,omitempty"`
}

// Final is the score to persist; a delegate that omits it scores by correct count.
func (r Result) Final() float64 {
	if r.Score != nil {
		return *r.Score
	}
	return float64(r.Correct)
}

type Delegate interface {
	Score(ctx context.Context, attemptID string) (Result, error)
}

// Func adapts a plain function to Delegate.
type Func func(ctx context.Context, attemptID string) (Result, error)

func (f Func) Score(ctx context.Context, attemptID string) (Result, error) { return f(ctx, attemptID) }

// decodeRow accepts either a single object or an array holding one object.
// Numeric fields may arrive as numbers or numeric strings.
func decodeRow(body []byte) (Result, error) {
	var raw json.RawMessage = body
	var arr []json.RawMessage
	if err := json.Unmarshal(body, &arr); err == nil {
		if len(arr) == 0 {
			return Result{}, nil
		}
		raw = arr[0]
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return Result{}, fmt.Errorf("scoring: decode row: %w", err)
	}
	var res Result
	var err error
	if res.Correct, err = intField(row, "correct"); err != nil {
		return Result{}, err
	}
	if res.Wrong, err = intField(row, "wrong"); err != nil {
		return Result{}, err
	}
	if res.Blank, err = intField(row, "blank"); err != nil {
		return Result{}, err
	}
	if res.Total, err = intField(row, "total"); err != nil {
		return Result{}, err
	}
	if v, ok := row["score"]; ok && v != nil {
		f, err := toFloat(v)
		if err != nil {
			return Result{}, fmt.Errorf("scoring: score: %w", err)
		}
		res.Score = &f
	}
	return res, nil
}

func intField(row map[string]any, k string) (int, error) {
	v, ok := row[k]
	if !ok || v == nil {
		return 0, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("scoring: %s: %w", k, err)
	}
	return int(f), nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(x, 64)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}
