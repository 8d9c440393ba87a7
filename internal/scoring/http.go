package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPDelegate calls a remote score_attempt endpoint.
type HTTPDelegate struct {
	URL    string
	Client *http.Client
}

func NewHTTPDelegate(url string, timeout time.Duration) *HTTPDelegate {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDelegate{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (d *HTTPDelegate) Score(ctx context.Context, attemptID string) (Result, error) {
	if d.URL == "" {
		return Result{}, errors.New("scoring: no URL configured")
	}
	payload, _ := json.Marshal(map[string]string{"attempt_id": attemptID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("scoring: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("scoring: read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return Result{}, errors.New(msg)
	}
	return decodeRow(body)
}
