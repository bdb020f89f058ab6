package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/suggest"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
)

const maxAttempts = 3

// APIError is a non-2xx response from the server. It unwraps to the
// matching workout sentinel so callers can use errors.Is.
type APIError struct {
	Status    int
	Message   string
	SessionID uuid.UUID
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return workout.ErrValidation
	case http.StatusNotFound:
		return workout.ErrNotFound
	case http.StatusConflict:
		return workout.ErrConflict
	default:
		return nil
	}
}

func (e *APIError) temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Client talks to the liftlog server's session API.
type Client struct {
	serverURL  string
	login      string
	httpClient *http.Client
	backoff    time.Duration
}

// New creates a client. login is sent as models.LoginHeader when non-empty.
func New(serverURL, login string) *Client {
	return &Client{
		serverURL: serverURL,
		login:     login,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff: time.Second,
	}
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Identity is the caller as the server sees it.
type Identity struct {
	UserID      int    `json:"user_id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Me returns the identity the server attributes requests to.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var out Identity
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, &out, maxAttempts); err != nil {
		return nil, fmt.Errorf("fetching identity: %w", err)
	}
	return &out, nil
}

// Start begins a session. It is never retried: a retry after a lost response
// would fail with a conflict against the session it created.
func (c *Client) Start(ctx context.Context, presetID *uuid.UUID) (*models.SessionRow, error) {
	body := struct {
		PresetID *uuid.UUID `json:"preset_id,omitempty"`
	}{presetID}
	var out models.SessionRow
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", body, &out, 1); err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	return &out, nil
}

// Active returns the active session, or nil if there is none.
func (c *Client) Active(ctx context.Context) (*models.SessionRow, error) {
	var out *models.SessionRow
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/active", nil, &out, maxAttempts); err != nil {
		return nil, fmt.Errorf("fetching active session: %w", err)
	}
	return out, nil
}

// Get fetches one session.
func (c *Client) Get(ctx context.Context, id uuid.UUID) (*models.SessionRow, error) {
	var out models.SessionRow
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+id.String(), nil, &out, maxAttempts); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns recent sessions, newest first.
func (c *Client) List(ctx context.Context, limit int) ([]models.SessionRow, error) {
	path := "/api/v1/sessions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []models.SessionRow
	if err := c.do(ctx, http.MethodGet, path, nil, &out, maxAttempts); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return out, nil
}

// UpdateSet sends one set patch. Retries are safe because the server drops
// patches whose sequence number it has already applied.
func (c *Client) UpdateSet(ctx context.Context, sessionID, setID uuid.UUID, p workout.Patch) (*models.SessionRow, error) {
	var out models.SessionRow
	path := fmt.Sprintf("/api/v1/sessions/%s/sets/%s", sessionID, setID)
	if err := c.do(ctx, http.MethodPatch, path, p, &out, maxAttempts); err != nil {
		return nil, fmt.Errorf("updating set %s: %w", setID, err)
	}
	return &out, nil
}

// AddExercise appends planned sets to an active session.
func (c *Client) AddExercise(ctx context.Context, sessionID uuid.UUID, plans ...workout.PlannedExercise) (*models.SessionRow, error) {
	var out models.SessionRow
	path := fmt.Sprintf("/api/v1/sessions/%s/exercises", sessionID)
	if err := c.do(ctx, http.MethodPost, path, plans, &out, 1); err != nil {
		return nil, fmt.Errorf("adding exercise: %w", err)
	}
	return &out, nil
}

// ApplySuggestion posts a raw AI parsing result to the session. A rejected
// suggestion is not an error: the session comes back unchanged and the
// decision carries the reason.
func (c *Client) ApplySuggestion(ctx context.Context, sessionID uuid.UUID, raw json.RawMessage) (*models.SessionRow, suggest.Decision, error) {
	var out struct {
		models.SessionRow
		Suggestion suggest.Decision `json:"suggestion"`
	}
	path := fmt.Sprintf("/api/v1/sessions/%s/suggestions", sessionID)
	if err := c.do(ctx, http.MethodPost, path, raw, &out, 1); err != nil {
		return nil, suggest.Decision{}, fmt.Errorf("applying suggestion: %w", err)
	}
	return &out.SessionRow, out.Suggestion, nil
}

// Finish ends a session. It returns only after the server has acknowledged
// the write.
func (c *Client) Finish(ctx context.Context, id uuid.UUID) (*models.SessionRow, error) {
	var out models.SessionRow
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id.String()+"/finish", nil, &out, maxAttempts); err != nil {
		return nil, fmt.Errorf("finishing session: %w", err)
	}
	return &out, nil
}

// Resume reopens a session.
func (c *Client) Resume(ctx context.Context, id uuid.UUID) (*models.SessionRow, error) {
	var out models.SessionRow
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id.String()+"/resume", nil, &out, maxAttempts); err != nil {
		return nil, fmt.Errorf("resuming session: %w", err)
	}
	return &out, nil
}

// Delete removes a session.
func (c *Client) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+id.String(), nil, nil, maxAttempts); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Presets lists the user's presets.
func (c *Client) Presets(ctx context.Context) ([]workout.Preset, error) {
	var out []workout.Preset
	if err := c.do(ctx, http.MethodGet, "/api/v1/presets", nil, &out, maxAttempts); err != nil {
		return nil, fmt.Errorf("listing presets: %w", err)
	}
	return out, nil
}

// TrainingSummary fetches volume per period as raw JSON rows.
func (c *Client) TrainingSummary(ctx context.Context, bucket string, start, end time.Time) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("bucket", bucket)
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))
	var out []map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/v1/training/summary?"+q.Encode(), nil, &out, maxAttempts); err != nil {
		return nil, fmt.Errorf("fetching training summary: %w", err)
	}
	return out, nil
}

// do sends one request, retrying up to attempts times with exponential
// backoff on transport errors and 5xx responses. A 204 leaves out untouched.
func (c *Client) do(ctx context.Context, method, path string, in, out any, attempts int) error {
	var data []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		data = b
	}

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<uint(attempt-1)) * c.backoff):
			}
		}

		err := c.once(ctx, method, path, data, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.temporary() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, data []byte, out any) error {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.login != "" {
		req.Header.Set(models.LoginHeader, c.login)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error     string    `json:"error"`
		SessionID uuid.UUID `json:"session_id"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.SessionID = body.SessionID
	} else {
		apiErr.Message = string(bytes.TrimSpace(raw))
	}
	return apiErr
}
