package fieldopssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Fieldops HTTP API client. Player clients use a token
// whose subject is their team; TeamID is only needed by arbitrators acting
// for another team.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	TeamID      string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v1",
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Completion is the ledger entry awarded when a team completes an objective.
type Completion struct {
	ID          string    `json:"id"`
	ObjectiveID string    `json:"objective_id"`
	TeamID      string    `json:"team_id"`
	Points      int       `json:"points"`
	CompletedAt time.Time `json:"completed_at"`
}

// CompletionResult is returned by actions that complete an objective.
type CompletionResult struct {
	Completed  bool        `json:"completed"`
	Points     int         `json:"points"`
	Completion *Completion `json:"completion,omitempty"`
}

// AttemptResult reports a code submission.
type AttemptResult struct {
	Correct           bool        `json:"correct"`
	Completed         bool        `json:"completed"`
	Points            int         `json:"points"`
	AttemptsUsed      int         `json:"attemptsUsed"`
	AttemptsRemaining *int        `json:"attemptsRemaining,omitempty"`
	Completion        *Completion `json:"completion,omitempty"`
}

// ObjectiveView is the part of an objective a team may see.
type ObjectiveView struct {
	ID          string `json:"id"`
	OperationID string `json:"operationId"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Points      int    `json:"points"`
}

// ScanResult describes what a scanned QR token did.
type ScanResult struct {
	Action           string            `json:"action"`
	Objective        ObjectiveView     `json:"objective"`
	Completion       *CompletionResult `json:"completion,omitempty"`
	AlreadyCompleted bool              `json:"alreadyCompleted"`
}

// GPSCaptureStart is returned when a team enters a capture zone.
type GPSCaptureStart struct {
	CaptureID       string  `json:"captureId"`
	DurationMinutes int     `json:"durationMinutes"`
	RadiusMeters    float64 `json:"radiusMeters"`
}

// ScoreboardEntry is one ranked team of an operation.
type ScoreboardEntry struct {
	Rank      int    `json:"rank"`
	TeamID    string `json:"teamId"`
	Name      string `json:"name"`
	Points    int    `json:"points"`
	Completed int    `json:"completed"`
}

// Capture is a domination capture ledger entry.
type Capture struct {
	ID         string    `json:"id"`
	PointID    string    `json:"point_id"`
	TeamID     string    `json:"team_id"`
	SessionID  string    `json:"session_id"`
	CapturedAt time.Time `json:"captured_at"`
}

type DominationTeam struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type PointState struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ControlledBy *DominationTeam `json:"controlledBy"`
	CapturedAt   *time.Time      `json:"capturedAt"`
}

type TeamScore struct {
	TeamID string `json:"teamId"`
	Points int    `json:"points"`
}

// DominationState is the current picture of a session.
type DominationState struct {
	Session struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"session"`
	Teams  []DominationTeam `json:"teams"`
	Points []PointState     `json:"points"`
	Scores []TeamScore      `json:"scores"`
}

// Event represents a log entry.
type Event struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts"`
	Type        string         `json:"type"`
	OperationID string         `json:"operationId"`
	EntityKind  string         `json:"entityKind"`
	EntityID    string         `json:"entityId"`
	ActorID     string         `json:"actorId"`
	Payload     map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"nextCursor"`
}

// APIError wraps non-2xx responses. Code and Details come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Scan resolves a scanned QR token for the team.
func (c *Client) Scan(ctx context.Context, token string) (ScanResult, error) {
	var resp ScanResult
	err := c.do(ctx, http.MethodPost, "scan", c.withTeam(map[string]any{"token": token}), &resp)
	return resp, err
}

// SubmitCode submits a physical code guess.
func (c *Client) SubmitCode(ctx context.Context, objectiveID, code string) (AttemptResult, error) {
	var resp AttemptResult
	err := c.do(ctx, http.MethodPost, objectivePath(objectiveID, "code"), c.withTeam(map[string]any{"code": code}), &resp)
	return resp, err
}

// StartGPSCapture reports the team inside a capture zone.
func (c *Client) StartGPSCapture(ctx context.Context, objectiveID string, lat, lon float64) (GPSCaptureStart, error) {
	var resp GPSCaptureStart
	err := c.do(ctx, http.MethodPost, objectivePath(objectiveID, "gps/start"), c.withTeam(map[string]any{"lat": lat, "lon": lon}), &resp)
	return resp, err
}

// CompleteGPSCapture completes a capture once its duration elapsed.
func (c *Client) CompleteGPSCapture(ctx context.Context, objectiveID string, lat, lon float64) (CompletionResult, error) {
	var resp CompletionResult
	err := c.do(ctx, http.MethodPost, objectivePath(objectiveID, "gps/complete"), c.withTeam(map[string]any{"lat": lat, "lon": lon}), &resp)
	return resp, err
}

// Scoreboard ranks the teams of an operation.
func (c *Client) Scoreboard(ctx context.Context, operationID string) ([]ScoreboardEntry, error) {
	var resp []ScoreboardEntry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("operations/%s/scoreboard", url.PathEscape(operationID)), nil, &resp)
	return resp, err
}

// Capture takes a domination point for a session team.
func (c *Client) Capture(ctx context.Context, qrToken, teamID string) (Capture, error) {
	var resp Capture
	err := c.do(ctx, http.MethodPost, "domination/capture", map[string]any{"qrToken": qrToken, "teamId": teamID}, &resp)
	return resp, err
}

// DominationState returns holders and scores of a session.
func (c *Client) DominationState(ctx context.Context, sessionID string) (DominationState, error) {
	var resp DominationState
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("domination/sessions/%s/state", url.PathEscape(sessionID)), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, operationID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if operationID != "" {
		q.Set("operationId", operationID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) withTeam(body map[string]any) map[string]any {
	if c.TeamID != "" {
		body["teamId"] = c.TeamID
	}
	return body
}

func objectivePath(objectiveID, action string) string {
	return fmt.Sprintf("objectives/%s/%s", url.PathEscape(objectiveID), action)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
