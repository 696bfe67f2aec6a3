// Package api is the REST client for the backend's control plane: mission
// CRUD, history replay, the running-missions list, and message/tool-result
// submission.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"resty.dev/v3"

	"github.com/sandboxed-sh/console/internal/event"
)

// defaultTimeout is the per-request timeout.
const defaultTimeout = 15 * time.Second

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to one backend on behalf of one token.
type Client struct {
	http  *resty.Client
	token string
}

// NewClient creates a client for the given server base URL and bearer token.
func NewClient(serverURL, token string) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(serverURL, "/")).
		SetAuthToken(token).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, token: token}
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.http.Close()
}

// ListMissions returns all missions, newest first.
func (c *Client) ListMissions(ctx context.Context) ([]Mission, error) {
	var missions []Mission
	resp, err := c.http.R().SetContext(ctx).SetResult(&missions).
		Get("/api/control/missions")
	if err := c.check(resp, err); err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}
	return missions, nil
}

// GetMission returns one mission's metadata.
func (c *Client) GetMission(ctx context.Context, missionID string) (Mission, error) {
	var mission Mission
	resp, err := c.http.R().SetContext(ctx).SetResult(&mission).
		SetPathParam("id", missionID).
		Get("/api/control/missions/{id}")
	if err := c.check(resp, err); err != nil {
		return Mission{}, fmt.Errorf("failed to get mission %s: %w", missionID, err)
	}
	return mission, nil
}

// CurrentMission returns the backend's current mission, or nil when no
// mission is active (the endpoint serves a JSON null).
func (c *Client) CurrentMission(ctx context.Context) (*Mission, error) {
	var mission *Mission
	resp, err := c.http.R().SetContext(ctx).SetResult(&mission).
		Get("/api/control/missions/current")
	if err := c.check(resp, err); err != nil {
		return nil, fmt.Errorf("failed to get current mission: %w", err)
	}
	return mission, nil
}

// CreateMission creates a new mission and switches the backend to it.
func (c *Client) CreateMission(ctx context.Context, title string) (Mission, error) {
	body := map[string]any{}
	if title != "" {
		body["title"] = title
	}
	var mission Mission
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&mission).
		Post("/api/control/missions")
	if err := c.check(resp, err); err != nil {
		return Mission{}, fmt.Errorf("failed to create mission: %w", err)
	}
	return mission, nil
}

// MissionEvents returns a mission's stored history, filtered to the given
// event types (all types when empty). The caller sorts before replay.
func (c *Client) MissionEvents(ctx context.Context, missionID string, types []event.Type) ([]event.StoredEvent, error) {
	req := c.http.R().SetContext(ctx).SetPathParam("id", missionID)
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		req.SetQueryParam("types", strings.Join(names, ","))
	}

	var events []event.StoredEvent
	resp, err := req.SetResult(&events).Get("/api/control/missions/{id}/events")
	if err := c.check(resp, err); err != nil {
		return nil, fmt.Errorf("failed to get events for mission %s: %w", missionID, err)
	}
	return events, nil
}

// ListRunning returns the currently running missions.
func (c *Client) ListRunning(ctx context.Context) ([]RunningMission, error) {
	var running []RunningMission
	resp, err := c.http.R().SetContext(ctx).SetResult(&running).
		Get("/api/control/running")
	if err := c.check(resp, err); err != nil {
		return nil, fmt.Errorf("failed to list running missions: %w", err)
	}
	return running, nil
}

// SendMessage enqueues a user message for the control session. An empty
// model keeps the server default.
func (c *Client) SendMessage(ctx context.Context, content, model string) (MessageReceipt, error) {
	body := map[string]any{"content": content}
	if model != "" {
		body["model"] = model
	}
	var receipt MessageReceipt
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&receipt).
		Post("/api/control/message")
	if err := c.check(resp, err); err != nil {
		return MessageReceipt{}, fmt.Errorf("failed to send message: %w", err)
	}
	return receipt, nil
}

// PostToolResult submits a frontend tool result so the waiting agent can
// resume.
func (c *Client) PostToolResult(ctx context.Context, toolCallID, name string, result json.RawMessage) error {
	body := map[string]any{
		"tool_call_id": toolCallID,
		"name":         name,
		"result":       result,
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).
		Post("/api/control/tool_result")
	if err := c.check(resp, err); err != nil {
		return fmt.Errorf("failed to post tool result: %w", err)
	}
	return nil
}

// Cancel interrupts the currently running control-session task.
func (c *Client) Cancel(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Post("/api/control/cancel")
	if err := c.check(resp, err); err != nil {
		return fmt.Errorf("failed to cancel: %w", err)
	}
	return nil
}

// SetMissionStatus sets a mission's status (completed, failed, ...).
func (c *Client) SetMissionStatus(ctx context.Context, missionID, status string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("id", missionID).
		SetBody(map[string]any{"status": status}).
		Post("/api/control/missions/{id}/status")
	if err := c.check(resp, err); err != nil {
		return fmt.Errorf("failed to set status for mission %s: %w", missionID, err)
	}
	return nil
}

// SetMissionTitle renames a mission.
func (c *Client) SetMissionTitle(ctx context.Context, missionID, title string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("id", missionID).
		SetBody(map[string]any{"title": title}).
		Post("/api/control/missions/{id}/title")
	if err := c.check(resp, err); err != nil {
		return fmt.Errorf("failed to set title for mission %s: %w", missionID, err)
	}
	return nil
}

// CancelMission interrupts a specific running mission.
func (c *Client) CancelMission(ctx context.Context, missionID string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("id", missionID).
		Post("/api/control/missions/{id}/cancel")
	if err := c.check(resp, err); err != nil {
		return fmt.Errorf("failed to cancel mission %s: %w", missionID, err)
	}
	return nil
}

// DeleteMission removes a mission and its history.
func (c *Client) DeleteMission(ctx context.Context, missionID string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("id", missionID).
		Delete("/api/control/missions/{id}")
	if err := c.check(resp, err); err != nil {
		return fmt.Errorf("failed to delete mission %s: %w", missionID, err)
	}
	return nil
}

// check folds the transport error and HTTP status into one error value.
func (c *Client) check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}

	message := strings.TrimSpace(resp.String())
	if message == "" {
		message = http.StatusText(resp.StatusCode())
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		if hint := tokenHint(c.token); hint != "" {
			message = message + " (" + hint + ")"
		}
	}
	return &APIError{Status: resp.StatusCode(), Message: message}
}

// tokenHint inspects the bearer token's exp claim without verifying the
// signature, purely to make 401s actionable. The server stays authoritative.
func tokenHint(token string) string {
	if strings.TrimSpace(token) == "" {
		return "no token configured"
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	if claims.ExpiresAt == nil {
		return ""
	}
	if time.Now().After(claims.ExpiresAt.Time) {
		return "token expired at " + claims.ExpiresAt.Format(time.RFC3339)
	}
	return ""
}
