package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sandboxed-sh/console/internal/event"
)

func TestListMissions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/control/missions", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"m1","status":"active","title":"build it","created_at":"2026-03-14T09:00:00Z","updated_at":"2026-03-14T09:05:00Z"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	defer client.Close()

	missions, err := client.ListMissions(context.Background())
	require.NoError(t, err)
	require.Len(t, missions, 1)
	require.Equal(t, "m1", missions[0].ID)
	require.Equal(t, "active", missions[0].Status)
	require.Equal(t, "build it", missions[0].Title)
}

func TestGetMissionNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Mission m9 not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	defer client.Close()

	_, err := client.GetMission(context.Background(), "m9")
	require.Error(t, err)
	require.True(t, IsNotFound(err), "expected not-found, got %v", err)
}

func TestCurrentMissionNull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/control/missions/current", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`null`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	defer client.Close()

	mission, err := client.CurrentMission(context.Background())
	require.NoError(t, err)
	require.Nil(t, mission)
}

func TestMissionEventsTypeFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/control/missions/m1/events", r.URL.Path)
		require.Equal(t, "user_message,tool_call", r.URL.Query().Get("types"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"mission_id":"m1","sequence":1,"event_type":"user_message","timestamp":"2026-03-14T09:00:00Z","event_id":"u1","content":"hi"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	defer client.Close()

	events, err := client.MissionEvents(context.Background(), "m1",
		[]event.Type{event.TypeUserMessage, event.TypeToolCall})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, event.TypeUserMessage, events[0].EventType)
	require.Equal(t, int64(1), events[0].Sequence)
}

func TestSendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/control/message", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hello", body["content"])
		_, hasModel := body["model"]
		require.False(t, hasModel, "empty model must be omitted")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u77","queued":true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	defer client.Close()

	receipt, err := client.SendMessage(context.Background(), "hello", "")
	require.NoError(t, err)
	require.Equal(t, "u77", receipt.ID)
	require.True(t, receipt.Queued)
}

func TestPostToolResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/control/tool_result", r.URL.Path)

		var body struct {
			ToolCallID string          `json:"tool_call_id"`
			Name       string          `json:"name"`
			Result     json.RawMessage `json:"result"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "t1", body.ToolCallID)
		require.Equal(t, "ui_optionList", body.Name)
		require.JSONEq(t, `{"selected":"b"}`, string(body.Result))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	defer client.Close()

	err := client.PostToolResult(context.Background(), "t1", "ui_optionList",
		json.RawMessage(`{"selected":"b"}`))
	require.NoError(t, err)
}

func TestSetMissionStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/control/missions/m1/status", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "completed", body["status"])
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	defer client.Close()

	require.NoError(t, client.SetMissionStatus(context.Background(), "m1", "completed"))
}

// unsignedToken builds a structurally valid JWT with the given exp; the
// signature is garbage, which is fine for unverified inspection.
func unsignedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]any{"exp": exp.Unix()})
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestUnauthorizedMentionsExpiredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	token := unsignedToken(t, time.Now().Add(-time.Hour))
	client := NewClient(server.URL, token)
	defer client.Close()

	_, err := client.ListMissions(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "token expired at")
}

func TestUnauthorizedWithLiveTokenHasNoHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	token := unsignedToken(t, time.Now().Add(time.Hour))
	client := NewClient(server.URL, token)
	defer client.Close()

	_, err := client.ListMissions(context.Background())
	require.Error(t, err)
	require.False(t, strings.Contains(err.Error(), "token expired"))
}
