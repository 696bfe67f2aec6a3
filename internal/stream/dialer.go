package stream

import (
	"context"
	"encoding/json"
	"fmt"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/sandboxed-sh/console/internal/event"
	"github.com/sandboxed-sh/console/pkg/logger"
)

// streamPath is the socket.io mount point of the control event stream.
const streamPath = "/api/control/stream"

// wireEvents are the named events the backend pushes. Anything else arriving
// on the socket is ignored.
var wireEvents = []event.Type{
	event.TypeStatus,
	event.TypeUserMessage,
	event.TypeAssistantMessage,
	event.TypeThinking,
	event.TypeAgentPhase,
	event.TypeProgress,
	event.TypeError,
	event.TypeToolCall,
	event.TypeToolResult,
	event.TypeMissionStatusChanged,
	event.TypeMissionTitleChanged,
}

// SocketDialer dials the backend's control stream over socket.io. Library
// auto-reconnection is disabled; the Conn backoff loop owns retries.
type SocketDialer struct {
	ServerURL string
	Token     string
}

type socketSession struct {
	sock *socket.Socket
}

func (s *socketSession) Close() error {
	s.sock.Disconnect()
	return nil
}

// Dial connects and registers per-event listeners that forward each payload
// as JSON to the callbacks.
func (d *SocketDialer) Dial(ctx context.Context, cb Callbacks) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := socket.DefaultOptions()
	opts.SetPath(streamPath)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetReconnection(false)
	opts.SetAuth(map[string]interface{}{"token": d.Token})

	sock, err := socket.Connect(d.ServerURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect stream: %w", err)
	}

	sock.On(types.EventName("disconnect"), func(args ...any) {
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		cb.OnDisconnect(reason)
	})
	sock.On(types.EventName("connect_error"), func(args ...any) {
		reason := "connect_error"
		if len(args) > 0 {
			reason = fmt.Sprintf("connect_error: %v", args[0])
		}
		cb.OnDisconnect(reason)
	})

	for _, name := range wireEvents {
		name := name
		sock.On(types.EventName(name), func(args ...any) {
			cb.OnEvent(string(name), firstArgJSON(args))
		})
	}

	return &socketSession{sock: sock}, nil
}

// firstArgJSON re-encodes the first event argument as JSON for the typed
// parser. Payload-less events become an empty payload.
func firstArgJSON(args []any) []byte {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args[0])
	if err != nil {
		logger.Warnf("stream: failed to re-encode event payload: %v", err)
		return nil
	}
	return data
}
