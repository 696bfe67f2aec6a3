package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned by Parse for event names outside the known set.
// Callers are expected to log and drop; unknown events are not fatal.
var ErrUnknownEvent = errors.New("unknown event type")

// Parse decodes one named stream payload into the typed union.
func Parse(name string, payload []byte) (Event, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	decode := func(dst Event) (Event, error) {
		if err := json.Unmarshal(payload, dst); err != nil {
			return nil, fmt.Errorf("decode %s event: %w", name, err)
		}
		return dst, nil
	}

	switch Type(name) {
	case TypeStatus:
		ev, err := decode(&Status{})
		return deref(ev), err
	case TypeUserMessage:
		ev, err := decode(&UserMessage{})
		return deref(ev), err
	case TypeAssistantMessage:
		ev, err := decode(&AssistantMessage{})
		return deref(ev), err
	case TypeThinking:
		ev, err := decode(&Thinking{})
		return deref(ev), err
	case TypeAgentPhase:
		ev, err := decode(&AgentPhase{})
		return deref(ev), err
	case TypeProgress:
		ev, err := decode(&Progress{})
		return deref(ev), err
	case TypeError:
		ev, err := decode(&Error{})
		return deref(ev), err
	case TypeToolCall:
		ev, err := decode(&ToolCall{})
		return deref(ev), err
	case TypeToolResult:
		ev, err := decode(&ToolResult{})
		return deref(ev), err
	case TypeMissionStatusChanged:
		ev, err := decode(&MissionStatusChanged{})
		return deref(ev), err
	case TypeMissionTitleChanged:
		ev, err := decode(&MissionTitleChanged{})
		return deref(ev), err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// deref flattens the pointer forms produced during decoding so the union is
// made of value types throughout the reconciler.
func deref(ev Event) Event {
	switch v := ev.(type) {
	case *Status:
		return *v
	case *UserMessage:
		return *v
	case *AssistantMessage:
		return *v
	case *Thinking:
		return *v
	case *AgentPhase:
		return *v
	case *Progress:
		return *v
	case *Error:
		return *v
	case *ToolCall:
		return *v
	case *ToolResult:
		return *v
	case *MissionStatusChanged:
		return *v
	case *MissionTitleChanged:
		return *v
	default:
		return ev
	}
}
