package timeline

import (
	"encoding/json"
	"strings"
)

// toolUIPrefix marks tool names the dashboard renders as structured widgets
// (ui_optionList, ui_dataTable, ...). Widget calls never join the plain
// tool-call flow.
const toolUIPrefix = "ui_"

// desktopToolPrefix marks tool calls that start a desktop session the client
// should attach to.
const desktopToolPrefix = "desktop_"

// transportNoise lists error-message fragments produced by the stream
// transport itself during reconnects. These are recovered automatically by
// the backoff loop and never surfaced into the timeline.
//
// The list is matched case-insensitively as substrings.
var transportNoise = []string{
	"stream connection failed",
	"stream disconnected",
	"event stream lagged",
	"connection timed out",
	"connection timeout",
	"connection reset",
	"connection closed",
	"connection refused",
	"network error",
	"transport close",
}

// isTransportNoise reports whether an error event is reconnection noise
// rather than an agent/tool error worth showing.
func isTransportNoise(message string) bool {
	lower := strings.ToLower(message)
	for _, fragment := range transportNoise {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// classifyToolResult maps a free-form tool result onto the terminal tool
// state.
//
// The rules, in order:
//   - an object with status "cancelled"/"canceled", or a bare string equal to
//     one of those words, means the call was cancelled;
//   - an object carrying error/is_error, or success=false, or a string with an
//     "error:" prefix, means the call failed;
//   - anything else is success.
func classifyToolResult(result json.RawMessage) ToolState {
	trimmed := strings.TrimSpace(string(result))
	if trimmed == "" || trimmed == "null" {
		return ToolSuccess
	}

	var asString string
	if err := json.Unmarshal(result, &asString); err == nil {
		lower := strings.ToLower(strings.TrimSpace(asString))
		switch lower {
		case "cancelled", "canceled":
			return ToolCancelled
		}
		if strings.HasPrefix(lower, "error:") || strings.HasPrefix(lower, "error ") {
			return ToolError
		}
		return ToolSuccess
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(result, &asObject); err != nil {
		return ToolSuccess
	}

	if raw, ok := asObject["status"]; ok {
		var status string
		if err := json.Unmarshal(raw, &status); err == nil {
			switch strings.ToLower(status) {
			case "cancelled", "canceled":
				return ToolCancelled
			case "error", "failed", "failure":
				return ToolError
			}
		}
	}
	if raw, ok := asObject["is_error"]; ok {
		var isErr bool
		if err := json.Unmarshal(raw, &isErr); err == nil && isErr {
			return ToolError
		}
	}
	if raw, ok := asObject["error"]; ok && string(raw) != "null" && string(raw) != `""` {
		return ToolError
	}
	if raw, ok := asObject["success"]; ok {
		var success bool
		if err := json.Unmarshal(raw, &success); err == nil && !success {
			return ToolError
		}
	}
	return ToolSuccess
}

// isToolUI reports whether a tool name is a structured UI directive.
func isToolUI(name string) bool {
	return strings.HasPrefix(name, toolUIPrefix)
}

// isDesktopTool reports whether a tool call starts a desktop session.
func isDesktopTool(name string) bool {
	return strings.HasPrefix(name, desktopToolPrefix)
}
