package api

// Mission is a persistent goal-oriented session as the backend reports it.
// Timestamps are RFC 3339 strings and are passed through untouched.
type Mission struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Title         string         `json:"title,omitempty"`
	ModelOverride string         `json:"model_override,omitempty"`
	History       []HistoryEntry `json:"history,omitempty"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
	InterruptedAt string         `json:"interrupted_at,omitempty"`
	Resumable     bool           `json:"resumable,omitempty"`
}

// HistoryEntry is one turn of a mission's conversation summary.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunningMission is one live runner from GET /api/control/running.
type RunningMission struct {
	MissionID            string `json:"mission_id"`
	ModelOverride        string `json:"model_override,omitempty"`
	State                string `json:"state"`
	QueueLen             int    `json:"queue_len"`
	HistoryLen           int    `json:"history_len"`
	SecondsSinceActivity int64  `json:"seconds_since_activity"`
	ExpectedDeliverables int    `json:"expected_deliverables"`
}

// MessageReceipt acknowledges an enqueued user message.
type MessageReceipt struct {
	ID     string `json:"id"`
	Queued bool   `json:"queued"`
}
