package event

import (
	"errors"
	"testing"
)

func TestParseUnknownEvent(t *testing.T) {
	_, err := Parse("brand_new_thing", []byte(`{}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("err = %v, want ErrUnknownEvent", err)
	}
}

func TestParseEmptyPayload(t *testing.T) {
	ev, err := Parse("status", nil)
	if err != nil {
		t.Fatalf("empty payload should decode to defaults: %v", err)
	}
	st, ok := ev.(Status)
	if !ok {
		t.Fatalf("got %T", ev)
	}
	if st.State != "" || st.QueueLen != 0 {
		t.Fatalf("unexpected defaults: %+v", st)
	}
}

func TestParseMalformedPayload(t *testing.T) {
	if _, err := Parse("user_message", []byte(`{"id":`)); err == nil {
		t.Fatalf("malformed payload must error")
	}
}

func TestParseReturnsValueTypes(t *testing.T) {
	ev, err := Parse("thinking", []byte(`{"content":"hmm","done":false}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.(Thinking); !ok {
		t.Fatalf("expected value type, got %T", ev)
	}
}

func TestAssistantMessageCostForms(t *testing.T) {
	cases := []struct {
		name       string
		payload    string
		wantCents  int64
		wantSource string
	}{
		{"flat", `{"id":"a1","content":"x","cost_cents":42,"cost_source":"metered"}`, 42, "metered"},
		{"nested", `{"id":"a1","content":"x","cost":{"amount_cents":7,"source":"estimate"}}`, 7, "estimate"},
		{"absent", `{"id":"a1","content":"x"}`, 0, ""},
		{"flat wins over nested", `{"id":"a1","content":"x","cost_cents":1,"cost":{"amount_cents":9}}`, 1, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Parse("assistant_message", []byte(tc.payload))
			if err != nil {
				t.Fatal(err)
			}
			am := ev.(AssistantMessage)
			if am.CostCents != tc.wantCents || am.CostSource != tc.wantSource {
				t.Fatalf("cost = (%d, %q), want (%d, %q)",
					am.CostCents, am.CostSource, tc.wantCents, tc.wantSource)
			}
		})
	}
}

func TestAssistantMessageSuccessDefaultsTrue(t *testing.T) {
	ev, err := Parse("assistant_message", []byte(`{"id":"a1","content":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !ev.(AssistantMessage).Success {
		t.Fatalf("absent success must default to true")
	}

	ev, err = Parse("assistant_message", []byte(`{"id":"a1","content":"x","success":false}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.(AssistantMessage).Success {
		t.Fatalf("explicit false must stick")
	}
}

func TestAssistantMessageDropsInvalidSharedFiles(t *testing.T) {
	payload := `{"id":"a1","content":"x","shared_files":[
		{"name":"report.pdf","url":"https://x/r.pdf","content_type":"application/pdf","kind":"document"},
		{"name":"broken.bin","url":"","content_type":"application/octet-stream","kind":"document"}
	]}`
	ev, err := Parse("assistant_message", []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	files := ev.(AssistantMessage).SharedFiles
	if len(files) != 1 || files[0].Name != "report.pdf" {
		t.Fatalf("files = %+v", files)
	}
}

func TestProgressDepthForms(t *testing.T) {
	ev, err := Parse("progress", []byte(`{"total_subtasks":3,"completed_subtasks":1,"depth":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := ev.(Progress).Depth; got != 2 {
		t.Fatalf("depth = %d, want 2", got)
	}

	ev, err = Parse("progress", []byte(`{"total_subtasks":3,"completed_subtasks":1,"current_depth":4}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := ev.(Progress).Depth; got != 4 {
		t.Fatalf("current_depth = %d, want 4", got)
	}
}

func TestParseMissionStatus(t *testing.T) {
	cases := map[string]MissionStatus{
		"active":       StatusActive,
		"COMPLETED":    StatusCompleted,
		" failed ":     StatusFailed,
		"not_feasible": StatusNotFeasible,
		"something":    StatusUnknown,
		"":             StatusUnknown,
	}
	for raw, want := range cases {
		if got := ParseMissionStatus(raw); got != want {
			t.Fatalf("ParseMissionStatus(%q) = %v, want %v", raw, got, want)
		}
	}
}
