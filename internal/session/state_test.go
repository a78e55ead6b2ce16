package session

import (
	"encoding/json"
	"testing"
)

func TestStatusMarshalJSON(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{Restore, `"restore"`},
		{Reduce, `"reduce"`},
		{Status(9), `"unknown"`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.status)
		if err != nil {
			t.Errorf("Marshal(%v) error: %v", tt.status, err)
			continue
		}
		if string(data) != tt.expected {
			t.Errorf("Marshal(%v) = %s, want %s", tt.status, data, tt.expected)
		}
	}
}

func TestStatusUnmarshalJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected Status
	}{
		{`"restore"`, Restore},
		{`"reduce"`, Reduce},
		{`"bogus"`, Restore},
	}

	for _, tt := range tests {
		var s Status
		if err := json.Unmarshal([]byte(tt.input), &s); err != nil {
			t.Errorf("Unmarshal(%s) error: %v", tt.input, err)
			continue
		}
		if s != tt.expected {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.input, s, tt.expected)
		}
	}
}

func TestStatusUnmarshalJSONRejectsNonString(t *testing.T) {
	var s Status
	if err := json.Unmarshal([]byte(`1`), &s); err == nil {
		t.Error("expected error for numeric status")
	}
}

func TestRoleRoundTrip(t *testing.T) {
	for _, r := range []Role{Measured, Target, Excluded} {
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", r, err)
		}
		var got Role
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if got != r {
			t.Errorf("round trip %v = %v", r, got)
		}
	}
}

func TestSnapshotJSONShape(t *testing.T) {
	snap := Snapshot{
		Tick:    3,
		Status:  Reduce,
		Desired: 0.3,
		Health:  Healthy,
		Sessions: []View{
			{PID: 10, Name: "game", Volume: 0.5, Role: Target},
		},
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["status"] != "reduce" {
		t.Errorf("status = %v, want reduce", m["status"])
	}
	if m["health"] != "healthy" {
		t.Errorf("health = %v, want healthy", m["health"])
	}
	sessions, ok := m["sessions"].([]any)
	if !ok || len(sessions) != 1 {
		t.Fatalf("sessions = %v", m["sessions"])
	}
	if role := sessions[0].(map[string]any)["role"]; role != "target" {
		t.Errorf("role = %v, want target", role)
	}
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	orig := Snapshot{Sessions: []View{{PID: 1, Name: "a"}}}
	c := orig.Clone()
	c.Sessions[0].Name = "mutated"
	if orig.Sessions[0].Name != "a" {
		t.Error("Clone shares the sessions slice")
	}
}

func TestSnapshotCount(t *testing.T) {
	snap := Snapshot{Sessions: []View{
		{PID: 1, Role: Target},
		{PID: 2, Role: Target},
		{PID: 3, Role: Excluded},
		{PID: 4, Role: Measured},
	}}
	if got := snap.Count(Target); got != 2 {
		t.Errorf("Count(Target) = %d, want 2", got)
	}
	if got := snap.Count(Excluded); got != 1 {
		t.Errorf("Count(Excluded) = %d, want 1", got)
	}
}

func TestEventTypeString(t *testing.T) {
	if EventFlip.String() != "flip" {
		t.Errorf("EventFlip = %q", EventFlip.String())
	}
	if EventType(42).String() != "unknown" {
		t.Errorf("EventType(42) = %q", EventType(42).String())
	}
}
