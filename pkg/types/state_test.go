package types_test

import (
	"testing"

	"github.com/macconnolly/meetgraph/pkg/types"
)

func TestNormalizeStatusAliases(t *testing.T) {
	cases := map[string]string{
		"planned":           "planned",
		"planning":          "planned",
		"not_started":       "planned",
		"not started":       "planned",
		"Not-Started":       "planned",
		"in_progress":       "in_progress",
		"inprogress":        "in_progress",
		"in progress":       "in_progress",
		"in-progress":       "in_progress",
		"active":            "in_progress",
		"ongoing":           "in_progress",
		"complete":          "completed",
		"completed":         "completed",
		"done":              "completed",
		"finished":          "completed",
		"closed":            "completed",
		"on_hold":           "blocked",
		"on hold":           "blocked",
		"paused":            "blocked",
		"stuck":             "blocked",
		"blocked":           "blocked",
		"canceled":          "cancelled",
		"cancelled":         "cancelled",
		"abandoned":         "cancelled",
		"stopped":           "cancelled",
		"in planning phase": "planned",
	}

	for input, want := range cases {
		if got := types.NormalizeStatus(input); got != want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeStatusIdempotent(t *testing.T) {
	inputs := []string{
		"planning", "In Progress", "DONE", "on-hold", "something unknown",
		"", "  spaced  out  ",
	}

	for _, input := range inputs {
		once := types.NormalizeStatus(input)
		twice := types.NormalizeStatus(once)
		if once != twice {
			t.Errorf("NormalizeStatus not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestNormalizeStatusUnknownPassesThrough(t *testing.T) {
	if got := types.NormalizeStatus("half baked"); got != "half_baked" {
		t.Errorf("expected unknown status to be separator-normalized, got %q", got)
	}
}

func TestNormalizeState(t *testing.T) {
	state := map[string]interface{}{
		"status":   "In Planning Phase",
		"progress": " 30% ",
		"count":    3,
	}

	types.NormalizeState(state)

	if state["status"] != "planned" {
		t.Errorf("expected status planned, got %v", state["status"])
	}
	if state["progress"] != "30%" {
		t.Errorf("expected trimmed progress, got %q", state["progress"])
	}
	if state["count"] != 3 {
		t.Errorf("expected non-string values untouched, got %v", state["count"])
	}
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range types.ValidStatuses {
		if !types.IsValidStatus(s) {
			t.Errorf("expected %q to be a valid status", s)
		}
	}
	if types.IsValidStatus("planning") {
		t.Error("alias values are not canonical statuses")
	}
}
