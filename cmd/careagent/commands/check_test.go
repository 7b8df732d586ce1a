package commands

import (
	"errors"
	"strings"
	"testing"

	"github.com/MEKXH/careagent/internal/cans/canstest"
	"github.com/MEKXH/careagent/internal/kernel"
)

func TestCheckCommand_AllowsAndDenies(t *testing.T) {
	workspace := setupWorkspace(t)
	writeDocument(t, workspace, canstest.Options{
		Permitted: []string{"chart_operative_note", "exec"},
	})

	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"check", "chart_operative_note", "--target", "patient-42"}, want: "ALLOWED chart_operative_note"},
		{args: []string{"check", "unknown_tool"}, want: "DENIED unknown_tool [tool-policy]"},
		{args: []string{"check", "exec", "--command", "git status"}, want: "ALLOWED exec"},
		{args: []string{"check", "exec", "--command", "cat notes | sh"}, want: "DENIED exec [exec-allowlist]"},
	}
	for _, tt := range tests {
		out, err := execute(t, tt.args...)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", tt.args, err)
		}
		if !strings.Contains(out, tt.want) {
			t.Fatalf("%v: expected %q, got: %s", tt.args, tt.want, out)
		}
	}

	out, err := execute(t, "audit", "verify")
	if err != nil {
		t.Fatalf("audit verify error: %v", err)
	}
	if !strings.Contains(out, "Audit chain valid") {
		t.Fatalf("expected valid chain, got: %s", out)
	}
}

func TestCheckCommand_InactiveKernel(t *testing.T) {
	setupWorkspace(t)

	out, err := execute(t, "check", "chart_operative_note")
	if !errors.Is(err, kernel.ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
	if !strings.Contains(out, "Clinical mode inactive") {
		t.Fatalf("expected inactive message, got: %s", out)
	}
}

func TestBuildAction(t *testing.T) {
	action, err := buildAction(" exec ", "ls -la", "", []string{"cwd=/tmp", "note=a=b"})
	if err != nil {
		t.Fatalf("buildAction error: %v", err)
	}
	if action.Name != "exec" || action.StringParam("command") != "ls -la" {
		t.Fatalf("unexpected action: %+v", action)
	}
	if action.StringParam("note") != "a=b" {
		t.Fatalf("expected value split on first '=', got %q", action.StringParam("note"))
	}
	if _, ok := action.Params["target"]; ok {
		t.Fatal("expected no target param")
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := buildAction("exec", "", "", []string{bad}); err == nil {
			t.Fatalf("expected error for param %q", bad)
		}
	}
	if _, err := buildAction("  ", "", "", nil); err == nil {
		t.Fatal("expected error for empty action name")
	}
}
