package commands

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"testing"

	"github.com/MEKXH/careagent/internal/cans/canstest"
	"github.com/MEKXH/careagent/internal/config"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	os.Stdout = w
	fn()
	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()

	return buf.String()
}

// setupWorkspace points HOME at a temp dir, runs init and returns the
// workspace path.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	captureOutput(t, func() {
		if err := runInit(nil, nil); err != nil {
			t.Fatalf("runInit: %v", err)
		}
	})
	return config.DefaultConfig().WorkspacePath()
}

func writeDocument(t *testing.T, workspace string, opts canstest.Options) {
	t.Helper()
	canstest.Write(t, workspace, canstest.Document(opts))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var err error
	out := captureOutput(t, func() {
		root := NewRootCmd()
		root.SetArgs(args)
		root.SetErr(io.Discard)
		err = root.Execute()
	})
	return stripANSI(out), err
}
