package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "audit.jsonl")
	fixed := time.Date(2026, 2, 15, 8, 0, 0, 0, time.UTC)
	return NewLedger(path, WithSessionID("sess-1"), WithClock(func() time.Time { return fixed }))
}

func readRawLines(t *testing.T, path string) []string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open audit file error: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan audit file error: %v", err)
	}
	return lines
}

func writeRawLines(t *testing.T, path string, lines []string) {
	t.Helper()
	data := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func logN(t *testing.T, l *Ledger, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := l.Log(Input{
			Action:  fmt.Sprintf("action_%d", i),
			Actor:   ActorAgent,
			Outcome: OutcomeAllowed,
			Details: map[string]any{"layer": "tool-policy", "n": i},
		}); err != nil {
			t.Fatalf("Log %d error: %v", i, err)
		}
	}
}

func TestLedger_FirstEntryHasNullPrevHash(t *testing.T) {
	l := newTestLedger(t)
	logN(t, l, 1)

	lines := readRawLines(t, l.Path())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[0], `"prev_hash":null}`) {
		t.Fatalf("expected explicit null prev_hash, got %s", lines[0])
	}

	var e Entry
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if e.SchemaVersion != SchemaVersion {
		t.Fatalf("expected schema_version %q, got %q", SchemaVersion, e.SchemaVersion)
	}
	if e.SessionID != "sess-1" {
		t.Fatalf("expected session id sess-1, got %q", e.SessionID)
	}
	if e.TraceID == "" {
		t.Fatal("expected generated trace id")
	}
}

func TestLedger_ChainLinksRawLines(t *testing.T) {
	l := newTestLedger(t)
	logN(t, l, 5)

	lines := readRawLines(t, l.Path())
	for i := 1; i < len(lines); i++ {
		var e Entry
		if err := json.Unmarshal([]byte(lines[i]), &e); err != nil {
			t.Fatalf("unmarshal line %d: %v", i, err)
		}
		if e.PrevHash == nil {
			t.Fatalf("line %d: expected prev_hash", i)
		}
		if want := sha256Hex(lines[i-1]); *e.PrevHash != want {
			t.Fatalf("line %d: prev_hash %s, want %s", i, *e.PrevHash, want)
		}
	}
}

func TestLedger_VerifyChainValid(t *testing.T) {
	l := newTestLedger(t)
	logN(t, l, 7)

	res, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if !res.Valid || res.Entries != 7 {
		t.Fatalf("expected valid chain with 7 entries, got %+v", res)
	}
	if res.BrokenAt != nil {
		t.Fatalf("expected no broken index, got %d", *res.BrokenAt)
	}
}

func TestLedger_VerifyChainMissingFile(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "nope", "audit.jsonl"))

	res, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if !res.Valid || res.Entries != 0 {
		t.Fatalf("expected valid empty chain, got %+v", res)
	}
}

func TestLedger_VerifyChainDetectsModification(t *testing.T) {
	l := newTestLedger(t)
	logN(t, l, 5)

	lines := readRawLines(t, l.Path())
	lines[2] = strings.Replace(lines[2], `"outcome":"allowed"`, `"outcome":"denied"`, 1)
	writeRawLines(t, l.Path(), lines)

	res, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if res.Valid {
		t.Fatal("expected broken chain after modification")
	}
	if res.BrokenAt == nil || *res.BrokenAt != 3 {
		t.Fatalf("expected broken_at 3, got %+v", res)
	}
}

func TestLedger_VerifyChainDetectsDeletion(t *testing.T) {
	l := newTestLedger(t)
	logN(t, l, 5)

	lines := readRawLines(t, l.Path())
	lines = append(lines[:2], lines[3:]...)
	writeRawLines(t, l.Path(), lines)

	res, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if res.Valid {
		t.Fatal("expected broken chain after deletion")
	}
	if res.BrokenAt == nil || *res.BrokenAt != 2 {
		t.Fatalf("expected broken_at 2, got %+v", res)
	}
}

func TestLedger_VerifyChainDetectsHeadTruncation(t *testing.T) {
	l := newTestLedger(t)
	logN(t, l, 3)

	lines := readRawLines(t, l.Path())
	writeRawLines(t, l.Path(), lines[1:])

	res, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if res.Valid || res.BrokenAt == nil || *res.BrokenAt != 0 {
		t.Fatalf("expected broken_at 0, got %+v", res)
	}
}

func TestLedger_VerifyChainDetectsGarbageLine(t *testing.T) {
	l := newTestLedger(t)
	logN(t, l, 3)

	lines := readRawLines(t, l.Path())
	lines[1] = "not json"
	writeRawLines(t, l.Path(), lines)

	res, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if res.Valid || res.BrokenAt == nil || *res.BrokenAt != 1 {
		t.Fatalf("expected broken_at 1, got %+v", res)
	}
	if res.Error == "" {
		t.Fatal("expected error message")
	}
}

func TestLedger_ResumesChainAcrossInstances(t *testing.T) {
	l := newTestLedger(t)
	logN(t, l, 3)

	resumed := NewLedger(l.Path(), WithSessionID("sess-2"))
	if err := resumed.Log(Input{Action: "after_restart", Outcome: OutcomeActive}); err != nil {
		t.Fatalf("Log error: %v", err)
	}

	lines := readRawLines(t, l.Path())
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	var last Entry
	if err := json.Unmarshal([]byte(lines[3]), &last); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if last.PrevHash == nil || *last.PrevHash != sha256Hex(lines[2]) {
		t.Fatalf("expected resumed prev_hash to link line 2, got %v", last.PrevHash)
	}
	if last.Actor != ActorSystem {
		t.Fatalf("expected default actor system, got %q", last.Actor)
	}

	res, err := resumed.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if !res.Valid || res.Entries != 4 {
		t.Fatalf("expected valid chain with 4 entries, got %+v", res)
	}
}

func TestLedger_AppendOverridesCallerPrevHash(t *testing.T) {
	l := newTestLedger(t)
	bogus := "deadbeef"
	if err := l.Append(Entry{SchemaVersion: SchemaVersion, Action: "x", PrevHash: &bogus}); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	res, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid chain, got %+v", res)
	}
}

func TestLedger_ResumesAcrossLargeLines(t *testing.T) {
	l := newTestLedger(t)
	big := strings.Repeat("x", tailChunkSize*2+17)
	for i := 0; i < 3; i++ {
		if err := l.Log(Input{Action: "big", Outcome: OutcomeAllowed, Target: big}); err != nil {
			t.Fatalf("Log error: %v", err)
		}
	}
	res, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if !res.Valid || res.Entries != 3 {
		t.Fatalf("expected valid chain, got %+v", res)
	}
}

func TestLedger_AppendAfterUnterminatedLastLine(t *testing.T) {
	l := newTestLedger(t)
	logN(t, l, 1)

	raw, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if err := os.WriteFile(l.Path(), []byte(strings.TrimSuffix(string(raw), "\n")), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	if err := l.Log(Input{Action: "after_crash", Outcome: OutcomeAllowed}); err != nil {
		t.Fatalf("Log error: %v", err)
	}

	lines := readRawLines(t, l.Path())
	if len(lines) != 2 {
		t.Fatalf("expected entries on separate lines, got %d lines", len(lines))
	}
	if lines[0] != strings.TrimSuffix(string(raw), "\n") {
		t.Fatal("expected the earlier entry to be left intact")
	}
	res, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if !res.Valid || res.Entries != 2 {
		t.Fatalf("expected valid chain with 2 entries, got %+v", res)
	}
}

func TestLedger_AppendAfterTornWriteKeepsNewEntrySeparate(t *testing.T) {
	l := newTestLedger(t)
	logN(t, l, 1)

	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("OpenFile error: %v", err)
	}
	if _, err := f.WriteString(`{"schema_version":"1","times`); err != nil {
		t.Fatalf("WriteString error: %v", err)
	}
	_ = f.Close()

	if err := l.Log(Input{Action: "after_crash", Outcome: OutcomeAllowed}); err != nil {
		t.Fatalf("Log error: %v", err)
	}

	lines := readRawLines(t, l.Path())
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	var last Entry
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatalf("expected new entry to stay parseable: %v", err)
	}
	res, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if res.Valid || res.BrokenAt == nil || *res.BrokenAt != 1 {
		t.Fatalf("expected chain broken at the torn line, got %+v", res)
	}
}

func TestLedger_AppendMkdirAllFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "state")
	if err := os.WriteFile(blocker, []byte("not-a-dir"), 0644); err != nil {
		t.Fatalf("WriteFile state blocker error: %v", err)
	}

	l := NewLedger(filepath.Join(blocker, "audit.jsonl"))
	if err := l.Log(Input{Action: "x", Outcome: OutcomeAllowed}); err == nil {
		t.Fatal("expected append error when state path is a file")
	}
}

func TestLedger_AppendConcurrent(t *testing.T) {
	l := newTestLedger(t)

	const total = 40
	var wg sync.WaitGroup
	errCh := make(chan error, total)
	wg.Add(total)
	for i := 0; i < total; i++ {
		i := i
		go func() {
			defer wg.Done()
			if err := l.Log(Input{
				Action:  fmt.Sprintf("concurrent_%d", i),
				Outcome: OutcomeAllowed,
			}); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("append failed in concurrent path: %v", err)
	}

	res, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if !res.Valid || res.Entries != total {
		t.Fatalf("expected valid chain with %d entries, got %+v", total, res)
	}
}

func TestLedger_Tail(t *testing.T) {
	l := newTestLedger(t)
	logN(t, l, 5)

	entries, err := l.Tail(2)
	if err != nil {
		t.Fatalf("Tail error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != "action_3" || entries[1].Action != "action_4" {
		t.Fatalf("unexpected tail order: %q, %q", entries[0].Action, entries[1].Action)
	}
}
