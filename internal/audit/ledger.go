package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	auditFileMode = 0644
	auditDirMode  = 0755

	tailChunkSize = 4096
)

// Ledger appends hash-chained entries to a JSONL file. It is the only
// writer of that file within the process.
type Ledger struct {
	path      string
	sessionID string
	now       func() time.Time

	mu sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithSessionID sets the session id stamped on entries written via Log.
func WithSessionID(id string) Option {
	return func(l *Ledger) {
		l.sessionID = strings.TrimSpace(id)
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger creates a ledger over path. The file is created on first append.
func NewLedger(path string, opts ...Option) *Ledger {
	l := &Ledger{
		path:      path,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// SessionID returns the session id stamped by Log.
func (l *Ledger) SessionID() string {
	return l.sessionID
}

// Log fills the ledger-owned fields of in and appends it.
func (l *Ledger) Log(in Input) error {
	traceID := strings.TrimSpace(in.TraceID)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	actor := in.Actor
	if actor == "" {
		actor = ActorSystem
	}
	return l.Append(Entry{
		SchemaVersion: SchemaVersion,
		Timestamp:     l.now().UTC(),
		SessionID:     l.sessionID,
		TraceID:       traceID,
		Action:        strings.TrimSpace(in.Action),
		Actor:         actor,
		Outcome:       in.Outcome,
		ActionState:   in.ActionState,
		Target:        in.Target,
		Details:       in.Details,
		BlockedReason: in.BlockedReason,
		BlockingLayer: in.BlockingLayer,
	})
}

// Append chains entry to the last line of the file and writes it.
// Any PrevHash set by the caller is overwritten.
func (l *Ledger) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), auditDirMode); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, auditFileMode)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	last, err := lastLine(file)
	if err != nil {
		return fmt.Errorf("read audit chain head: %w", err)
	}
	if last == nil {
		entry.PrevHash = nil
	} else {
		h := hashLine(last)
		entry.PrevHash = &h
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	encoded = append(encoded, '\n')

	// A final line without its newline must not absorb the new entry.
	terminated, err := endsWithNewline(file)
	if err != nil {
		return fmt.Errorf("read audit file tail: %w", err)
	}
	if !terminated {
		encoded = append([]byte{'\n'}, encoded...)
	}

	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit file: %w", err)
	}
	return nil
}

// VerifyChain walks the file and checks every prev_hash link.
func (l *Ledger) VerifyChain() (ChainResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines, err := l.readLines()
	if err != nil {
		return ChainResult{}, err
	}
	return verifyLines(lines), nil
}

// Tail returns up to n of the most recent entries, oldest first.
func (l *Ledger) Tail(n int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines, err := l.readLines()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			slog.Warn("skipping unreadable audit line", "path", l.path, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *Ledger) readLines() ([][]byte, error) {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	var lines [][]byte
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadBytes('\n')
		line = bytes.TrimSuffix(line, []byte("\n"))
		if len(line) > 0 {
			lines = append(lines, line)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read audit file: %w", err)
		}
	}
	return lines, nil
}

func verifyLines(lines [][]byte) ChainResult {
	for i, line := range lines {
		var head struct {
			PrevHash *string `json:"prev_hash"`
		}
		if err := json.Unmarshal(line, &head); err != nil {
			return broken(len(lines), i, fmt.Sprintf("entry %d is not valid JSON: %v", i, err))
		}
		if i == 0 {
			if head.PrevHash != nil {
				return broken(len(lines), 0, "first entry has a non-null prev_hash")
			}
			continue
		}
		expected := hashLine(lines[i-1])
		if head.PrevHash == nil || *head.PrevHash != expected {
			return broken(len(lines), i, fmt.Sprintf("entry %d prev_hash does not match entry %d", i, i-1))
		}
	}
	return ChainResult{Valid: true, Entries: len(lines)}
}

func broken(total, index int, msg string) ChainResult {
	return ChainResult{Valid: false, Entries: total, BrokenAt: &index, Error: msg}
}

func hashLine(line []byte) string {
	sum := sha256.Sum256(line)
	return hex.EncodeToString(sum[:])
}

func endsWithNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return true, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return last[0] == '\n', nil
}

// lastLine returns the final non-empty line of f without its newline,
// reading backwards so large ledgers are not scanned in full.
func lastLine(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, nil
	}

	var tail []byte
	offset := size
	for offset > 0 {
		chunk := int64(tailChunkSize)
		if offset < chunk {
			chunk = offset
		}
		offset -= chunk
		buf := make([]byte, chunk)
		if _, err := f.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		tail = append(buf, tail...)

		trimmed := bytes.TrimRight(tail, "\n")
		if len(trimmed) == 0 {
			continue
		}
		if idx := bytes.LastIndexByte(trimmed, '\n'); idx >= 0 {
			return trimmed[idx+1:], nil
		}
	}
	trimmed := bytes.TrimRight(tail, "\n")
	if len(trimmed) == 0 {
		return nil, nil
	}
	return trimmed, nil
}
