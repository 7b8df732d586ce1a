package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	recordFileMode = 0600
	recordDirMode  = 0755
)

// Record is the pinned hash of a policy document.
type Record struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the outcome of Verify.
type Result struct {
	Valid bool
	// Pinned is true when Verify established the first baseline.
	Pinned bool
	Reason string
}

// Store persists the integrity record for one document.
type Store struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewStore creates a store backed by the JSON file at path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the record file path.
func (s *Store) Path() string {
	return s.path
}

// ComputeHash returns the SHA-256 hex digest of raw.
func ComputeHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// VerifyRecord compares raw against rec without touching storage.
// A nil record is not valid here; trust-on-first-use is the Store's job.
func VerifyRecord(rec *Record, raw []byte) Result {
	if rec == nil {
		return Result{Valid: false, Reason: "no integrity record"}
	}
	actual := ComputeHash(raw)
	if !strings.EqualFold(strings.TrimSpace(rec.Hash), actual) {
		return Result{
			Valid: false,
			Reason: fmt.Sprintf("CANS.md integrity check failed: SHA-256 hash mismatch (pinned %s, found %s); the file may have been modified outside an approved edit",
				shortHash(rec.Hash), shortHash(actual)),
		}
	}
	return Result{Valid: true}
}

// Verify checks raw against the stored record. When no record exists,
// raw becomes the baseline and the result is valid.
func (s *Store) Verify(raw []byte) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLocked()
	if err != nil {
		return Result{}, err
	}
	if rec == nil {
		if err := s.saveLocked(Record{Hash: ComputeHash(raw), Timestamp: s.now().UTC()}); err != nil {
			return Result{}, err
		}
		return Result{Valid: true, Pinned: true}, nil
	}
	return VerifyRecord(rec, raw), nil
}

// Pin overwrites the stored record with the hash of raw. It is reserved
// for operator-approved edits.
func (s *Store) Pin(raw []byte) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{Hash: ComputeHash(raw), Timestamp: s.now().UTC()}
	if err := s.saveLocked(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Load returns the stored record, or nil when none exists.
func (s *Store) Load() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

func (s *Store) loadLocked() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read integrity record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse integrity record: %w", err)
	}
	if strings.TrimSpace(rec.Hash) == "" {
		return nil, fmt.Errorf("parse integrity record: empty hash")
	}
	return &rec, nil
}

func (s *Store) saveLocked(rec Record) error {
	encoded, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal integrity record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, recordDirMode); err != nil {
		return fmt.Errorf("create integrity dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "integrity-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp integrity record: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(encoded); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp integrity record: %w", err)
	}
	if err := tmpFile.Chmod(recordFileMode); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp integrity record: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp integrity record: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		if removeErr := os.Remove(s.path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("replace integrity record: rename failed (%v), remove failed (%v)", err, removeErr)
		}
		if retryErr := os.Rename(tmpPath, s.path); retryErr != nil {
			return fmt.Errorf("replace integrity record after remove: %w", retryErr)
		}
	}
	return nil
}

func shortHash(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
