package activation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MEKXH/careagent/internal/cans"
	"github.com/MEKXH/careagent/internal/integrity"
)

// Audit action names fired by the gate on failure.
const (
	ActionParseError       = "cans_parse_error"
	ActionValidationError  = "cans_validation_error"
	ActionIntegrityFailure = "cans_integrity_failure"
)

// AuditFunc receives one call per failed check. A non-nil error aborts
// the check as a storage failure.
type AuditFunc func(action string, details map[string]any) error

// Result is the outcome of one activation check.
type Result struct {
	Active   bool
	Document *cans.Document
	Reason   string
	Errors   []cans.FieldError
	// Pinned is true when this check established the integrity baseline.
	Pinned bool
}

// Gate decides whether the policy document is currently active.
type Gate struct {
	docPath string
	store   *integrity.Store
	audit   AuditFunc
}

// NewGate creates a gate over the document at docPath.
func NewGate(docPath string, store *integrity.Store, audit AuditFunc) *Gate {
	return &Gate{docPath: docPath, store: store, audit: audit}
}

// DocumentPath returns the policy document path.
func (g *Gate) DocumentPath() string {
	return g.docPath
}

// Check reads the document fresh and runs parse, validate and integrity
// verification in that order, stopping at the first failure. Storage
// failures are returned as errors.
func (g *Gate) Check() (Result, error) {
	raw, err := os.ReadFile(g.docPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Reason: fmt.Sprintf("%s not found", filepath.Base(g.docPath))}, nil
		}
		return Result{}, fmt.Errorf("read policy document: %w", err)
	}

	parsed, err := cans.Parse(raw)
	if err != nil {
		reason := err.Error()
		if err := g.fire(ActionParseError, map[string]any{"reason": reason, "path": g.docPath}); err != nil {
			return Result{}, err
		}
		return Result{Reason: reason}, nil
	}

	doc, err := cans.Validate(parsed)
	if err != nil {
		var ve *cans.ValidationError
		if !errors.As(err, &ve) {
			return Result{}, err
		}
		if err := g.fire(ActionValidationError, map[string]any{"errors": fieldErrorDetails(ve.Errors), "path": g.docPath}); err != nil {
			return Result{}, err
		}
		return Result{Reason: "validation failed", Errors: ve.Errors}, nil
	}

	verdict, err := g.store.Verify(raw)
	if err != nil {
		return Result{}, err
	}
	if !verdict.Valid {
		if err := g.fire(ActionIntegrityFailure, map[string]any{"reason": verdict.Reason, "path": g.docPath}); err != nil {
			return Result{}, err
		}
		return Result{Reason: verdict.Reason}, nil
	}

	return Result{Active: true, Document: doc, Pinned: verdict.Pinned}, nil
}

func (g *Gate) fire(action string, details map[string]any) error {
	if g.audit == nil {
		return nil
	}
	if err := g.audit(action, details); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func fieldErrorDetails(errs []cans.FieldError) []any {
	out := make([]any, 0, len(errs))
	for _, fe := range errs {
		out = append(out, map[string]any{"path": fe.Path, "message": fe.Message})
	}
	return out
}
