package audit

import "time"

// SchemaVersion is stamped on every entry written by this package.
const SchemaVersion = "1"

// Outcome is the decision outcome recorded in an entry.
type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeDenied   Outcome = "denied"
	OutcomeError    Outcome = "error"
	OutcomeActive   Outcome = "active"
	OutcomeInactive Outcome = "inactive"
)

// Actor identifies who initiated the audited action.
type Actor string

const (
	ActorAgent    Actor = "agent"
	ActorProvider Actor = "provider"
	ActorSystem   Actor = "system"
)

// ActionState describes where an action is in its lifecycle.
type ActionState string

const (
	StateProposed  ActionState = "ai-proposed"
	StateApproved  ActionState = "provider-approved"
	StateRejected  ActionState = "provider-rejected"
	StateGenerated ActionState = "system-generated"
)

// Entry is one ledger record. Field order here is the canonical
// serialization order and must not change.
type Entry struct {
	SchemaVersion string         `json:"schema_version"`
	Timestamp     time.Time      `json:"timestamp"`
	SessionID     string         `json:"session_id"`
	TraceID       string         `json:"trace_id"`
	Action        string         `json:"action"`
	Actor         Actor          `json:"actor"`
	Outcome       Outcome        `json:"outcome"`
	ActionState   ActionState    `json:"action_state,omitempty"`
	Target        string         `json:"target,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	BlockedReason string         `json:"blocked_reason,omitempty"`
	BlockingLayer string         `json:"blocking_layer,omitempty"`
	PrevHash      *string        `json:"prev_hash"`
}

// Input is an entry without the fields the ledger owns.
type Input struct {
	TraceID       string
	Action        string
	Actor         Actor
	Outcome       Outcome
	ActionState   ActionState
	Target        string
	Details       map[string]any
	BlockedReason string
	BlockingLayer string
}

// ChainResult reports the outcome of VerifyChain.
type ChainResult struct {
	Valid    bool   `json:"valid"`
	Entries  int    `json:"entries"`
	BrokenAt *int   `json:"broken_at,omitempty"`
	Error    string `json:"error,omitempty"`
}
