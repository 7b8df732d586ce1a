package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MEKXH/careagent/internal/audit"
)

// Layer names, in evaluation order.
const (
	LayerToolPolicy    = "tool-policy"
	LayerExecAllowlist = "exec-allowlist"
	LayerCANSInjection = "cans-injection"
	LayerDockerSandbox = "docker-sandbox"
)

// Hook paths recorded by the canary.
const (
	HookBeforeToolCall = "before_tool_call"
	HookDirect         = "direct"
)

// ActionHookCanary is the audit action name of the canary entry.
const ActionHookCanary = "hook_canary"

var (
	// ErrNotActivated is returned by Check before Activate succeeds.
	ErrNotActivated = errors.New("policy: engine checked before activation")
	// ErrAlreadyActivated is returned by a second Activate on one engine.
	ErrAlreadyActivated = errors.New("policy: engine already activated")
)

// Action is a proposed runtime action.
type Action struct {
	Name   string
	Params map[string]any
}

// StringParam returns the trimmed string value of key, if any.
func (a Action) StringParam(key string) string {
	if a.Params == nil {
		return ""
	}
	switch v := a.Params[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	}
	return ""
}

// Decision is the engine's answer for one action.
type Decision struct {
	Allowed bool
	Layer   string
	Reason  string
}

// LayerResult is one layer's verdict. It is never persisted as is.
type LayerResult struct {
	Allowed bool
	Layer   string
	Reason  string
	// Details are merged into the layer's audit entry.
	Details map[string]any
}

// Recorder is the subset of the audit ledger the engine writes to.
type Recorder interface {
	Log(in audit.Input) error
}

// Observer receives one call per completed check.
type Observer interface {
	RecordCheck(decision Decision, elapsed time.Duration)
}
