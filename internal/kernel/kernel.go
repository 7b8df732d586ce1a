// Package kernel boots the trust kernel from configuration.
package kernel

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MEKXH/careagent/internal/activation"
	"github.com/MEKXH/careagent/internal/audit"
	"github.com/MEKXH/careagent/internal/cans"
	"github.com/MEKXH/careagent/internal/config"
	"github.com/MEKXH/careagent/internal/host"
	"github.com/MEKXH/careagent/internal/integrity"
	"github.com/MEKXH/careagent/internal/metrics"
	"github.com/MEKXH/careagent/internal/policy"
)

// Audit actions written by the kernel itself.
const (
	ActionActivation = "cans_activation"
	ActionRepin      = "cans_repin"
)

// ErrInactive is returned when an action is submitted while the policy
// document is not active.
var ErrInactive = errors.New("kernel: clinical mode is inactive")

// Options are the resolved paths and switches for one kernel.
type Options struct {
	Workspace     string
	CANSFile      string
	AuditFile     string
	IntegrityFile string
	Actor         audit.Actor
	SandboxProbe  policy.SandboxProbe
}

// OptionsFromConfig resolves kernel options against the configured workspace.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	workspace, err := cfg.WorkspacePathChecked()
	if err != nil {
		return Options{}, fmt.Errorf("invalid workspace: %w", err)
	}
	k := cfg.Kernel
	return Options{
		Workspace:     workspace,
		CANSFile:      config.ResolvePath(workspace, k.CANSFile),
		AuditFile:     config.ResolvePath(workspace, k.AuditFile),
		IntegrityFile: config.ResolvePath(workspace, k.IntegrityFile),
		Actor:         audit.Actor(k.Actor),
		SandboxProbe:  sandboxProbe(k.SandboxProbe),
	}, nil
}

func sandboxProbe(mode string) policy.SandboxProbe {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case config.SandboxProbeOn:
		return func() bool { return true }
	case config.SandboxProbeOff:
		return func() bool { return false }
	default:
		return policy.DetectContainer
	}
}

// Kernel is one booted trust kernel.
type Kernel struct {
	opts       Options
	ledger     *audit.Ledger
	store      *integrity.Store
	gate       *activation.Gate
	engine     *policy.Engine
	host       *host.Registry
	metrics    *metrics.DecisionMetrics
	activation activation.Result
}

// Boot runs the activation gate and, when the document is active, binds a
// fresh engine to the host registry. An inactive document is not an error.
func Boot(opts Options) (*Kernel, error) {
	if opts.Actor == "" {
		opts.Actor = audit.ActorProvider
	}
	k := &Kernel{
		opts:    opts,
		ledger:  audit.NewLedger(opts.AuditFile),
		store:   integrity.NewStore(opts.IntegrityFile),
		host:    host.NewRegistry(),
		metrics: metrics.NewDecisionMetrics(StateDir(opts.Workspace)),
	}
	k.gate = activation.NewGate(opts.CANSFile, k.store, k.auditGateFailure)
	k.engine = policy.NewEngine(
		policy.WithSandboxProbe(opts.SandboxProbe),
		policy.WithObserver(k.metrics),
	)

	res, err := k.gate.Check()
	if err != nil {
		return nil, fmt.Errorf("activation check: %w", err)
	}
	k.activation = res

	if err := k.logActivation(res); err != nil {
		return nil, err
	}
	if err := k.metrics.RecordActivation(res.Active); err != nil {
		slog.Warn("failed to record activation metrics", "error", err)
	}

	if !res.Active {
		slog.Warn("clinical mode inactive", "reason", res.Reason, "path", opts.CANSFile)
		return k, nil
	}
	if err := k.engine.Activate(res.Document, k.ledger, k.host); err != nil {
		return nil, fmt.Errorf("activate policy engine: %w", err)
	}
	slog.Info("clinical mode active", "path", opts.CANSFile, "session_id", k.ledger.SessionID(), "pinned", res.Pinned)
	return k, nil
}

// StateDir returns the directory holding kernel metrics for workspace.
func StateDir(workspace string) string {
	return filepath.Join(workspace, "state")
}

func (k *Kernel) auditGateFailure(action string, details map[string]any) error {
	return k.ledger.Log(audit.Input{
		Action:      action,
		Actor:       audit.ActorSystem,
		Outcome:     audit.OutcomeError,
		ActionState: audit.StateGenerated,
		Target:      k.opts.CANSFile,
		Details:     details,
	})
}

func (k *Kernel) logActivation(res activation.Result) error {
	details := map[string]any{"pinned": res.Pinned}
	outcome := audit.OutcomeActive
	if !res.Active {
		outcome = audit.OutcomeInactive
		details["reason"] = res.Reason
		if len(res.Errors) > 0 {
			details["error_count"] = len(res.Errors)
		}
	}
	if err := k.ledger.Log(audit.Input{
		Action:      ActionActivation,
		Actor:       audit.ActorSystem,
		Outcome:     outcome,
		ActionState: audit.StateGenerated,
		Target:      k.opts.CANSFile,
		Details:     details,
	}); err != nil {
		return fmt.Errorf("write activation entry: %w", err)
	}
	return nil
}

// Active reports whether clinical mode is on.
func (k *Kernel) Active() bool {
	return k.activation.Active
}

// Activation returns the gate result from boot.
func (k *Kernel) Activation() activation.Result {
	return k.activation
}

// Options returns the resolved options.
func (k *Kernel) Options() Options {
	return k.opts
}

// Ledger returns the audit ledger.
func (k *Kernel) Ledger() *audit.Ledger {
	return k.ledger
}

// Store returns the integrity store.
func (k *Kernel) Store() *integrity.Store {
	return k.store
}

// Engine returns the policy engine.
func (k *Kernel) Engine() *policy.Engine {
	return k.engine
}

// Host returns the host registry the engine is bound to.
func (k *Kernel) Host() *host.Registry {
	return k.host
}

// Metrics returns the decision metrics recorder.
func (k *Kernel) Metrics() *metrics.DecisionMetrics {
	return k.metrics
}

// StartSession delivers bootstrap files to a new session.
func (k *Kernel) StartSession() (*host.Session, error) {
	if !k.Active() {
		return nil, ErrInactive
	}
	return k.host.StartSession(), nil
}

// Submit runs action through the host's pre-action hooks, as the platform
// would before a tool call.
func (k *Kernel) Submit(action policy.Action) (policy.Decision, error) {
	if !k.Active() {
		return policy.Decision{}, ErrInactive
	}
	return k.host.RunPreAction(action), nil
}

// Repin re-establishes the integrity baseline from the current document.
// The document must parse and validate; the re-pin is audited with the
// configured operator actor.
func (k *Kernel) Repin() (integrity.Record, error) {
	raw, err := os.ReadFile(k.opts.CANSFile)
	if err != nil {
		return integrity.Record{}, fmt.Errorf("read policy document: %w", err)
	}
	if _, _, err := cans.Load(raw); err != nil {
		return integrity.Record{}, fmt.Errorf("refusing to pin invalid document: %w", err)
	}

	previous, err := k.store.Load()
	if err != nil {
		slog.Warn("replacing unreadable integrity record", "path", k.store.Path(), "error", err)
		previous = nil
	}
	rec, err := k.store.Pin(raw)
	if err != nil {
		return integrity.Record{}, err
	}

	details := map[string]any{"hash": rec.Hash}
	if previous != nil {
		details["previous_hash"] = previous.Hash
	}
	if err := k.ledger.Log(audit.Input{
		Action:      ActionRepin,
		Actor:       k.opts.Actor,
		Outcome:     audit.OutcomeAllowed,
		ActionState: audit.StateApproved,
		Target:      k.opts.CANSFile,
		Details:     details,
	}); err != nil {
		return rec, fmt.Errorf("write re-pin entry: %w", err)
	}
	return rec, nil
}
