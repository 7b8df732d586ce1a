package policy

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/careagent/internal/audit"
	"github.com/MEKXH/careagent/internal/cans"
	"github.com/google/uuid"
)

// Engine enforces an activated CANS document on proposed actions.
type Engine struct {
	layers   []Layer
	observer Observer
	now      func() time.Time

	mu                 sync.Mutex
	doc                *cans.Document
	ledger             Recorder
	canaryPending      bool
	bootstrapDelivered bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLayers replaces the default layer pipeline.
func WithLayers(layers ...Layer) Option {
	return func(e *Engine) {
		e.layers = append([]Layer(nil), layers...)
	}
}

// WithSandboxProbe sets the container probe used by the default layers.
func WithSandboxProbe(probe SandboxProbe) Option {
	return func(e *Engine) {
		e.layers = DefaultLayers(probe)
	}
}

// WithObserver attaches an observer notified after every check.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// NewEngine returns an unactivated engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		layers: DefaultLayers(nil),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Activate binds doc and ledger to the engine, registers hooks with host
// (which may be nil) and arms the canary.
func (e *Engine) Activate(doc *cans.Document, ledger Recorder, host Host) error {
	if doc == nil {
		return fmt.Errorf("policy: activate: document is required")
	}
	if ledger == nil {
		return fmt.Errorf("policy: activate: ledger is required")
	}

	e.mu.Lock()
	if e.doc != nil {
		e.mu.Unlock()
		return ErrAlreadyActivated
	}
	e.doc = doc
	e.ledger = ledger
	e.canaryPending = true
	e.bootstrapDelivered = false
	e.mu.Unlock()

	if host != nil {
		host.RegisterPreActionHook(e.preActionHook)
		host.RegisterBootstrapHook(e.bootstrapHook)
	}
	return nil
}

// Activated reports whether Activate has succeeded.
func (e *Engine) Activated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc != nil
}

// Document returns the active document, or nil.
func (e *Engine) Document() *cans.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc
}

// Check runs action through every layer. It returns ErrNotActivated
// before Activate, and any audit write failure as an error.
func (e *Engine) Check(action Action) (Decision, error) {
	return e.check(action, HookDirect)
}

func (e *Engine) check(action Action, hook string) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doc == nil {
		return Decision{}, ErrNotActivated
	}

	start := e.now()
	traceID := uuid.NewString()
	name := strings.TrimSpace(action.Name)

	if e.canaryPending {
		if err := e.ledger.Log(audit.Input{
			TraceID:     traceID,
			Action:      ActionHookCanary,
			Actor:       audit.ActorSystem,
			Outcome:     audit.OutcomeAllowed,
			ActionState: audit.StateGenerated,
			Target:      name,
			Details: map[string]any{
				"status": "verified",
				"hook":   hook,
			},
		}); err != nil {
			return Decision{}, fmt.Errorf("write hook canary: %w", err)
		}
		e.canaryPending = false
	}

	session := SessionState{BootstrapDelivered: e.bootstrapDelivered}
	decision := Decision{Allowed: true}
	for _, layer := range e.layers {
		res := layer.Evaluate(e.doc, action, session)
		if res.Layer == "" {
			res.Layer = layer.Name()
		}
		if err := e.ledger.Log(layerEntry(traceID, name, action, res)); err != nil {
			return Decision{}, fmt.Errorf("write %s audit entry: %w", res.Layer, err)
		}
		if !res.Allowed {
			decision = Decision{Allowed: false, Layer: res.Layer, Reason: res.Reason}
			break
		}
	}

	if e.observer != nil {
		e.observer.RecordCheck(decision, e.now().Sub(start))
	}
	return decision, nil
}

func layerEntry(traceID, name string, action Action, res LayerResult) audit.Input {
	details := make(map[string]any, len(res.Details)+2)
	for k, v := range res.Details {
		details[k] = v
	}
	details["layer"] = res.Layer
	if res.Reason != "" {
		details["reason"] = res.Reason
	}

	in := audit.Input{
		TraceID:     traceID,
		Action:      name,
		Actor:       audit.ActorAgent,
		Outcome:     audit.OutcomeAllowed,
		ActionState: audit.StateProposed,
		Target:      actionTarget(action),
		Details:     details,
	}
	if !res.Allowed {
		in.Outcome = audit.OutcomeDenied
		in.BlockingLayer = res.Layer
		in.BlockedReason = res.Reason
	}
	return in
}

func actionTarget(action Action) string {
	if IsExecAction(action.Name) {
		return ExecCommand(action)
	}
	return action.StringParam("target")
}

// preActionHook fails closed when the check itself cannot complete.
func (e *Engine) preActionHook(action Action) Decision {
	decision, err := e.check(action, HookBeforeToolCall)
	if err != nil {
		slog.Error("policy check failed; denying action", "action", action.Name, "error", err)
		return Decision{Allowed: false, Reason: "policy check failed: " + err.Error()}
	}
	return decision
}

func (e *Engine) bootstrapHook(ctx BootstrapContext) {
	if ctx == nil {
		return
	}
	e.mu.Lock()
	doc := e.doc
	e.mu.Unlock()
	if doc == nil {
		return
	}

	ctx.AddFile(BootstrapFileName, BuildBootstrapText(doc))

	e.mu.Lock()
	e.bootstrapDelivered = true
	e.mu.Unlock()
}
