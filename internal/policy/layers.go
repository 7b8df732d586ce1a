package policy

import (
	"os"
	"strings"

	"github.com/MEKXH/careagent/internal/cans"
)

// Layer is one independent check in the enforcement pipeline.
type Layer interface {
	Name() string
	Evaluate(doc *cans.Document, action Action, session SessionState) LayerResult
}

// SessionState is the per-activation state layers may read.
type SessionState struct {
	BootstrapDelivered bool
}

// SandboxProbe reports whether the process runs inside a container sandbox.
type SandboxProbe func() bool

// DefaultLayers returns L1..L4 in evaluation order.
func DefaultLayers(probe SandboxProbe) []Layer {
	if probe == nil {
		probe = DetectContainer
	}
	return []Layer{
		toolPolicyLayer{},
		execAllowlistLayer{},
		cansInjectionLayer{},
		dockerSandboxLayer{probe: probe},
	}
}

// toolPolicyLayer denies by default: an action must be permitted and
// must not be prohibited.
type toolPolicyLayer struct{}

func (toolPolicyLayer) Name() string { return LayerToolPolicy }

func (toolPolicyLayer) Evaluate(doc *cans.Document, action Action, _ SessionState) LayerResult {
	name := strings.TrimSpace(action.Name)
	if doc.Prohibits(name) {
		return LayerResult{
			Allowed: false,
			Layer:   LayerToolPolicy,
			Reason:  "action " + quote(name) + " is listed in scope.prohibited_actions",
		}
	}
	if !doc.Permits(name) {
		return LayerResult{
			Allowed: false,
			Layer:   LayerToolPolicy,
			Reason:  "action " + quote(name) + " is not listed in scope.permitted_actions",
		}
	}
	return LayerResult{Allowed: true, Layer: LayerToolPolicy}
}

type execAllowlistLayer struct{}

func (execAllowlistLayer) Name() string { return LayerExecAllowlist }

func (execAllowlistLayer) Evaluate(doc *cans.Document, action Action, _ SessionState) LayerResult {
	if !IsExecAction(action.Name) {
		return LayerResult{
			Allowed: true,
			Layer:   LayerExecAllowlist,
			Details: map[string]any{"applicable": false},
		}
	}

	command := ExecCommand(action)
	details := map[string]any{
		"applicable": true,
		"executable": LeadingExecutable(command),
	}
	if ok, reason := CheckExecCommand(command); !ok {
		return LayerResult{Allowed: false, Layer: LayerExecAllowlist, Reason: reason, Details: details}
	}
	return LayerResult{Allowed: true, Layer: LayerExecAllowlist, Details: details}
}

// cansInjectionLayer never denies; it records that the protocol content
// is in effect for the session.
type cansInjectionLayer struct{}

func (cansInjectionLayer) Name() string { return LayerCANSInjection }

func (cansInjectionLayer) Evaluate(doc *cans.Document, _ Action, session SessionState) LayerResult {
	enabled := doc.Hardening == nil || doc.Hardening.CANSProtocolInjection
	return LayerResult{
		Allowed: true,
		Layer:   LayerCANSInjection,
		Details: map[string]any{
			"injection_enabled":   enabled,
			"bootstrap_delivered": session.BootstrapDelivered,
		},
	}
}

// dockerSandboxLayer is report-only.
type dockerSandboxLayer struct {
	probe SandboxProbe
}

func (dockerSandboxLayer) Name() string { return LayerDockerSandbox }

func (l dockerSandboxLayer) Evaluate(doc *cans.Document, _ Action, _ SessionState) LayerResult {
	configured := doc.Hardening != nil && doc.Hardening.DockerSandbox
	detected := l.probe != nil && l.probe()
	return LayerResult{
		Allowed: true,
		Layer:   LayerDockerSandbox,
		Details: map[string]any{
			"sandbox_configured": configured,
			"sandbox_detected":   detected,
			"report_only":        true,
		},
	}
}

// DetectContainer looks for the usual container markers.
func DetectContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if strings.TrimSpace(os.Getenv("container")) != "" {
		return true
	}
	data, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, "docker") || strings.Contains(content, "containerd") || strings.Contains(content, "kubepods")
}
