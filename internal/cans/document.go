package cans

// FileName is the conventional policy document name in a workspace.
const FileName = "CANS.md"

// Tier is the autonomy level granted for one atomic action.
type Tier string

const (
	TierAutonomous Tier = "autonomous"
	TierSupervised Tier = "supervised"
	TierManual     Tier = "manual"
)

// AtomicActions lists the seven atomic clinical actions in canonical order.
var AtomicActions = []string{"chart", "order", "charge", "perform", "interpret", "educate", "coordinate"}

// Document is a validated CANS policy document. Treat it as read-only;
// changes go through a new document, validation, and a re-pin.
type Document struct {
	Version           string             `yaml:"version" json:"version"`
	Provider          Provider           `yaml:"provider" json:"provider"`
	Scope             Scope              `yaml:"scope" json:"scope"`
	Autonomy          Autonomy           `yaml:"autonomy" json:"autonomy"`
	Consent           Consent            `yaml:"consent" json:"consent"`
	Skills            Skills             `yaml:"skills" json:"skills"`
	Voice             *Voice             `yaml:"voice,omitempty" json:"voice,omitempty"`
	Hardening         *Hardening         `yaml:"hardening,omitempty" json:"hardening,omitempty"`
	CrossInstallation *CrossInstallation `yaml:"cross_installation,omitempty" json:"cross_installation,omitempty"`
}

// Provider is the clinician identity the assistant acts for.
type Provider struct {
	Name           string         `yaml:"name" json:"name"`
	NPI            string         `yaml:"npi,omitempty" json:"npi,omitempty"`
	Types          []string       `yaml:"types" json:"types"`
	Degrees        []string       `yaml:"degrees" json:"degrees"`
	Licenses       []string       `yaml:"licenses" json:"licenses"`
	Certifications []string       `yaml:"certifications" json:"certifications"`
	Specialty      string         `yaml:"specialty,omitempty" json:"specialty,omitempty"`
	Subspecialty   string         `yaml:"subspecialty,omitempty" json:"subspecialty,omitempty"`
	Organizations  []Organization `yaml:"organizations" json:"organizations"`
}

// Organization is an institution the provider holds privileges at.
type Organization struct {
	Name       string   `yaml:"name" json:"name"`
	Privileges []string `yaml:"privileges,omitempty" json:"privileges,omitempty"`
}

// Scope is the action whitelist and blacklist.
type Scope struct {
	PermittedActions  []string `yaml:"permitted_actions" json:"permitted_actions"`
	ProhibitedActions []string `yaml:"prohibited_actions,omitempty" json:"prohibited_actions,omitempty"`
}

// Autonomy maps each atomic action to a tier.
type Autonomy struct {
	Chart      Tier `yaml:"chart" json:"chart"`
	Order      Tier `yaml:"order" json:"order"`
	Charge     Tier `yaml:"charge" json:"charge"`
	Perform    Tier `yaml:"perform" json:"perform"`
	Interpret  Tier `yaml:"interpret" json:"interpret"`
	Educate    Tier `yaml:"educate" json:"educate"`
	Coordinate Tier `yaml:"coordinate" json:"coordinate"`
}

// TierFor returns the tier configured for an atomic action name.
func (a Autonomy) TierFor(action string) (Tier, bool) {
	switch action {
	case "chart":
		return a.Chart, true
	case "order":
		return a.Order, true
	case "charge":
		return a.Charge, true
	case "perform":
		return a.Perform, true
	case "interpret":
		return a.Interpret, true
	case "educate":
		return a.Educate, true
	case "coordinate":
		return a.Coordinate, true
	}
	return "", false
}

// Consent records the provider's acknowledgments.
type Consent struct {
	HIPAAWarningAcknowledged bool   `yaml:"hipaa_warning_acknowledged" json:"hipaa_warning_acknowledged"`
	SyntheticDataOnly        bool   `yaml:"synthetic_data_only" json:"synthetic_data_only"`
	AuditConsent             bool   `yaml:"audit_consent" json:"audit_consent"`
	AcknowledgedAt           string `yaml:"acknowledged_at" json:"acknowledged_at"`
}

// Skills restricts which skills may load. Empty means unrestricted.
type Skills struct {
	Authorized []string `yaml:"authorized" json:"authorized"`
}

// Voice holds optional per-action writing directives.
type Voice struct {
	Chart      string `yaml:"chart,omitempty" json:"chart,omitempty"`
	Order      string `yaml:"order,omitempty" json:"order,omitempty"`
	Charge     string `yaml:"charge,omitempty" json:"charge,omitempty"`
	Perform    string `yaml:"perform,omitempty" json:"perform,omitempty"`
	Interpret  string `yaml:"interpret,omitempty" json:"interpret,omitempty"`
	Educate    string `yaml:"educate,omitempty" json:"educate,omitempty"`
	Coordinate string `yaml:"coordinate,omitempty" json:"coordinate,omitempty"`
}

// Hardening toggles individual enforcement features.
type Hardening struct {
	ToolPolicyLockdown    bool `yaml:"tool_policy_lockdown" json:"tool_policy_lockdown"`
	ExecAllowlist         bool `yaml:"exec_allowlist" json:"exec_allowlist"`
	CANSProtocolInjection bool `yaml:"cans_protocol_injection" json:"cans_protocol_injection"`
	DockerSandbox         bool `yaml:"docker_sandbox" json:"docker_sandbox"`
	SafetyGuard           bool `yaml:"safety_guard" json:"safety_guard"`
	AuditTrail            bool `yaml:"audit_trail" json:"audit_trail"`
}

// CrossInstallation is consent for talking to other installations.
type CrossInstallation struct {
	AllowInbound  bool `yaml:"allow_inbound" json:"allow_inbound"`
	AllowOutbound bool `yaml:"allow_outbound" json:"allow_outbound"`
}

// Permits reports whether action is on the permitted list.
func (d *Document) Permits(action string) bool {
	return contains(d.Scope.PermittedActions, action)
}

// Prohibits reports whether action is on the prohibited list.
func (d *Document) Prohibits(action string) bool {
	return contains(d.Scope.ProhibitedActions, action)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
