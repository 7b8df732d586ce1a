package cans_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MEKXH/careagent/internal/cans"
	"github.com/MEKXH/careagent/internal/cans/canstest"
)

func TestParse_ValidDocument(t *testing.T) {
	raw := canstest.Document(canstest.Options{Body: "\nfree text\n"})
	p, err := cans.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if p.Body != "\nfree text\n" {
		t.Fatalf("unexpected body %q", p.Body)
	}
	if _, ok := p.Fields["provider"]; !ok {
		t.Fatal("expected provider in parsed fields")
	}
}

func TestParse_DelimiterFailuresAreDistinct(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "no opening", raw: "version: 1\n---\n", want: cans.ErrMissingOpeningDelimiter},
		{name: "empty file", raw: "", want: cans.ErrMissingOpeningDelimiter},
		{name: "no closing", raw: "---\nversion: \"1\"\nbody text\n", want: cans.ErrMissingClosingDelimiter},
		{name: "only opening", raw: "---", want: cans.ErrMissingClosingDelimiter},
		{name: "bad yaml", raw: "---\nversion: [unclosed\n---\n", want: cans.ErrMalformedBlock},
		{name: "scalar block", raw: "---\njust a string\n---\n", want: cans.ErrMalformedBlock},
		{name: "empty block", raw: "---\n---\nbody\n", want: cans.ErrMalformedBlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cans.Parse([]byte(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParse_CRLFAndTrailingDelimiter(t *testing.T) {
	raw := strings.ReplaceAll(canstest.Document(canstest.Options{}), "\n", "\r\n")
	if _, err := cans.Parse([]byte(raw)); err != nil {
		t.Fatalf("expected CRLF document to parse, got %v", err)
	}

	noBody := "---\nversion: \"1\"\n---"
	p, err := cans.Parse([]byte(noBody))
	if err != nil {
		t.Fatalf("expected closing delimiter at EOF to parse, got %v", err)
	}
	if p.Body != "" {
		t.Fatalf("expected empty body, got %q", p.Body)
	}
}

func TestValidate_ValidDocument(t *testing.T) {
	doc, _, err := cans.Load([]byte(canstest.Document(canstest.Options{
		Permitted:  []string{"chart_operative_note", "exec"},
		Prohibited: []string{"order_controlled_substance"},
	})))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if doc.Provider.Name != "Dr. Ada Example" {
		t.Fatalf("unexpected provider name %q", doc.Provider.Name)
	}
	if !doc.Permits("exec") || doc.Permits("unknown") {
		t.Fatal("unexpected permitted list")
	}
	if !doc.Prohibits("order_controlled_substance") {
		t.Fatal("expected prohibited action")
	}
	if doc.Autonomy.Chart != cans.TierAutonomous {
		t.Fatalf("expected chart autonomous, got %q", doc.Autonomy.Chart)
	}
	if doc.Consent.AcknowledgedAt != "2026-01-15T10:00:00Z" {
		t.Fatalf("unexpected acknowledged_at %q", doc.Consent.AcknowledgedAt)
	}
	if doc.Hardening != nil || doc.Voice != nil {
		t.Fatal("expected absent optional sections to stay nil")
	}
}

func validationErrors(t *testing.T, raw string) []cans.FieldError {
	t.Helper()
	_, _, err := cans.Load([]byte(raw))
	var ve *cans.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(ve.Errors) == 0 {
		t.Fatal("expected at least one field error")
	}
	return ve.Errors
}

func hasPath(errs []cans.FieldError, path string) bool {
	for _, fe := range errs {
		if fe.Path == path {
			return true
		}
	}
	return false
}

func TestValidate_MissingLicensesNamesField(t *testing.T) {
	raw := strings.Replace(canstest.Document(canstest.Options{}), "  licenses: [MD-CA-A123456]\n", "", 1)
	errs := validationErrors(t, raw)
	if !hasPath(errs, "/provider/licenses") {
		t.Fatalf("expected error at /provider/licenses, got %+v", errs)
	}
}

func TestValidate_BadAutonomyTier(t *testing.T) {
	raw := strings.Replace(canstest.Document(canstest.Options{}), "  chart: autonomous\n", "  chart: yolo\n", 1)
	errs := validationErrors(t, raw)
	if !hasPath(errs, "/autonomy/chart") {
		t.Fatalf("expected error at /autonomy/chart, got %+v", errs)
	}
}

func TestValidate_CollectsEveryViolation(t *testing.T) {
	raw := canstest.Document(canstest.Options{})
	raw = strings.Replace(raw, "  chart: autonomous\n", "  chart: yolo\n", 1)
	raw = strings.Replace(raw, "  audit_consent: true\n", "  audit_consent: \"yes\"\n", 1)
	raw = strings.Replace(raw, "  types: [physician]\n", "  types: []\n", 1)
	errs := validationErrors(t, raw)
	for _, path := range []string{"/autonomy/chart", "/consent/audit_consent", "/provider/types"} {
		if !hasPath(errs, path) {
			t.Fatalf("expected error at %s, got %+v", path, errs)
		}
	}
}

func TestValidate_EmptyPermittedActions(t *testing.T) {
	raw := strings.Replace(canstest.Document(canstest.Options{}), "  permitted_actions:\n    - chart_operative_note\n", "  permitted_actions: []\n", 1)
	errs := validationErrors(t, raw)
	if !hasPath(errs, "/scope/permitted_actions") {
		t.Fatalf("expected error at /scope/permitted_actions, got %+v", errs)
	}
}

func TestValidate_UnknownTopLevelKey(t *testing.T) {
	raw := strings.Replace(canstest.Document(canstest.Options{}), "version: \"1.0\"\n", "version: \"1.0\"\nsurprise: true\n", 1)
	validationErrors(t, raw)
}

func TestValidate_BadTimestamp(t *testing.T) {
	raw := strings.Replace(canstest.Document(canstest.Options{}), "\"2026-01-15T10:00:00Z\"", "\"last tuesday\"", 1)
	errs := validationErrors(t, raw)
	if !hasPath(errs, "/consent/acknowledged_at") {
		t.Fatalf("expected error at /consent/acknowledged_at, got %+v", errs)
	}
}

func TestRender_RoundTripPreservesOptionalSections(t *testing.T) {
	withHardening := canstest.Document(canstest.Options{
		Hardening: "  tool_policy_lockdown: true\n  exec_allowlist: true\n  cans_protocol_injection: true\n  docker_sandbox: false\n  safety_guard: true\n  audit_trail: true\n",
	})
	doc, parsed, err := cans.Load([]byte(withHardening))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	out, err := cans.Render(doc, parsed.Body)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	again, reparsed, err := cans.Load(out)
	if err != nil {
		t.Fatalf("reload rendered document: %v", err)
	}
	if again.Hardening == nil || !again.Hardening.ToolPolicyLockdown || again.Hardening.DockerSandbox {
		t.Fatalf("expected hardening preserved, got %+v", again.Hardening)
	}
	if again.Voice != nil {
		t.Fatal("expected voice to remain absent")
	}
	if reparsed.Body != parsed.Body {
		t.Fatalf("expected body preserved, got %q", reparsed.Body)
	}
	if strings.Contains(string(out), "voice:") || strings.Contains(string(out), "cross_installation:") {
		t.Fatalf("expected absent sections to stay absent:\n%s", out)
	}
}

func TestAutonomy_TierFor(t *testing.T) {
	a := cans.Autonomy{Chart: cans.TierAutonomous, Coordinate: cans.TierManual}
	if tier, ok := a.TierFor("chart"); !ok || tier != cans.TierAutonomous {
		t.Fatalf("unexpected chart tier %q", tier)
	}
	if tier, ok := a.TierFor("coordinate"); !ok || tier != cans.TierManual {
		t.Fatalf("unexpected coordinate tier %q", tier)
	}
	if _, ok := a.TierFor("dance"); ok {
		t.Fatal("expected unknown action to be rejected")
	}
	if len(cans.AtomicActions) != 7 {
		t.Fatalf("expected 7 atomic actions, got %d", len(cans.AtomicActions))
	}
}
