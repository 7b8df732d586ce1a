// Package canstest builds CANS documents for tests in other packages.
package canstest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Options tweaks the generated document.
type Options struct {
	Permitted  []string
	Prohibited []string
	Hardening  string
	Body       string
}

// Document returns a valid CANS.md text.
func Document(opts Options) string {
	permitted := opts.Permitted
	if len(permitted) == 0 {
		permitted = []string{"chart_operative_note"}
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("version: \"1.0\"\n")
	b.WriteString("provider:\n")
	b.WriteString("  name: Dr. Ada Example\n")
	b.WriteString("  npi: \"1234567890\"\n")
	b.WriteString("  types: [physician]\n")
	b.WriteString("  degrees: [MD]\n")
	b.WriteString("  licenses: [MD-CA-A123456]\n")
	b.WriteString("  certifications: [ABS]\n")
	b.WriteString("  specialty: General Surgery\n")
	b.WriteString("  organizations:\n")
	b.WriteString("    - name: Example University Hospital\n")
	b.WriteString("      privileges: [surgery]\n")
	b.WriteString("scope:\n")
	b.WriteString("  permitted_actions:\n")
	for _, a := range permitted {
		fmt.Fprintf(&b, "    - %s\n", a)
	}
	if len(opts.Prohibited) > 0 {
		b.WriteString("  prohibited_actions:\n")
		for _, a := range opts.Prohibited {
			fmt.Fprintf(&b, "    - %s\n", a)
		}
	}
	b.WriteString("autonomy:\n")
	b.WriteString("  chart: autonomous\n")
	b.WriteString("  order: supervised\n")
	b.WriteString("  charge: supervised\n")
	b.WriteString("  perform: manual\n")
	b.WriteString("  interpret: manual\n")
	b.WriteString("  educate: autonomous\n")
	b.WriteString("  coordinate: supervised\n")
	b.WriteString("consent:\n")
	b.WriteString("  hipaa_warning_acknowledged: true\n")
	b.WriteString("  synthetic_data_only: true\n")
	b.WriteString("  audit_consent: true\n")
	b.WriteString("  acknowledged_at: \"2026-01-15T10:00:00Z\"\n")
	b.WriteString("skills:\n")
	b.WriteString("  authorized: []\n")
	if opts.Hardening != "" {
		b.WriteString("hardening:\n")
		b.WriteString(opts.Hardening)
	}
	b.WriteString("---\n")
	body := opts.Body
	if body == "" {
		body = "\n# Clinical Activation and Notification Standard\n\nFree text notes.\n"
	}
	b.WriteString(body)
	return b.String()
}

// Write stores content as CANS.md under dir and returns its path.
func Write(t testing.TB, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "CANS.md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write CANS.md: %v", err)
	}
	return path
}
