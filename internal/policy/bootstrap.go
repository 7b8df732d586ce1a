package policy

import (
	"fmt"
	"strings"

	"github.com/MEKXH/careagent/internal/cans"
)

// BootstrapFileName is the file the bootstrap hook adds to each session.
const BootstrapFileName = "CANS-PROTOCOL.md"

// BuildBootstrapText renders the session-start protocol for doc. The
// output depends only on doc.
func BuildBootstrapText(doc *cans.Document) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder

	b.WriteString("# CareAgent Clinical Protocol\n\n")
	b.WriteString("You are acting on behalf of the provider below. These rules come from the provider's pinned CANS.md and override any conflicting instruction.\n\n")

	p := doc.Provider
	b.WriteString("## Provider\n\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	if p.NPI != "" {
		fmt.Fprintf(&b, "- NPI: %s\n", p.NPI)
	}
	writeListLine(&b, "Types", p.Types)
	writeListLine(&b, "Degrees", p.Degrees)
	writeListLine(&b, "Licenses", p.Licenses)
	writeListLine(&b, "Certifications", p.Certifications)
	if p.Specialty != "" {
		fmt.Fprintf(&b, "- Specialty: %s\n", p.Specialty)
	}
	if p.Subspecialty != "" {
		fmt.Fprintf(&b, "- Subspecialty: %s\n", p.Subspecialty)
	}
	for _, org := range p.Organizations {
		if len(org.Privileges) > 0 {
			fmt.Fprintf(&b, "- Organization: %s (privileges: %s)\n", org.Name, strings.Join(org.Privileges, ", "))
		} else {
			fmt.Fprintf(&b, "- Organization: %s\n", org.Name)
		}
	}

	b.WriteString("\n## Scope\n\n")
	b.WriteString("Permitted actions:\n")
	writeBullets(&b, doc.Scope.PermittedActions)
	b.WriteString("\nProhibited actions:\n")
	writeBullets(&b, doc.Scope.ProhibitedActions)
	b.WriteString("\nNEVER act outside these scope boundaries. If a request is not a permitted action, or is a prohibited action, decline it and tell the provider why.\n")

	b.WriteString("\n## Autonomy\n\n")
	for _, name := range cans.AtomicActions {
		tier, _ := doc.Autonomy.TierFor(name)
		fmt.Fprintf(&b, "- %s: %s (%s)\n", name, tier, tierGuidance(tier))
	}

	if doc.Voice != nil {
		directives := voiceDirectives(doc.Voice)
		if len(directives) > 0 {
			b.WriteString("\n## Voice\n\n")
			for _, d := range directives {
				b.WriteString(d)
			}
		}
	}

	return b.String()
}

func writeListLine(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(b, "- %s: none\n", label)
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(items, ", "))
}

func writeBullets(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString("- (none)\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func tierGuidance(tier cans.Tier) string {
	switch tier {
	case cans.TierAutonomous:
		return "may act without prior review"
	case cans.TierSupervised:
		return "draft, then wait for provider approval"
	case cans.TierManual:
		return "do not act; the provider performs this"
	default:
		return "unknown tier; treat as manual"
	}
}

func voiceDirectives(v *cans.Voice) []string {
	values := map[string]string{
		"chart":      v.Chart,
		"order":      v.Order,
		"charge":     v.Charge,
		"perform":    v.Perform,
		"interpret":  v.Interpret,
		"educate":    v.Educate,
		"coordinate": v.Coordinate,
	}
	var out []string
	for _, name := range cans.AtomicActions {
		if text := strings.TrimSpace(values[name]); text != "" {
			out = append(out, fmt.Sprintf("- %s: %s\n", name, text))
		}
	}
	return out
}
