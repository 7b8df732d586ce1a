package commands

import (
	"fmt"
	"strings"

	"github.com/MEKXH/careagent/internal/audit"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the hash-chained audit log",
	}

	cmd.AddCommand(
		newAuditVerifyCmd(),
		newAuditTailCmd(),
	)

	return cmd
}

func newAuditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit hash chain",
		RunE:  runAuditVerify,
	}
}

func newAuditTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent audit entries",
		RunE:  runAuditTail,
	}
	cmd.Flags().IntP("lines", "n", 20, "Number of entries to show (0 for all)")
	return cmd
}

func openLedger() (*audit.Ledger, error) {
	_, opts, err := loadKernelOptions()
	if err != nil {
		return nil, err
	}
	return audit.NewLedger(opts.AuditFile), nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	ledger, err := openLedger()
	if err != nil {
		return err
	}
	result, err := ledger.VerifyChain()
	if err != nil {
		return err
	}
	if result.Valid {
		fmt.Printf("Audit chain valid: %d entries (%s)\n", result.Entries, ledger.Path())
		return nil
	}
	fmt.Printf("Audit chain BROKEN at entry %d of %d: %s\n", *result.BrokenAt, result.Entries, result.Error)
	return fmt.Errorf("audit chain broken at entry %d", *result.BrokenAt)
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	n := 20
	if cmd != nil {
		n, _ = cmd.Flags().GetInt("lines")
	}
	ledger, err := openLedger()
	if err != nil {
		return err
	}
	entries, err := ledger.Tail(n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries.")
		return nil
	}
	printAuditTable(entries)
	return nil
}

func printAuditTable(entries []audit.Entry) {
	var (
		headerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#2F6F8F")).
				Padding(0, 1).
				MarginBottom(1)

		wTime    = 20
		wAction  = 24
		wActor   = 9
		wOutcome = 9
		wLayer   = 15
		wTarget  = 24

		colHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#2F6F8F")).
				Bold(true).
				MarginRight(1)

		timeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Width(wTime).
				MarginRight(1)

		cellStyle = lipgloss.NewStyle().MarginRight(1)

		allowedColor = lipgloss.Color("#2E8B57")
		deniedColor  = lipgloss.Color("#C0392B")
		otherColor   = lipgloss.Color("#D4A017")
	)

	fmt.Println(headerStyle.Render("Audit Log"))

	headers := lipgloss.JoinHorizontal(lipgloss.Top,
		colHeaderStyle.Width(wTime).Render("TIME"),
		colHeaderStyle.Width(wAction).Render("ACTION"),
		colHeaderStyle.Width(wActor).Render("ACTOR"),
		colHeaderStyle.Width(wOutcome).Render("OUTCOME"),
		colHeaderStyle.Width(wLayer).Render("LAYER"),
		colHeaderStyle.Width(wTarget).Render("TARGET"),
	)
	fmt.Printf("  %s\n", headers)

	sepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginRight(1)
	separator := lipgloss.JoinHorizontal(lipgloss.Top,
		sepStyle.Render(strings.Repeat("─", wTime)),
		sepStyle.Render(strings.Repeat("─", wAction)),
		sepStyle.Render(strings.Repeat("─", wActor)),
		sepStyle.Render(strings.Repeat("─", wOutcome)),
		sepStyle.Render(strings.Repeat("─", wLayer)),
		sepStyle.Render(strings.Repeat("─", wTarget)),
	)
	fmt.Printf("  %s\n", separator)

	for _, e := range entries {
		color := otherColor
		switch e.Outcome {
		case audit.OutcomeAllowed, audit.OutcomeActive:
			color = allowedColor
		case audit.OutcomeDenied, audit.OutcomeError:
			color = deniedColor
		}

		layer := e.BlockingLayer
		if layer == "" {
			if l, ok := e.Details["layer"].(string); ok {
				layer = l
			}
		}
		if layer == "" {
			layer = "-"
		}
		target := e.Target
		if target == "" {
			target = "-"
		}

		row := lipgloss.JoinHorizontal(lipgloss.Top,
			timeStyle.Render(e.Timestamp.Local().Format("2006-01-02 15:04:05")),
			cellStyle.Width(wAction).Render(truncate(e.Action, wAction)),
			cellStyle.Width(wActor).Render(string(e.Actor)),
			cellStyle.Width(wOutcome).Foreground(color).Render(string(e.Outcome)),
			cellStyle.Width(wLayer).Render(truncate(layer, wLayer)),
			cellStyle.Width(wTarget).Render(truncate(target, wTarget)),
		)
		fmt.Printf("  %s\n", row)
	}

	fmt.Println()
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
