package commands

import (
	"fmt"

	"github.com/MEKXH/careagent/internal/policy"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

func NewCANSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cans",
		Short: "Manage the provider's CANS.md",
	}

	cmd.AddCommand(
		newCANSPinCmd(),
		newCANSBootstrapCmd(),
	)

	return cmd
}

func newCANSPinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Trust the current CANS.md and replace the integrity pin",
		RunE:  runCANSPin,
	}
	cmd.Flags().Bool("yes", false, "Confirm that the current document was reviewed")
	return cmd
}

func newCANSBootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Print the protocol text injected into new sessions",
		RunE:  runCANSBootstrap,
	}
	cmd.Flags().Bool("render", false, "Render the protocol as styled markdown")
	return cmd
}

func runCANSPin(cmd *cobra.Command, args []string) error {
	confirmed := false
	if cmd != nil {
		confirmed, _ = cmd.Flags().GetBool("yes")
	}
	if !confirmed {
		return fmt.Errorf("re-pinning trusts the current CANS.md as-is; re-run with --yes after reviewing it")
	}

	k, err := bootKernel()
	if err != nil {
		return err
	}
	rec, err := k.Repin()
	if err != nil {
		return err
	}
	fmt.Printf("Pinned %s\n", k.Options().CANSFile)
	fmt.Printf("  Hash: %s\n", rec.Hash)
	return nil
}

func runCANSBootstrap(cmd *cobra.Command, args []string) error {
	render := false
	if cmd != nil {
		render, _ = cmd.Flags().GetBool("render")
	}

	k, err := bootKernel()
	if err != nil {
		return err
	}
	if err := requireActive(k); err != nil {
		return err
	}
	session, err := k.StartSession()
	if err != nil {
		return err
	}
	text, ok := session.File(policy.BootstrapFileName)
	if !ok {
		return fmt.Errorf("no %s delivered to session", policy.BootstrapFileName)
	}

	if render {
		renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("create markdown renderer: %w", err)
		}
		out, err := renderer.Render(text)
		if err != nil {
			return fmt.Errorf("render protocol: %w", err)
		}
		text = out
	}
	fmt.Print(text)
	return nil
}
