package commands

import (
	"github.com/MEKXH/careagent/internal/config"
	"github.com/spf13/cobra"
)

var logLevelOverride string

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "careagent",
		Short: "CareAgent - clinical trust kernel",
		Long: `CareAgent activates clinical mode from a provider's CANS.md, enforces
its scope on every proposed action and records each decision in a
hash-chained audit log.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return configureLogger(config.DefaultConfig(), logLevelOverride)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewInitCmd(),
		NewStatusCmd(),
		NewCheckCmd(),
		NewAuditCmd(),
		NewCANSCmd(),
		NewVersionCmd(),
	)

	return cmd
}
