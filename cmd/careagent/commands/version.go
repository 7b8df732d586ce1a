package commands

import (
	"fmt"
	"runtime"

	"github.com/MEKXH/careagent/internal/audit"
	"github.com/MEKXH/careagent/internal/version"
	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of CareAgent",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("careagent %s (audit schema %s) %s/%s\n", version.String(), audit.SchemaVersion, runtime.GOOS, runtime.GOARCH)
		},
	}
}
