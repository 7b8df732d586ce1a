package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MEKXH/careagent/internal/config"
	"github.com/MEKXH/careagent/internal/kernel"
	"github.com/spf13/cobra"
)

func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize CareAgent configuration and workspace",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := config.ConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()
	workspace := cfg.WorkspacePath()

	dirs := []string{
		config.ConfigDir(),
		workspace,
		kernel.StateDir(workspace),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("CareAgent initialized!\n")
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Workspace: %s\n", workspace)
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("1. Place the provider's CANS.md at %s\n", filepath.Join(workspace, cfg.Kernel.CANSFile))
	fmt.Printf("2. Run 'careagent status' to activate clinical mode and pin the document\n")

	return nil
}
