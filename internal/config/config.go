package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config root configuration
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Log       LogConfig       `mapstructure:"log"`
	Kernel    KernelConfig    `mapstructure:"kernel"`
}

// WorkspaceConfig selects the directory holding CANS.md and kernel state.
type WorkspaceConfig struct {
	Mode string `mapstructure:"mode"`
	Path string `mapstructure:"path"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// KernelConfig trust kernel settings. Relative file paths resolve against
// the workspace. Actor is recorded on operator entries such as re-pins.
type KernelConfig struct {
	CANSFile      string `mapstructure:"cans_file"`
	AuditFile     string `mapstructure:"audit_file"`
	IntegrityFile string `mapstructure:"integrity_file"`
	Actor         string `mapstructure:"actor"`
	SandboxProbe  string `mapstructure:"sandbox_probe"`
}

// Sandbox probe modes.
const (
	SandboxProbeAuto = "auto"
	SandboxProbeOn   = "on"
	SandboxProbeOff  = "off"
)

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return &Config{
		Workspace: WorkspaceConfig{
			Mode: "default",
			Path: filepath.Join(homeDir, ".careagent", "workspace"),
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
		Kernel: KernelConfig{
			CANSFile:      "CANS.md",
			AuditFile:     filepath.Join("state", "audit.jsonl"),
			IntegrityFile: filepath.Join("state", "cans-integrity.json"),
			Actor:         "provider",
			SandboxProbe:  SandboxProbeAuto,
		},
	}
}

// ConfigDir returns the careagent config directory
func ConfigDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".careagent")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads config from file or returns defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := ConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Save(cfg); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("CAREAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to file
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	mode := strings.TrimSpace(c.Workspace.Mode)
	if mode != "" {
		validModes := map[string]bool{"default": true, "cwd": true, "path": true}
		if !validModes[strings.ToLower(mode)] {
			return fmt.Errorf("workspace.mode must be one of: default, cwd, path; got %q", mode)
		}
		if strings.EqualFold(mode, "path") && strings.TrimSpace(c.Workspace.Path) == "" {
			return fmt.Errorf("workspace.path must be non-empty when workspace.mode is \"path\"")
		}
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	k := &c.Kernel
	defaults := DefaultConfig().Kernel
	if strings.TrimSpace(k.CANSFile) == "" {
		k.CANSFile = defaults.CANSFile
	}
	if strings.TrimSpace(k.AuditFile) == "" {
		k.AuditFile = defaults.AuditFile
	}
	if strings.TrimSpace(k.IntegrityFile) == "" {
		k.IntegrityFile = defaults.IntegrityFile
	}

	actor := strings.ToLower(strings.TrimSpace(k.Actor))
	switch actor {
	case "":
		k.Actor = defaults.Actor
	case "agent", "provider", "system":
		k.Actor = actor
	default:
		return fmt.Errorf("kernel.actor must be one of agent, provider, system; got %q", k.Actor)
	}

	probe := strings.ToLower(strings.TrimSpace(k.SandboxProbe))
	switch probe {
	case "":
		k.SandboxProbe = SandboxProbeAuto
	case SandboxProbeAuto, SandboxProbeOn, SandboxProbeOff:
		k.SandboxProbe = probe
	default:
		return fmt.Errorf("kernel.sandbox_probe must be one of auto, on, off; got %q", k.SandboxProbe)
	}

	return nil
}

// WorkspacePath returns the expanded workspace path
func (c *Config) WorkspacePath() string {
	path, err := c.WorkspacePathChecked()
	if err != nil {
		return filepath.Join(ConfigDir(), "workspace")
	}
	return path
}

// WorkspacePathChecked returns the expanded workspace path or an error if invalid.
func (c *Config) WorkspacePathChecked() (string, error) {
	mode := strings.TrimSpace(c.Workspace.Mode)
	if mode == "" || strings.EqualFold(mode, "default") {
		return filepath.Join(ConfigDir(), "workspace"), nil
	}
	if strings.EqualFold(mode, "cwd") {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve cwd: %w", err)
		}
		return wd, nil
	}
	if !strings.EqualFold(mode, "path") {
		return "", fmt.Errorf("unknown workspace.mode: %s", mode)
	}
	if c.Workspace.Path == "" {
		return "", fmt.Errorf("workspace.path is required when workspace.mode=path")
	}
	if c.Workspace.Path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory for workspace path: %w", err)
		}
		rest := c.Workspace.Path[1:]
		rest = strings.TrimPrefix(rest, string(filepath.Separator))
		rest = strings.TrimPrefix(rest, "/")
		return filepath.Join(homeDir, rest), nil
	}
	return c.Workspace.Path, nil
}

// ResolvePath joins a kernel file path to workspace unless it is absolute.
func ResolvePath(workspace, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}
