package commands

import (
	"fmt"
	"strings"

	"github.com/MEKXH/careagent/internal/policy"
	"github.com/spf13/cobra"
)

func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <action>",
		Short: "Run one proposed action through the policy engine",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	cmd.Flags().String("command", "", "Shell command for exec actions")
	cmd.Flags().String("target", "", "Action target (patient, file, order)")
	cmd.Flags().StringArray("param", nil, "Extra action parameter as key=value (repeatable)")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	command, _ := cmd.Flags().GetString("command")
	target, _ := cmd.Flags().GetString("target")
	rawParams, _ := cmd.Flags().GetStringArray("param")

	action, err := buildAction(args[0], command, target, rawParams)
	if err != nil {
		return err
	}

	k, err := bootKernel()
	if err != nil {
		return err
	}
	if err := requireActive(k); err != nil {
		return err
	}
	if _, err := k.StartSession(); err != nil {
		return err
	}

	decision, err := k.Submit(action)
	if err != nil {
		return err
	}
	if decision.Allowed {
		fmt.Printf("ALLOWED %s\n", action.Name)
		return nil
	}
	layer := decision.Layer
	if layer == "" {
		layer = "host"
	}
	fmt.Printf("DENIED %s [%s]: %s\n", action.Name, layer, decision.Reason)
	return nil
}

func buildAction(name, command, target string, rawParams []string) (policy.Action, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return policy.Action{}, fmt.Errorf("action name is required")
	}
	params := make(map[string]any, len(rawParams)+2)
	for _, kv := range rawParams {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return policy.Action{}, fmt.Errorf("invalid --param %q (expected key=value)", kv)
		}
		params[key] = value
	}
	if strings.TrimSpace(command) != "" {
		params["command"] = command
	}
	if strings.TrimSpace(target) != "" {
		params["target"] = target
	}
	return policy.Action{Name: name, Params: params}, nil
}
