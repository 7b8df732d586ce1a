package commands

import (
	"fmt"
	"sort"

	"github.com/MEKXH/careagent/internal/config"
	"github.com/MEKXH/careagent/internal/kernel"
	"github.com/MEKXH/careagent/internal/metrics"
	"github.com/spf13/cobra"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check activation, integrity pin, audit chain and decision metrics",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, opts, err := loadKernelOptions()
	if err != nil {
		return err
	}

	fmt.Println("=== CareAgent Status ===")
	fmt.Println()

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Workspace: %s\n", opts.Workspace)
	fmt.Printf("  Mode: %s\n", cfg.Workspace.Mode)

	k, err := kernel.Boot(opts)
	if err != nil {
		return err
	}

	fmt.Println("\nClinical Mode:")
	fmt.Printf("  Document: %s\n", opts.CANSFile)
	res := k.Activation()
	if res.Active {
		doc := res.Document
		fmt.Println("  Status: active")
		fmt.Printf("  Provider: %s (NPI %s)\n", doc.Provider.Name, doc.Provider.NPI)
		fmt.Printf("  Permitted actions: %d, prohibited actions: %d\n", len(doc.Scope.PermittedActions), len(doc.Scope.ProhibitedActions))
		if res.Pinned {
			fmt.Println("  Pinned on this check (first load)")
		}
	} else {
		fmt.Println("  Status: inactive")
		fmt.Printf("  Reason: %s\n", res.Reason)
		for _, fe := range res.Errors {
			fmt.Printf("    %s: %s\n", fe.Path, fe.Message)
		}
	}

	fmt.Println("\nIntegrity:")
	fmt.Printf("  Record: %s\n", k.Store().Path())
	rec, err := k.Store().Load()
	switch {
	case err != nil:
		fmt.Printf("  Status: unreadable (%v)\n", err)
	case rec == nil:
		fmt.Println("  Status: not pinned")
	default:
		fmt.Printf("  Hash: %s\n", rec.Hash)
		fmt.Printf("  Pinned at: %s\n", rec.Timestamp)
	}

	fmt.Println("\nAudit:")
	fmt.Printf("  Ledger: %s\n", k.Ledger().Path())
	chain, err := k.Ledger().VerifyChain()
	if err != nil {
		return err
	}
	if chain.Valid {
		fmt.Printf("  Chain: valid (%d entries)\n", chain.Entries)
	} else {
		fmt.Printf("  Chain: BROKEN at entry %d (%s)\n", *chain.BrokenAt, chain.Error)
	}

	fmt.Println("\nDecision Metrics:")
	snap, err := metrics.ReadDecisionSnapshot(kernel.StateDir(opts.Workspace))
	if err != nil {
		fmt.Printf("  Status: unreadable (%v)\n", err)
		return nil
	}
	printDecisionMetrics(snap)
	return nil
}

func printDecisionMetrics(snap metrics.DecisionSnapshot) {
	if snap.Checks.Total == 0 {
		fmt.Println("  no decision data yet")
	} else {
		c := snap.Checks
		fmt.Printf("  Checks: %d (allowed=%d, denied=%d, deny_ratio=%.2f)\n", c.Total, c.Allowed, c.Denied, c.DenyRatio())
		fmt.Printf("  Latency: avg=%.0fus p95~%dus max=%dus\n", c.AvgLatencyUs(), c.P95ProxyLatencyUs, c.MaxLatencyUs)
		layers := make([]string, 0, len(snap.DeniedBy))
		for layer := range snap.DeniedBy {
			layers = append(layers, layer)
		}
		sort.Strings(layers)
		for _, layer := range layers {
			fmt.Printf("  Denied by %s: %d\n", layer, snap.DeniedBy[layer])
		}
	}
	fmt.Printf("  Activations: active=%d, inactive=%d\n", snap.Activations.Active, snap.Activations.Inactive)
}
