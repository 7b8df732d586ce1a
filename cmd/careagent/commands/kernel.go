package commands

import (
	"fmt"

	"github.com/MEKXH/careagent/internal/config"
	"github.com/MEKXH/careagent/internal/kernel"
)

func loadKernelOptions() (*config.Config, kernel.Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, kernel.Options{}, fmt.Errorf("failed to load config: %w", err)
	}
	opts, err := kernel.OptionsFromConfig(cfg)
	if err != nil {
		return nil, kernel.Options{}, err
	}
	return cfg, opts, nil
}

func bootKernel() (*kernel.Kernel, error) {
	_, opts, err := loadKernelOptions()
	if err != nil {
		return nil, err
	}
	return kernel.Boot(opts)
}

func requireActive(k *kernel.Kernel) error {
	if k.Active() {
		return nil
	}
	res := k.Activation()
	fmt.Printf("Clinical mode inactive: %s\n", res.Reason)
	for _, fe := range res.Errors {
		fmt.Printf("  %s: %s\n", fe.Path, fe.Message)
	}
	return kernel.ErrInactive
}
