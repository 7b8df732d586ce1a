package main

import (
	"os"

	"github.com/MEKXH/careagent/cmd/careagent/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
