package main

import (
	"errors"

	"github.com/idqam/swarmsim/internal/engine"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "swarmsim",
		Short: "Software-in-the-loop wildfire/swarm simulation kernel",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults only if omitted)")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newVersionCmd())

	return root
}

// exitCodeFor maps an error returned from a command to the process
// exit code spec.md §7 assigns: 1 for configuration/startup failure,
// 2 for a kernel invariant violation, 1 for anything else unexpected.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var iv *engine.InvariantViolation
	if errors.As(err, &iv) {
		return 2
	}
	return 1
}
