// Command swarmsim runs the wildfire-swarm simulation kernel: a
// deterministic tick loop plus a REST and websocket surface for
// control and observation (spec.md §6).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
