// Command agentcore is the process entry point: a small cobra CLI whose
// only long-running subcommand, serve, speaks the Agent Client Protocol
// over stdio to whatever editor or host process spawned it.
package main

import (
	"fmt"
	"os"

	"agentcore/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
