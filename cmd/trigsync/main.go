// Command trigsync synchronizes multi-stream readout data into composite
// events.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/trigsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
