// Command mapsync validates, plans and tests declarative map layer scenes.
package main

import (
	"fmt"
	"os"

	"github.com/team-wildflyer/mapsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
