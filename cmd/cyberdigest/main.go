// Command cyberdigest is the single binary for all three run modes
// (serve, worker, migrate) plus the healthcheck subcommand, selected by
// os.Args[1] (see internal/app.ParseCommand).
package main

import (
	"fmt"
	"os"

	"cyberdigest/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
