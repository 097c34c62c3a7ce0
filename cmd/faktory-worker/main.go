// Command faktory-worker runs a Faktory worker process, pushes jobs and
// queries server status. Jobs must be registered by embedding package
// cli; this binary is useful on its own for push and info.
package main

import (
	"os"

	"github.com/xraph/faktory/cli"
)

func main() {
	os.Exit(cli.Execute(cli.New()))
}
