// Command fedreduce runs federated reductions over a synchronised datasite
// tree.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/fedreduce/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
