// Command tokenctl runs ledger operations against a local data directory.
package main

import (
	"fmt"
	"os"

	"meme-token-ledger/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
