// Command searchkit indexes and queries searchkit indexes from the shell.
package main

import (
	"os"

	"github.com/Aman-CERP/searchkit/cmd/searchkit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
