package main

import (
	"errors"
	"os"

	"github.com/aura-comms/aura/cmd/aura/cmd"
	"github.com/aura-comms/aura/pkg/clierror"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var cliErr *clierror.CLIError
		if !errors.As(err, &cliErr) {
			cliErr = clierror.InternalError(err)
		}
		clierror.PrintError(cliErr, cmd.OutputFormat())
		os.Exit(cliErr.ExitCode)
	}
}
