package main

import (
	"context"
	"fmt"
	"os"

	"fintrack/internal/cli"
	"fintrack/internal/log"
)

func main() {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}
	logger := cli.SetupLogger(cfg, log.ComponentCLI)

	root := cli.NewRootCommand(cli.BackendOpener(cfg, logger))
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
