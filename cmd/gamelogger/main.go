// Package main provides the gamelogger CLI entrypoint.
//
// Usage:
//
//	gamelogger <command> [options]
//
// Exit codes for `attach`:
//   - 0: capture saved
//   - 1: attach failed
//   - 2: capture start or stop was rejected or unanswered
//   - 3: the capture could not be saved
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/psforever/GameLogger/cli/cmd"
	"github.com/psforever/GameLogger/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "gamelogger",
		Usage:          "Record PlanetSide client traffic into capture files",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.AttachCommand(),
			cmd.InspectCommand(),
			cmd.StatsCommand(),
			cmd.VerifyCommand(),
			cmd.EditCommand(),
			cmd.ExportCommand(),
			cmd.DatasetCommand(),
			cmd.SimulateCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit so that attach
// outcomes reach the shell.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() is "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
