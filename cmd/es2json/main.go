// Package main provides the es2json CLI entrypoint.
//
// Usage:
//
//	es2json <command> [subcommand] [options]
//
// Exit codes for `dump`:
//   - 0: success (missing ids are not failures)
//   - 1: store, IO or sink failure
//   - 2: configuration error
//   - 3: index not found
//   - 4: canceled
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/es2json/cli/cmd"
	"github.com/justapithecus/es2json/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

// exit is replaced in tests.
var exit = os.Exit

func main() {
	app := &cli.App{
		Name:           "es2json",
		Usage:          "Harvest Elasticsearch documents as line-delimited JSON",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.DumpCommand(),
			cmd.FramesCommand(),
			cmd.StatsCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}

	var stderr io.Writer = os.Stderr
	if c != nil && c.App != nil && c.App.ErrWriter != nil {
		stderr = c.App.ErrWriter
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(stderr, msg)
		}
		exit(code)
		return
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(stderr, "Error: %v\n", err)
	exit(1)
}
