package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/es2json/cli/reader"
	"github.com/justapithecus/es2json/cli/render"
	"github.com/justapithecus/es2json/lode"
)

// readTimeout bounds archive reads of the stats commands.
const readTimeout = 30 * time.Second

// StatsCommand returns the stats command with subcommands.
// Stats reads archived run reports; it never contacts a store.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show archived harvest statistics",
		Subcommands: []*cli.Command{
			statsLatestCommand(),
		},
	}
}

func statsLatestCommand() *cli.Command {
	flags := append(ReadOnlyFlags(), ArchiveReadFlags()...)
	flags = append(flags,
		&cli.StringFlag{Name: "run-id", Usage: "Read the report of a specific run"},
		&cli.StringFlag{Name: "index", Usage: "Filter by index partition"},
	)
	return &cli.Command{
		Name:   "latest",
		Usage:  "Show the most recent archived run report",
		Flags:  flags,
		Action: statsLatestAction,
	}
}

func statsLatestAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	ds, err := reader.OpenDataset(ctx, archiveSource(c))
	if err != nil {
		return fmt.Errorf("failed to initialize archive reader: %w", err)
	}

	summary, err := reader.LatestReport(ctx, ds, c.String("run-id"), c.String("index"))
	if err != nil {
		if errors.Is(err, lode.ErrNoReportFound) {
			return cli.Exit("no archived run report matches", 1)
		}
		return fmt.Errorf("failed to read run report: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_latest", summary)
	}

	return r.Render(summary)
}

// archiveSource builds a reader source from the archive read flags.
func archiveSource(c *cli.Context) reader.Source {
	return reader.Source{
		Dataset:   lode.DefaultDataset,
		Backend:   c.String("archive-backend"),
		Path:      c.String("archive-path"),
		Region:    c.String("archive-s3-region"),
		Endpoint:  c.String("archive-s3-endpoint"),
		PathStyle: c.Bool("archive-s3-path-style"),
	}
}
