package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/es2json/iox"
	"github.com/justapithecus/es2json/runtime"
	"github.com/justapithecus/es2json/sink"
	"github.com/justapithecus/es2json/types"
)

// FramesCommand returns the frames command, which turns a msgpack frame
// stream written by `dump --output msgpack` back into NDJSON.
func FramesCommand() *cli.Command {
	return &cli.Command{
		Name:  "frames",
		Usage: "Decode a msgpack frame stream to line-delimited JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Frame file (default: stdin)"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print records"},
			&cli.BoolFlag{Name: "summary", Usage: "Print the run summary to stderr"},
		},
		Action: framesAction,
	}
}

func framesAction(c *cli.Context) error {
	var in io.Reader = c.App.Reader
	if path := c.String("input"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot open frame file: %v", err), runtime.ExitCodeConfig)
		}
		defer iox.DiscardClose(f)
		in = f
	} else if f, ok := in.(*os.File); ok && isTTY(f) {
		return cli.Exit("refusing to read frames from a terminal; pipe `es2json dump --output msgpack` in or use --input", runtime.ExitCodeConfig)
	}

	out := sink.NewNDJSON(c.App.Writer, c.Bool("pretty"))
	defer iox.DiscardErr(out.Close)

	summary, err := sink.Replay(in, func(rec types.Record) error {
		return out.WriteRecords(c.Context, []types.Record{rec})
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("frame stream: %v", err), runtime.ExitCodeFailure)
	}

	if c.Bool("summary") {
		fmt.Fprintf(c.App.ErrWriter, "run_id=%s status=%s records=%d missing=%d\n",
			summary.RunID, summary.Status, summary.Records, summary.Missing)
	}
	if summary.Status != types.OutcomeSuccess {
		return cli.Exit(fmt.Sprintf("producing run ended with %s: %s", summary.Status, summary.Message), runtime.ExitCode(summary.Status))
	}
	return nil
}
