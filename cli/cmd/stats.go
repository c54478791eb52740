package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/psforever/GameLogger/cli/reader"
	"github.com/psforever/GameLogger/cli/render"
	"github.com/psforever/GameLogger/cli/tui"
)

// StatsCommand returns the stats command.
// Stats aggregates a capture file by kind, direction, and opcode.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show aggregated statistics for a capture file",
		ArgsUsage: "<file.gcap>",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "top",
				Usage: "Number of most frequent opcodes to report",
				Value: reader.DefaultTopOpcodes,
			},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("capture file required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	f, _, err := reader.Open(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	resp := reader.Stats(f, c.Int("top"))
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsCapture, resp)
	}
	return r.Render(resp)
}
