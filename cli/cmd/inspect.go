package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/psforever/GameLogger/cli/reader"
	"github.com/psforever/GameLogger/cli/render"
	"github.com/psforever/GameLogger/cli/tui"
)

// InspectCommand returns the inspect command.
// Inspect shows the header of a capture file and a listing of its records.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect a capture file",
		ArgsUsage: "<file.gcap>",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:    "records",
				Aliases: []string{"n"},
				Usage:   "Number of records to list (0 for none, -1 for all)",
				Value:   20,
			},
		),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("capture file required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	f, warnings, err := reader.Open(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	limit := c.Int("records")
	if limit < 0 {
		limit = f.Len()
	}
	resp := reader.InspectCapture(f, warnings, limit)

	if c.Bool("tui") {
		// The interactive view scrolls, so give it everything.
		resp.Listing = reader.ListRecords(f, 0, f.Len())
		return r.RenderTUI(tui.ViewInspectCapture, resp)
	}
	return r.Render(resp)
}
