package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/psforever/GameLogger/cli/reader"
	"github.com/psforever/GameLogger/cli/render"
)

// EditCommand returns the edit command. It rewrites the name or
// description of a saved capture in place, bumping its revision.
func EditCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Change the name or description of a capture file",
		ArgsUsage: "<file.gcap>",
		Flags: []cli.Flag{
			FormatFlag,
			NoColorFlag,
			&cli.StringFlag{
				Name:  "name",
				Usage: "New capture name",
			},
			&cli.StringFlag{
				Name:  "description",
				Usage: "New capture description",
			},
		},
		Action: editAction,
	}
}

func editAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("capture file required", 1)
	}
	if !c.IsSet("name") && !c.IsSet("description") {
		return cli.Exit("nothing to change: pass --name or --description", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	path := c.Args().First()
	f, warnings, err := reader.Open(path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.IsSet("name") {
		f.SetName(c.String("name"))
	}
	if c.IsSet("description") {
		f.SetDescription(c.String("description"))
	}
	if !f.IsModified() {
		return r.Render(reader.InspectCapture(f, warnings, 0))
	}

	if err := f.Save(path); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(reader.InspectCapture(f, warnings, 0))
}
