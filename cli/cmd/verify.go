package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/psforever/GameLogger/cli/reader"
	"github.com/psforever/GameLogger/cli/render"
)

// VerifyCommand returns the verify command. It exits 1 when the file is
// not a valid capture.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check that a capture file loads cleanly",
		ArgsUsage: "<file.gcap>",
		Flags:     ReadOnlyFlags(),
		Action:    verifyAction,
	}
}

func verifyAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("capture file required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for verify command", 1)
	}

	resp, err := reader.Verify(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := r.Render(resp); err != nil {
		return err
	}
	if !resp.Valid {
		return cli.Exit("", 1)
	}
	return nil
}
