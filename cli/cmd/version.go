package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/psforever/GameLogger/cli/render"
	"github.com/psforever/GameLogger/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	// Wire is the control protocol version spoken with clients.
	Wire string `json:"wire_protocol" yaml:"wire_protocol"`
	// File is the capture file format version written by save.
	File string `json:"file_format" yaml:"file_format"`
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(VersionResponse{
			Version: types.Version,
			Commit:  commit,
			Wire:    types.WireVersion.String(),
			File:    types.FileVersion.String(),
		})
	}
}
