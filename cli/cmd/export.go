package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/psforever/GameLogger/capture"
	"github.com/psforever/GameLogger/cli/config"
	"github.com/psforever/GameLogger/cli/reader"
	"github.com/psforever/GameLogger/cli/render"
	"github.com/psforever/GameLogger/lode"
	"github.com/psforever/GameLogger/log"
	"github.com/psforever/GameLogger/metrics"
)

// ExportResponse is the response for the export command.
type ExportResponse struct {
	GUID       string `json:"guid" yaml:"guid"`
	Dataset    string `json:"dataset" yaml:"dataset"`
	Day        string `json:"day" yaml:"day"`
	Rows       int    `json:"rows" yaml:"rows"`
	Snapshots  int    `json:"snapshots" yaml:"snapshots"`
	ArchiveKey string `json:"archive_key,omitempty" yaml:"archive_key,omitempty"`
	// ReadBack is the number of record rows found when reading the
	// export back from the dataset.
	ReadBack int `json:"read_back" yaml:"read_back"`
}

// ExportCommand returns the export command. It writes a saved capture to
// a Lode dataset as queryable rows and, with --archive, as a raw file.
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a capture file to a Lode dataset",
		ArgsUsage: "<file.gcap>",
		Flags: append([]cli.Flag{
			ConfigFlag,
			FormatFlag,
			NoColorFlag,
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
		}, storageFlags()...),
		Action: exportAction,
	}
}

func exportAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("capture file required", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if cfg.Storage.Backend == "" {
		return cli.Exit("no storage backend configured: pass --storage-backend or set storage.backend", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	f, _, err := reader.Open(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx := context.Background()
	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = exporter.Close() }()

	sum, err := exporter.ExportCapture(ctx, f)
	if err != nil {
		return cli.Exit(fmt.Sprintf("export failed: %v", err), 1)
	}
	resp := ExportResponse{
		GUID:      sum.GUID,
		Dataset:   string(exporter.Dataset().ID()),
		Day:       sum.Day,
		Rows:      sum.Rows,
		Snapshots: sum.Snapshots,
	}

	if cfg.Storage.Archive {
		key, err := exporter.ArchiveCapture(ctx, f)
		if err != nil {
			return cli.Exit(fmt.Sprintf("archive failed: %v", err), 1)
		}
		resp.ArchiveKey = key
	}

	back, err := lode.ReadCapture(ctx, exporter.Dataset(), sum.GUID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("read back failed: %v", err), 1)
	}
	resp.ReadBack = len(back.Records)

	return r.Render(resp)
}

// exportCapture is the post-save export run by attach: rows, an optional
// archive, and the session metrics.
func exportCapture(ctx context.Context, cfg *config.Config, f *capture.File, collector *metrics.Collector, logger *log.Logger) error {
	if cfg.Storage.Backend == "" {
		return errors.New("no storage backend configured")
	}
	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = exporter.Close() }()
	exporter.Instrument(collector)

	sum, err := exporter.ExportCapture(ctx, f)
	if err != nil {
		return err
	}
	fields := map[string]any{
		"dataset":   string(exporter.Dataset().ID()),
		"day":       sum.Day,
		"rows":      sum.Rows,
		"snapshots": sum.Snapshots,
	}
	if cfg.Storage.Archive {
		key, err := exporter.ArchiveCapture(ctx, f)
		if err != nil {
			return err
		}
		fields["archive_key"] = key
	}
	if err := exporter.WriteMetrics(ctx, f, collector.Snapshot(), time.Now()); err != nil {
		return err
	}
	logger.Info("capture exported", fields)
	return nil
}

// DatasetCommand returns the dataset command, which reads exports back.
func DatasetCommand() *cli.Command {
	return &cli.Command{
		Name:  "dataset",
		Usage: "Read captures back from a Lode dataset",
		Subcommands: []*cli.Command{
			datasetShowCommand(),
			datasetMetricsCommand(),
			datasetFetchCommand(),
		},
	}
}

// DatasetCaptureResponse summarises an exported capture.
type DatasetCaptureResponse struct {
	GUID        string `json:"guid" yaml:"guid"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Day         string `json:"day" yaml:"day"`
	Records     int    `json:"records" yaml:"records"`
	StartTime   string `json:"start_time" yaml:"start_time"`
	EndTime     string `json:"end_time" yaml:"end_time"`
}

func datasetFlags() []cli.Flag {
	return append([]cli.Flag{ConfigFlag, FormatFlag, NoColorFlag}, storageFlags()...)
}

func datasetShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show an exported capture by GUID",
		ArgsUsage: "<guid>",
		Flags:     datasetFlags(),
		Action:    datasetShowAction,
	}
}

func datasetShowAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("capture GUID required", 1)
	}
	exporter, r, err := openDataset(c)
	if err != nil {
		return err
	}
	defer func() { _ = exporter.Close() }()

	exp, err := lode.ReadCapture(c.Context, exporter.Dataset(), c.Args().First())
	if err != nil {
		if errors.Is(err, lode.ErrCaptureNotFound) {
			return cli.Exit(err.Error(), 1)
		}
		return err
	}
	row := exp.Capture
	return r.Render(DatasetCaptureResponse{
		GUID:        rowString(row, "capture"),
		Name:        rowString(row, "name"),
		Description: rowString(row, "description"),
		Day:         rowString(row, "day"),
		Records:     len(exp.Records),
		StartTime:   rowString(row, "start_time"),
		EndTime:     rowString(row, "end_time"),
	})
}

func datasetMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:      "metrics",
		Usage:     "Show the latest session metrics, optionally for one capture",
		ArgsUsage: "[guid]",
		Flags:     datasetFlags(),
		Action:    datasetMetricsAction,
	}
}

func datasetMetricsAction(c *cli.Context) error {
	exporter, r, err := openDataset(c)
	if err != nil {
		return err
	}
	defer func() { _ = exporter.Close() }()

	row, err := lode.QueryLatestMetrics(c.Context, exporter.Dataset(), c.Args().First())
	if err != nil {
		if errors.Is(err, lode.ErrNoMetricsFound) {
			return cli.Exit(err.Error(), 1)
		}
		return err
	}
	return r.Render(row)
}

func datasetFetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download an archived capture file",
		ArgsUsage: "<archive-key>",
		Flags: append(datasetFlags(), &cli.StringFlag{
			Name:     "output",
			Aliases:  []string{"o"},
			Usage:    "Path to write the capture to",
			Required: true,
		}),
		Action: datasetFetchAction,
	}
}

func datasetFetchAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("archive key required", 1)
	}
	exporter, r, err := openDataset(c)
	if err != nil {
		return err
	}
	defer func() { _ = exporter.Close() }()

	f, err := exporter.FetchArchive(c.Context, c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := f.Save(c.String("output")); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(reader.InspectCapture(f, nil, 0))
}

func openDataset(c *cli.Context) (*lode.Exporter, *render.Renderer, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), 1)
	}
	if cfg.Storage.Backend == "" {
		return nil, nil, cli.Exit("no storage backend configured: pass --storage-backend or set storage.backend", 1)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return nil, nil, err
	}
	exporter, err := buildExporter(c.Context, cfg)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), 1)
	}
	return exporter, r, nil
}

func rowString(row map[string]any, key string) string {
	if v, ok := row[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
