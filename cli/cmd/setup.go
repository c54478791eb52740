package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/psforever/GameLogger/adapter"
	"github.com/psforever/GameLogger/adapter/redis"
	"github.com/psforever/GameLogger/adapter/webhook"
	"github.com/psforever/GameLogger/cli/config"
	"github.com/psforever/GameLogger/lode"
	"github.com/psforever/GameLogger/log"
	"github.com/psforever/GameLogger/types"
)

// storageFlags select a Lode dataset. They override the storage section
// of the config file.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Storage backend: fs, s3, memory",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Filesystem root, or bucket/prefix for s3",
		},
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Dataset ID (default gamelogger)",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for s3",
		},
		&cli.BoolFlag{
			Name:  "archive",
			Usage: "Also store the raw capture file in the dataset",
		},
	}
}

// loadConfig reads --config (or the default file) and applies the
// command-line overrides every command shares.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("logger-id") {
		id := c.Int("logger-id")
		cfg.LoggerID = &id
	}
	if c.IsSet("storage-backend") {
		cfg.Storage.Backend = c.String("storage-backend")
	}
	if c.IsSet("storage-path") {
		cfg.Storage.Path = c.String("storage-path")
	}
	if c.IsSet("storage-dataset") {
		cfg.Storage.Dataset = c.String("storage-dataset")
	}
	if c.IsSet("storage-region") {
		cfg.Storage.Region = c.String("storage-region")
	}
	if c.IsSet("archive") {
		cfg.Storage.Archive = c.Bool("archive")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*log.Logger, error) {
	return log.NewLoggerWithOptions(&types.SessionMeta{LoggerID: cfg.ID()}, cfg.LogOptions())
}

// buildAdapter creates the configured notification adapter. It returns
// nil when no adapter is configured.
func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	retries := adapter.DefaultRetries
	if ac.Retries != nil {
		retries = *ac.Retries
	}
	switch ac.Type {
	case "":
		return nil, nil
	case "redis":
		return redis.New(redis.Config{
			URL:            ac.URL,
			Channel:        ac.Channel,
			RecordsChannel: ac.RecordsChannel,
			Encoding:       adapter.Encoding(ac.Encoding),
			Timeout:        ac.Timeout.Duration,
			Retries:        retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:      ac.URL,
			Headers:  ac.Headers,
			Encoding: adapter.Encoding(ac.Encoding),
			Timeout:  ac.Timeout.Duration,
			Retries:  retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

// buildExporter creates a Lode exporter for the configured storage.
func buildExporter(ctx context.Context, cfg *config.Config) (*lode.Exporter, error) {
	factory, err := cfg.StorageTarget().Factory(ctx)
	if err != nil {
		return nil, err
	}
	return lode.NewExporterWithFactory(lode.Config{
		Dataset:  cfg.Storage.Dataset,
		LoggerID: cfg.ID(),
	}, factory)
}

// closeTimeout bounds adapter drain on exit.
const closeTimeout = 5 * time.Second
