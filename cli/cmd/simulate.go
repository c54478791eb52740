package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/psforever/GameLogger/cli/reader"
	"github.com/psforever/GameLogger/peer"
	"github.com/psforever/GameLogger/transport"
)

// SimulateCommand returns the simulate command.
//
// Simulate plays the client side of a session: it connects to a waiting
// logger, identifies, and replays the records of an existing capture each
// time capture is started. Useful for exercising attach without a client.
func SimulateCommand() *cli.Command {
	return &cli.Command{
		Name:      "simulate",
		Usage:     "Replay a capture file as an instrumented client",
		ArgsUsage: "<file.gcap>",
		Flags: []cli.Flag{
			ConfigFlag,
			&cli.IntFlag{
				Name:  "logger-id",
				Usage: fmt.Sprintf("Logger instance to connect to [0, %d)", transport.MaxLoggers),
			},
			&cli.StringFlag{
				Name:  "address",
				Usage: "Logger socket address (default derived from --logger-id)",
			},
			&cli.UintFlag{
				Name:  "pid",
				Usage: "PID reported in IDENTIFY (default this process)",
			},
			&cli.IntFlag{
				Name:  "batch",
				Usage: "Records per NEW_RECORDS message",
				Value: 64,
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Pause between batches",
				Value: 10 * time.Millisecond,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Dial and per-message timeout",
				Value: 5 * time.Second,
			},
		},
		Action: simulateAction,
	}
}

func simulateAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("capture file required", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	f, _, err := reader.Open(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	address := cfg.SessionConfig().Address
	if c.IsSet("address") {
		address = c.String("address")
	}
	pid := uint32(os.Getpid())
	if c.IsSet("pid") {
		pid = uint32(c.Uint("pid"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
	client, err := dialWithRetry(dialCtx, peer.Config{
		Network: cfg.Network(),
		Address: address,
		PID:     pid,
		Timeout: c.Duration("timeout"),
	})
	cancel()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = client.Close() }()

	if err := client.Identify(); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if isStderrTTY() {
		fmt.Fprintf(os.Stderr, "connected to %s, replaying %d records per capture\n", address, f.Len())
	}

	replayer := peer.NewReplayer(client, f.Records(), c.Int("batch"), c.Duration("interval"))
	err = client.Serve(ctx, replayer)
	if sent, sendErr := replayer.Sent(); sendErr != nil {
		fmt.Fprintf(os.Stderr, "replay stopped after %d records: %v\n", sent, sendErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// dialWithRetry keeps dialing until the logger's socket is listening or
// ctx expires. The logger only listens after injection succeeds.
func dialWithRetry(ctx context.Context, config peer.Config) (*peer.Client, error) {
	for {
		client, err := peer.Dial(ctx, config)
		if err == nil {
			return client, nil
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(100 * time.Millisecond):
		}
	}
}

