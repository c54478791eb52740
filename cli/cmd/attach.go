package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/psforever/GameLogger/adapter"
	"github.com/psforever/GameLogger/capture"
	"github.com/psforever/GameLogger/cli/config"
	"github.com/psforever/GameLogger/cli/reader"
	"github.com/psforever/GameLogger/cli/render"
	"github.com/psforever/GameLogger/log"
	"github.com/psforever/GameLogger/metrics"
	"github.com/psforever/GameLogger/process"
	"github.com/psforever/GameLogger/runtime"
	"github.com/psforever/GameLogger/transport"
	"github.com/psforever/GameLogger/types"
)

// AttachCommand returns the attach command.
//
// Attach injects the capture library into a running client, records game
// traffic until interrupted, and saves the result as a .gcap file. Exit
// codes:
//   - 0: capture saved
//   - 1: attach failed
//   - 2: the client rejected or ignored a capture request
//   - 3: the capture could not be saved
func AttachCommand() *cli.Command {
	return &cli.Command{
		Name:  "attach",
		Usage: "Attach to a game client and record a capture",
		Flags: append([]cli.Flag{
			ConfigFlag,
			&cli.UintFlag{
				Name:  "pid",
				Usage: "Process ID of the game client",
			},
			&cli.StringFlag{
				Name:  "process",
				Usage: "Executable name of the game client (used when --pid is not set)",
				Value: process.DefaultClientName,
			},
			&cli.IntFlag{
				Name:  "logger-id",
				Usage: fmt.Sprintf("Logger instance ID [0, %d)", transport.MaxLoggers),
			},
			&cli.StringFlag{
				Name:  "payload",
				Usage: "Path to the capture library to inject",
			},
			&cli.StringFlag{
				Name:  "injector",
				Usage: "Injection helper command (empty: the client loads the library itself)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory to save the capture into",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Capture name (default derived from the start time)",
			},
			&cli.StringFlag{
				Name:  "description",
				Usage: "Capture description",
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "Stop after this long (0 waits for an interrupt)",
			},
			&cli.BoolFlag{
				Name:  "no-scrub",
				Usage: "Keep sensitive login packets intact",
			},
			&cli.BoolFlag{
				Name:  "export",
				Usage: "Export the saved capture to the configured dataset",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			FormatFlag,
			NoColorFlag,
		}, storageFlags()...),
		Action: attachAction,
	}
}

func attachAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeAttachFailed)
	}
	applyAttachFlags(c, cfg)

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeAttachFailed)
	}
	defer func() { _ = logger.Sync() }()

	collector := metrics.NewCollector(cfg.ID(), cfg.Network(), cfg.Storage.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target, err := resolveTarget(ctx, c)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeAttachFailed)
	}

	sc := cfg.SessionConfig()
	server := transport.NewServer(cfg.Network(), sc.Address)
	session := runtime.NewSession(sc, server, injectorFor(cfg.Injector), logger, collector)

	file := capture.New()
	if name := c.String("name"); name != "" {
		file.SetName(name)
	}
	if desc := c.String("description"); desc != "" {
		file.SetDescription(desc)
	}
	recorder := runtime.NewRecorder(file, cfg.Scrub(), logger, collector)
	session.OnRecords(recorder)
	session.Subscribe(recorder.Observe)

	forwarder, err := startForwarder(cfg, logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeAttachFailed)
	}
	if forwarder != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			_ = forwarder.Close(closeCtx)
		}()
		forwarder.SetTarget(target)
		session.Subscribe(forwarder.Observe)
		if cfg.Adapter.TapRecords {
			session.OnRecords(forwarder)
		}
	}

	detached := make(chan struct{})
	var detachOnce sync.Once
	session.Subscribe(func(e types.SessionEventKind) {
		if e.IsTerminal() {
			detachOnce.Do(func() { close(detached) })
		}
	})

	result, err := session.Attach(ctx, target)
	if err != nil {
		return cli.Exit(fmt.Sprintf("%s (%s): %v", result.Describe(), result, err), runtime.ExitCodeAttachFailed)
	}

	if outcome := awaitOutcome(session.TryCapture); outcome != runtime.OutcomeAccepted {
		logger.Error("start capture failed", map[string]any{"outcome": outcome.String()})
		_ = session.Detach()
		return cli.Exit(fmt.Sprintf("start capture %s", outcome), runtime.ExitCodeForOutcome(outcome))
	}

	var timeout <-chan time.Time
	if d := c.Duration("duration"); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		logger.Info("interrupted", nil)
	case <-timeout:
	case <-detached:
		logger.Warn("client disconnected", nil)
	}

	exitCode := stopCapture(session, logger)
	_ = session.Detach()

	if !file.IsFrozen() {
		file.Finalize()
	}

	path := filepath.Join(outputDir(cfg), capture.DefaultFilename(file.StartTime()))
	if err := file.Save(path); err != nil {
		logger.Error("save failed", map[string]any{"path": path, "error": err.Error()})
		return cli.Exit(fmt.Sprintf("save capture: %v", err), runtime.ExitCodeSaveFailed)
	}
	logger.Info("capture saved", map[string]any{
		"path":    path,
		"records": file.Len(),
		"dropped": recorder.Dropped(),
	})
	if forwarder != nil {
		forwarder.CaptureSaved(file)
	}

	if c.Bool("export") {
		if err := exportCapture(context.Background(), cfg, file, collector, logger); err != nil {
			logger.Error("export failed", map[string]any{"error": err.Error()})
		}
	}
	logger.Info("session metrics", collector.Snapshot().Fields())

	if err := r.Render(reader.InspectCapture(file, nil, 0)); err != nil {
		return err
	}
	if exitCode != runtime.ExitCodeOK {
		return cli.Exit("", exitCode)
	}
	return nil
}

// applyAttachFlags layers attach-only flags over the config file.
func applyAttachFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("payload") {
		cfg.Injector.Payload = c.String("payload")
	}
	if c.IsSet("injector") {
		cfg.Injector.Command = c.String("injector")
	}
	if c.IsSet("output") {
		cfg.Capture.Directory = c.String("output")
	}
	if c.Bool("no-scrub") {
		scrub := false
		cfg.Capture.ScrubSensitive = &scrub
	}
}

func resolveTarget(ctx context.Context, c *cli.Context) (process.Target, error) {
	if c.IsSet("pid") {
		return process.Lookup(ctx, uint32(c.Uint("pid")))
	}
	return process.Resolve(ctx, c.String("process"))
}

func injectorFor(ic config.InjectorConfig) runtime.Injector {
	if ic.Command == "" {
		return runtime.NoopInjector{}
	}
	return &runtime.CommandInjector{HelperPath: ic.Command, Args: ic.Args, Env: ic.Env}
}

func startForwarder(cfg *config.Config, logger *log.Logger, collector *metrics.Collector) (*adapter.Forwarder, error) {
	a, err := buildAdapter(cfg.Adapter)
	if err != nil || a == nil {
		return nil, err
	}
	return adapter.NewForwarder(a, adapter.ForwarderOptions{
		LoggerID:       cfg.ID(),
		QueueSize:      cfg.Adapter.QueueSize,
		TapRecords:     cfg.Adapter.TapRecords,
		PublishTimeout: cfg.Adapter.Timeout.Duration,
		Logger:         logger,
		Collector:      collector,
	}), nil
}

// awaitOutcome sends a control request and blocks until it resolves.
// Every request resolves exactly once, including failed sends.
// stopCapture stops a running capture and returns the exit code for the
// outcome. A peer that disconnects first is not a control failure.
func stopCapture(session *runtime.Session, logger *log.Logger) int {
	if session.CaptureState() != runtime.Capturing {
		return runtime.ExitCodeOK
	}
	outcome := awaitOutcome(session.TryStopCapture)
	switch outcome {
	case runtime.OutcomeAccepted:
		return runtime.ExitCodeOK
	case runtime.OutcomeDisconnected:
		logger.Warn("client disconnected before stop capture", nil)
		return runtime.ExitCodeOK
	}
	logger.Warn("stop capture failed", map[string]any{"outcome": outcome.String()})
	return runtime.ExitCodeForOutcome(outcome)
}

func awaitOutcome(send func(runtime.ControlCallback) error) runtime.ControlOutcome {
	ch := make(chan runtime.ControlOutcome, 1)
	_ = send(func(o runtime.ControlOutcome) { ch <- o })
	return <-ch
}

func outputDir(cfg *config.Config) string {
	if cfg.Capture.Directory == "" {
		return "."
	}
	return cfg.Capture.Directory
}
