package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/psforever/GameLogger/adapter"
	"github.com/psforever/GameLogger/lode"
	"github.com/psforever/GameLogger/log"
	"github.com/psforever/GameLogger/runtime"
	"github.com/psforever/GameLogger/transport"
)

// Config represents a gamelogger.yaml file. Every value is optional and
// acts as a default for command flags; flags always win.
type Config struct {
	LoggerID  *int            `yaml:"logger_id"`
	Transport TransportConfig `yaml:"transport"`
	Injector  InjectorConfig  `yaml:"injector"`
	Capture   CaptureConfig   `yaml:"capture"`
	Log       LogConfig       `yaml:"log"`
	Adapter   AdapterConfig   `yaml:"adapter"`
	Storage   StorageConfig   `yaml:"storage"`
}

// TransportConfig selects the local socket and its timeouts.
type TransportConfig struct {
	// Network is "unix" (default) or "tcp".
	Network        string   `yaml:"network"`
	Address        string   `yaml:"address"`
	AcceptTimeout  Duration `yaml:"accept_timeout"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
	ControlTimeout Duration `yaml:"control_timeout"`
}

// InjectorConfig names the helper that loads the capture library.
type InjectorConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
	Payload string   `yaml:"payload"`
}

// CaptureConfig controls where captures are saved.
type CaptureConfig struct {
	Directory string `yaml:"directory"`
	// ScrubSensitive defaults to true when unset.
	ScrubSensitive *bool `yaml:"scrub_sensitive"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AdapterConfig configures the notification adapter. Type is redis,
// webhook, or empty for none.
type AdapterConfig struct {
	Type    string `yaml:"type"`
	URL     string `yaml:"url"`
	Channel string `yaml:"channel,omitempty"`
	// RecordsChannel is the redis channel for record batches.
	RecordsChannel string            `yaml:"records_channel,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	Timeout        Duration          `yaml:"timeout,omitempty"`
	Retries        *int              `yaml:"retries,omitempty"`
	Encoding       string            `yaml:"encoding,omitempty"`
	TapRecords     bool              `yaml:"tap_records"`
	QueueSize      int               `yaml:"queue_size"`
}

// StorageConfig configures export of saved captures to a Lode dataset.
// An empty Backend disables export.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	// Archive also stores the raw .gcap beside the rows.
	Archive bool `yaml:"archive"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "1s", "250ms").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: negative", s)
	}
	d.Duration = parsed
	return nil
}

// ID returns the configured logger id, or 0.
func (c *Config) ID() int {
	if c.LoggerID == nil {
		return 0
	}
	return *c.LoggerID
}

// Scrub reports whether sensitive login packets are truncated.
func (c *Config) Scrub() bool {
	return c.Capture.ScrubSensitive == nil || *c.Capture.ScrubSensitive
}

// Validate checks values that can be rejected before anything starts.
func (c *Config) Validate() error {
	var errs []error
	if err := transport.ValidateLoggerID(c.ID()); err != nil {
		errs = append(errs, err)
	}
	switch c.Transport.Network {
	case "", "unix", "tcp":
	default:
		errs = append(errs, fmt.Errorf("transport.network must be unix or tcp, got %q", c.Transport.Network))
	}
	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.Adapter.Type {
	case "", "redis", "webhook":
	default:
		errs = append(errs, fmt.Errorf("adapter.type must be redis or webhook, got %q", c.Adapter.Type))
	}
	if _, err := adapter.ParseEncoding(c.Adapter.Encoding); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Backend {
	case "", lode.BackendFS, lode.BackendS3, lode.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be fs or s3, got %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

// SessionConfig builds the session settings, starting from the stock
// timeouts.
func (c *Config) SessionConfig() runtime.SessionConfig {
	sc := runtime.DefaultSessionConfig(c.ID())
	if c.Transport.Address != "" {
		sc.Address = c.Transport.Address
	}
	sc.PayloadPath = c.Injector.Payload
	setIfPositive(&sc.AcceptTimeout, c.Transport.AcceptTimeout)
	setIfPositive(&sc.ReadTimeout, c.Transport.ReadTimeout)
	setIfPositive(&sc.WriteTimeout, c.Transport.WriteTimeout)
	setIfPositive(&sc.ControlTimeout, c.Transport.ControlTimeout)
	return sc
}

// Network returns the transport network, defaulting to unix.
func (c *Config) Network() string {
	if c.Transport.Network == "" {
		return "unix"
	}
	return c.Transport.Network
}

// LogOptions builds logger options. A file sink is added when File is set.
func (c *Config) LogOptions() log.Options {
	opts := log.Options{Level: c.Log.Level}
	if c.Log.File != "" {
		opts.File = &log.FileOptions{
			Filename:   c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		}
	}
	return opts
}

// StorageTarget builds the lode backend selection.
func (c *Config) StorageTarget() lode.Target {
	t := lode.Target{Backend: c.Storage.Backend, Path: c.Storage.Path}
	if t.Backend == lode.BackendS3 {
		bucket, prefix := lode.ParseS3Path(c.Storage.Path)
		t.S3 = lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       c.Storage.Region,
			Endpoint:     c.Storage.Endpoint,
			UsePathStyle: c.Storage.S3PathStyle,
		}
	}
	return t
}

func setIfPositive(dst *time.Duration, d Duration) {
	if d.Duration > 0 {
		*dst = d.Duration
	}
}
