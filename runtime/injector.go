package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/psforever/GameLogger/process"
)

// InjectResult is the outcome of loading the capture library into a target.
type InjectResult int

const (
	InjectSuccess InjectResult = iota
	// InjectPayloadMissing means the capture library was not found on disk.
	InjectPayloadMissing
	// InjectProcessGone means the target exited before or during injection.
	InjectProcessGone
	// InjectFailed covers every other injection failure.
	InjectFailed
)

func (r InjectResult) String() string {
	switch r {
	case InjectSuccess:
		return "success"
	case InjectPayloadMissing:
		return "payload_missing"
	case InjectProcessGone:
		return "process_gone"
	case InjectFailed:
		return "failed"
	default:
		return fmt.Sprintf("InjectResult(%d)", int(r))
	}
}

// InjectRequest describes one injection.
type InjectRequest struct {
	Target process.Target
	// PayloadPath is the capture library to load into the target.
	PayloadPath string
	// Address is where the loaded library must connect back to.
	Address  string
	LoggerID int
}

// Injector loads the capture library into a running client. Implementations
// return a non-nil error alongside any result other than InjectSuccess.
type Injector interface {
	Inject(ctx context.Context, req InjectRequest) (InjectResult, error)
}

// NoopInjector is used when the client loads the capture library on its
// own, such as when it is launched with the library preloaded.
type NoopInjector struct{}

// Inject always succeeds.
func (NoopInjector) Inject(context.Context, InjectRequest) (InjectResult, error) {
	return InjectSuccess, nil
}

// Exit codes of the injection helper.
const (
	HelperExitSuccess        = 0
	HelperExitFailed         = 1
	HelperExitPayloadMissing = 2
	HelperExitProcessGone    = 3
)

// CommandInjector runs an external helper binary that performs the
// platform-specific injection. The helper reads one JSON request from stdin.
type CommandInjector struct {
	// HelperPath is the helper binary.
	HelperPath string
	// Args are passed to the helper before any request data.
	Args []string
	// Env is appended to the inherited environment.
	Env []string
}

// helperInput is the JSON structure written to the helper's stdin.
type helperInput struct {
	PID      uint32 `json:"pid"`
	Process  string `json:"process,omitempty"`
	Payload  string `json:"payload"`
	Address  string `json:"address"`
	LoggerID int    `json:"logger_id"`
}

// Inject implements Injector.
func (c *CommandInjector) Inject(ctx context.Context, req InjectRequest) (InjectResult, error) {
	if req.PayloadPath != "" {
		if _, err := os.Stat(req.PayloadPath); err != nil {
			return InjectPayloadMissing, fmt.Errorf("capture library %s: %w", req.PayloadPath, err)
		}
	}
	if alive, err := process.Alive(ctx, req.Target.PID); err == nil && !alive {
		return InjectProcessGone, fmt.Errorf("%s: %w", req.Target, process.ErrNotFound)
	}

	cmd := exec.CommandContext(ctx, c.HelperPath, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = deduplicateEnv(append(os.Environ(), c.Env...))
	}

	input, err := json.Marshal(helperInput{
		PID:      req.Target.PID,
		Process:  req.Target.Name,
		Payload:  req.PayloadPath,
		Address:  req.Address,
		LoggerID: req.LoggerID,
	})
	if err != nil {
		return InjectFailed, fmt.Errorf("failed to encode helper input: %w", err)
	}
	cmd.Stdin = bytes.NewReader(append(input, '\n'))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = io.Discard

	if err := cmd.Start(); err != nil {
		return InjectFailed, fmt.Errorf("failed to start injection helper: %w", err)
	}

	code, err := waitExitCode(cmd)
	if err != nil {
		return InjectFailed, err
	}

	detail := strings.TrimSpace(stderr.String())
	switch code {
	case HelperExitSuccess:
		return InjectSuccess, nil
	case HelperExitPayloadMissing:
		return InjectPayloadMissing, helperError(code, detail)
	case HelperExitProcessGone:
		return InjectProcessGone, helperError(code, detail)
	default:
		return InjectFailed, helperError(code, detail)
	}
}

func helperError(code int, detail string) error {
	if detail == "" {
		return fmt.Errorf("injection helper exited with code %d", code)
	}
	return fmt.Errorf("injection helper exited with code %d: %s", code, detail)
}

// waitExitCode waits for cmd and extracts its exit status.
func waitExitCode(cmd *exec.Cmd) (int, error) {
	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus(), nil
		}
		return -1, nil
	}
	return 0, fmt.Errorf("injection helper wait failed: %w", err)
}

// deduplicateEnv keeps the last occurrence of each env var key.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}

