package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/psforever/GameLogger/runtime"
)

func TestExitErrHandler_NilError(_ *testing.T) {
	// Must not exit on nil.
	exitErrHandler(nil, nil)
}

func TestAttachExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"saved", cli.Exit("", runtime.ExitCodeOK), 0},
		{"attach failed", cli.Exit("attach failed (dll_no_process)", runtime.ExitCodeAttachFailed), 1},
		{"start rejected", cli.Exit("start capture rejected", runtime.ExitCodeForOutcome(runtime.OutcomeRejected)), 2},
		{"no response", cli.Exit("start capture no_response", runtime.ExitCodeForOutcome(runtime.OutcomeNoResponse)), 2},
		{"save failed", cli.Exit("save capture: disk full", runtime.ExitCodeSaveFailed), 3},
		{"wrapped", errors.Join(errors.New("context"), cli.Exit("inner", runtime.ExitCodeSaveFailed)), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var exitCoder cli.ExitCoder
			if !errors.As(tt.err, &exitCoder) {
				t.Fatal("error should be cli.ExitCoder")
			}
			if exitCoder.ExitCode() != tt.want {
				t.Errorf("exit code = %d, want %d", exitCoder.ExitCode(), tt.want)
			}
		})
	}
}

func TestExitErrHandler_RegularError(t *testing.T) {
	var exitCoder cli.ExitCoder
	if errors.As(errors.New("regular error"), &exitCoder) {
		t.Fatal("regular error should not be cli.ExitCoder")
	}
}

func TestExitErrHandler_MessageSuppression(t *testing.T) {
	msg := cli.Exit("", 0).Error()
	if msg != "" && msg != "exit status 0" {
		t.Errorf("Expected empty or 'exit status 0', got %q", msg)
	}
}
