package runtime

import (
	"errors"
	"fmt"

	"github.com/psforever/GameLogger/types"
)

// Process exit codes used by the command line.
const (
	ExitCodeOK             = 0 // completed normally
	ExitCodeAttachFailed   = 1 // attach did not reach Attached
	ExitCodeCaptureControl = 2 // start or stop capture was rejected or unanswered
	ExitCodeSaveFailed     = 3 // the capture could not be written
)

// AttachError reports a failed Attach. Result is never AttachSuccess.
type AttachError struct {
	Result types.AttachResult
	Msg    string
	Err    error
}

func (e *AttachError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attach failed (%s): %s: %v", e.Result, e.Msg, e.Err)
	}
	return fmt.Sprintf("attach failed (%s): %s", e.Result, e.Msg)
}

func (e *AttachError) Unwrap() error {
	return e.Err
}

// AttachResultOf extracts the attach result carried by err. A nil error is
// AttachSuccess; errors not produced by Attach map to AttachUnknownFailure.
func AttachResultOf(err error) types.AttachResult {
	if err == nil {
		return types.AttachSuccess
	}
	var attachErr *AttachError
	if errors.As(err, &attachErr) {
		return attachErr.Result
	}
	return types.AttachUnknownFailure
}

// attachResultForInject maps an injector outcome onto the attach result set.
func attachResultForInject(r InjectResult) types.AttachResult {
	switch r {
	case InjectSuccess:
		return types.AttachSuccess
	case InjectPayloadMissing:
		return types.AttachDllMissing
	case InjectProcessGone:
		return types.AttachDllNoProcess
	case InjectFailed:
		return types.AttachDllInjectionFailure
	default:
		return types.AttachUnknownFailure
	}
}

// ExitCodeForOutcome maps a control outcome to a process exit code.
func ExitCodeForOutcome(o ControlOutcome) int {
	if o == OutcomeAccepted {
		return ExitCodeOK
	}
	return ExitCodeCaptureControl
}
