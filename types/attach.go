// Package types defines domain types shared across the GameLogger packages.
//
//nolint:revive // types is a common Go package naming convention
package types

// AttachResult is the closed set of attach outcomes reported to callers.
type AttachResult int

const (
	AttachSuccess AttachResult = iota
	AttachDllNoProcess
	AttachDllInjectionFailure
	AttachDllMissing
	AttachDllConnection
	AttachPipeServerStartup
	AttachDllHandshake
	AttachUnknownFailure
)

var attachResultNames = [...]string{
	AttachSuccess:             "success",
	AttachDllNoProcess:        "dll_no_process",
	AttachDllInjectionFailure: "dll_injection_failure",
	AttachDllMissing:          "dll_missing",
	AttachDllConnection:       "dll_connection",
	AttachPipeServerStartup:   "pipe_server_startup",
	AttachDllHandshake:        "dll_handshake",
	AttachUnknownFailure:      "unknown_failure",
}

func (r AttachResult) String() string {
	if r >= 0 && int(r) < len(attachResultNames) {
		return attachResultNames[r]
	}
	return attachResultNames[AttachUnknownFailure]
}

// Describe returns a human-readable explanation of the result.
func (r AttachResult) Describe() string {
	switch r {
	case AttachSuccess:
		return "attached"
	case AttachDllNoProcess:
		return "the target process no longer exists"
	case AttachDllInjectionFailure:
		return "failed to inject the capture library into the target process"
	case AttachDllMissing:
		return "the capture library could not be found"
	case AttachDllConnection:
		return "the instrumented process did not connect"
	case AttachPipeServerStartup:
		return "failed to start the local transport"
	case AttachDllHandshake:
		return "the instrumented process failed the handshake"
	default:
		return "unknown attach failure"
	}
}
