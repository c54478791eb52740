package transport

import (
	"fmt"
	"os"
	"path/filepath"
)

// MaxLoggers is the number of logger instances that may run side by side.
const MaxLoggers = 5

// DefaultAddress returns the unix socket path used by the logger with the
// given id.
func DefaultAddress(loggerID int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("gamelogger%d.sock", loggerID))
}

// ValidateLoggerID checks that id selects one of the MaxLoggers slots.
func ValidateLoggerID(id int) error {
	if id < 0 || id >= MaxLoggers {
		return fmt.Errorf("logger id %d out of range [0, %d)", id, MaxLoggers)
	}
	return nil
}
