package capture

import (
	"errors"
	"fmt"
)

// ErrInvalidCaptureFile is matched by every load failure caused by file
// contents, as opposed to I/O errors opening or reading the file.
var ErrInvalidCaptureFile = errors.New("invalid capture file")

// Sentinel kinds for InvalidFileError. Use errors.Is(err, ErrXxx).
var (
	ErrShortHeader       = errors.New("file header is not the correct length")
	ErrBadMagic          = errors.New("invalid GCAP magic")
	ErrChecksumMismatch  = errors.New("invalid header checksum")
	ErrVersionMismatch   = errors.New("incompatible GCAP file version")
	ErrUnexpectedEOF     = errors.New("unexpected end of capture file")
	ErrCorruptRecord     = errors.New("corrupt record")
	ErrDuplicateMetadata = errors.New("multiple metadata records")
)

// InvalidFileError reports why a capture file was rejected.
type InvalidFileError struct {
	// Kind is the sentinel classifying the failure.
	Kind error
	// Msg adds detail to Kind, if any.
	Msg string
	// Record is the index of the record being read, or -1 for header failures.
	Record int64
	// Offset is the byte offset in the file at which the failure was detected.
	Offset int64
	// Err is the underlying decode error, if any.
	Err error
}

func (e *InvalidFileError) Error() string {
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Record >= 0 {
		msg += fmt.Sprintf(" at record %d (offset %d)", e.Record, e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidFileError) Unwrap() error {
	return e.Err
}

// Is matches the error's kind and ErrInvalidCaptureFile.
func (e *InvalidFileError) Is(target error) bool {
	return target == ErrInvalidCaptureFile || errors.Is(e.Kind, target)
}

func headerError(kind error, msg string) *InvalidFileError {
	return &InvalidFileError{Kind: kind, Msg: msg, Record: -1}
}

// NeedMoreDataError signals that a record cannot be decoded until more bytes
// are available. It is the normal streaming signal, not a failure.
type NeedMoreDataError struct {
	// Needed is the minimum number of additional bytes required.
	Needed int
}

func (e *NeedMoreDataError) Error() string {
	return fmt.Sprintf("need %d more bytes", e.Needed)
}

// IsNeedMoreData returns true if err is a *NeedMoreDataError.
func IsNeedMoreData(err error) bool {
	var needErr *NeedMoreDataError
	return errors.As(err, &needErr)
}
