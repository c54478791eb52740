package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestIngestionError_Classification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		canceled   bool
		disconnect bool
	}{
		{"canceled", &IngestionError{Kind: IngestionErrorCanceled, Err: context.Canceled}, true, false},
		{"peer disconnect", &IngestionError{Kind: IngestionErrorPeerDisconnect, Err: errors.New("peer sent DISCONNECT")}, false, true},
		{"transport", &IngestionError{Kind: IngestionErrorTransport, Err: io.EOF}, false, false},
		{"wrapped canceled", fmt.Errorf("loop: %w", &IngestionError{Kind: IngestionErrorCanceled, Err: context.Canceled}), true, false},
		{"plain error", errors.New("boom"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCanceledError(tt.err); got != tt.canceled {
				t.Errorf("IsCanceledError = %v, want %v", got, tt.canceled)
			}
			if got := IsPeerDisconnect(tt.err); got != tt.disconnect {
				t.Errorf("IsPeerDisconnect = %v, want %v", got, tt.disconnect)
			}
		})
	}
}

func TestIngestionError_Unwrap(t *testing.T) {
	err := &IngestionError{Kind: IngestionErrorTransport, Err: fmt.Errorf("read message: %w", io.ErrUnexpectedEOF)}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("cause lost from chain")
	}
	if err.Error() != "read message: unexpected EOF" {
		t.Errorf("Error() = %q", err.Error())
	}
}
