package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/psforever/GameLogger/adapter"
	"github.com/psforever/GameLogger/iox"
)

func testNotification() *adapter.Notification {
	return &adapter.Notification{
		ContractVersion: adapter.ContractVersion,
		EventType:       adapter.EventCaptureSaved,
		LoggerID:        0,
		PID:             4321,
		Timestamp:       "2026-10-16T12:00:00Z",
		Capture: &adapter.CaptureInfo{
			GUID:      "5b1c55a4-7a2e-4d43-9a0c-7e8a7b0b2d51",
			Name:      "GameLogger 2026-10-16_12-00-00",
			Path:      "/captures/GameLogger-2026-10-16_12-00-00.gcap",
			Revision:  1,
			Records:   42,
			StartTime: "2026-10-16T12:00:00Z",
			SizeBytes: 4096,
		},
	}
}

func newAdapter(t *testing.T, cfg Config) *Adapter {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(iox.CloseFunc(a))
	return a
}

func TestPublish_Encodings(t *testing.T) {
	for _, enc := range []adapter.Encoding{adapter.EncodingJSON, adapter.EncodingMsgPack} {
		t.Run(string(enc), func(t *testing.T) {
			received := make(chan *adapter.Notification, 1)
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); ct != enc.ContentType() {
					t.Errorf("Content-Type = %s, want %s", ct, enc.ContentType())
				}
				body, _ := io.ReadAll(r.Body)
				n, err := adapter.Unmarshal(body, enc)
				if err != nil {
					t.Errorf("Unmarshal() error = %v", err)
				}
				received <- n
				w.WriteHeader(http.StatusNoContent)
			}))
			defer ts.Close()

			a := newAdapter(t, Config{URL: ts.URL, Encoding: enc, Retries: 0})
			if err := a.Publish(t.Context(), testNotification()); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}

			n := <-received
			if n == nil || n.Capture == nil {
				t.Fatalf("notification = %+v", n)
			}
			if n.Capture.Records != 42 || n.Capture.Revision != 1 {
				t.Errorf("capture = %+v", n.Capture)
			}
		})
	}
}

func TestPublish_CustomHeaders(t *testing.T) {
	var auth atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := newAdapter(t, Config{URL: ts.URL, Headers: map[string]string{"Authorization": "Bearer capture-token"}})
	if err := a.Publish(t.Context(), testNotification()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := auth.Load(); got != "Bearer capture-token" {
		t.Errorf("Authorization = %v", got)
	}
}

func TestPublish_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		retries   int
		wantErr   bool
		wantCalls int32
	}{
		{name: "recovers after 503", statuses: []int{503, 503, 200}, retries: 3, wantCalls: 3},
		{name: "5xx exhausts retries", statuses: []int{500, 500, 500}, retries: 2, wantErr: true, wantCalls: 3},
		{name: "4xx fails immediately", statuses: []int{400}, retries: 3, wantErr: true, wantCalls: 1},
		{name: "202 is success", statuses: []int{202}, retries: 0, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				n := calls.Add(1)
				w.WriteHeader(tt.statuses[min(int(n)-1, len(tt.statuses)-1)])
			}))
			defer ts.Close()

			a := newAdapter(t, Config{URL: ts.URL, Retries: tt.retries, Backoff: 10 * time.Millisecond})
			err := a.Publish(t.Context(), testNotification())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Publish() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantErr && tt.statuses[0] < 500 {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) || statusErr.Code != tt.statuses[0] {
					t.Errorf("error = %v, want StatusError{%d}", err, tt.statuses[0])
				}
			}
		})
	}
}

func TestPublish_RecordBatchesSentOnce(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	a := newAdapter(t, Config{URL: ts.URL, Retries: 3, Backoff: 10 * time.Millisecond})
	n := testNotification()
	n.EventType, n.Capture = adapter.EventRecords, nil

	err := a.Publish(t.Context(), n)
	var de *adapter.DeliveryError
	if !errors.As(err, &de) || de.Attempts != 1 {
		t.Fatalf("Publish() error = %v, want DeliveryError after 1 attempt", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	a := newAdapter(t, Config{URL: ts.URL, Retries: 5})
	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, testNotification()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New(Config{URL: "http://localhost", Retries: -1}); err == nil {
		t.Error("expected error for negative retries")
	}
	if _, err := New(Config{URL: "http://localhost", Encoding: "protobuf"}); err == nil {
		t.Error("expected error for unknown encoding")
	}

	a := newAdapter(t, Config{URL: "http://localhost"})
	if a.client.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", a.client.Timeout, DefaultTimeout)
	}
	if a.encoding != adapter.EncodingJSON {
		t.Errorf("Encoding = %q, want json", a.encoding)
	}
}
