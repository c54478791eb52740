package runtime

import (
	"sync"

	"github.com/psforever/GameLogger/capture"
	"github.com/psforever/GameLogger/gamerecord"
	"github.com/psforever/GameLogger/log"
	"github.com/psforever/GameLogger/metrics"
	"github.com/psforever/GameLogger/types"
)

// Recorder appends received records to a capture file and finalizes the
// file when capture stops. Subscribe Observe and register the recorder as a
// record sink on the same session.
type Recorder struct {
	file      *capture.File
	scrub     bool
	logger    *log.Logger
	collector *metrics.Collector

	mu      sync.Mutex
	dropped int
}

// NewRecorder creates a recorder. With scrub set, login credentials are
// removed from records before they are stored.
func NewRecorder(file *capture.File, scrub bool, logger *log.Logger, collector *metrics.Collector) *Recorder {
	if logger == nil {
		logger = log.Nop()
	}
	return &Recorder{file: file, scrub: scrub, logger: logger, collector: collector}
}

// File returns the capture being recorded.
func (r *Recorder) File() *capture.File {
	return r.file
}

// Dropped is the number of records that arrived after finalization.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// HandleRecords implements RecordSink.
func (r *Recorder) HandleRecords(records []gamerecord.Record) {
	if r.scrub {
		scrubbed := make([]gamerecord.Record, len(records))
		for i, rec := range records {
			out, changed := gamerecord.Scrub(rec)
			if changed {
				r.collector.IncRecordsScrubbed()
			}
			scrubbed[i] = out
		}
		records = scrubbed
	}

	if !r.file.TryAddRecords(records...) {
		r.mu.Lock()
		r.dropped += len(records)
		r.mu.Unlock()
		r.logger.Debug("records after capture stopped dropped", map[string]any{"count": len(records)})
	}
}

// Observe finalizes the capture on EventCaptureStopped.
func (r *Recorder) Observe(event types.SessionEventKind) {
	if event != types.EventCaptureStopped {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file.IsFrozen() {
		return
	}
	r.file.Finalize()
	r.logger.Info("capture finalized", map[string]any{
		"records":  r.file.Len(),
		"duration": r.file.Duration().String(),
	})
}
