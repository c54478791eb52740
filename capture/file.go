// Package capture implements the GCAP capture file: an in-memory capture
// that grows while a session records, and its on-disk format.
//
// File layout: a fixed HeaderSize-byte header (magic, version, revision,
// GUID, start/end time, record count, SHA-256 of the preceding fields)
// followed by RecordCount framed records, the first of which is Metadata.
package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psforever/GameLogger/gamerecord"
)

const (
	defaultNamePrefix = "GameLogger"
	nameTimeLayout    = "2006-01-02_15-04-05"
	// Extension is the capture file suffix.
	Extension = ".gcap"
)

// File is a capture: identity, metadata and an append-only list of game
// records. Methods are safe for concurrent use; a session goroutine may
// append while another goroutine reads.
type File struct {
	mu sync.RWMutex

	guid        uuid.UUID
	name        string
	description string
	revision    uint64
	start       time.Time
	end         time.Time
	path        string

	records     []gamerecord.Record
	recordBytes int64

	modified  bool
	frozen    bool
	firstSave bool

	now func() time.Time
}

// Option configures a new File.
type Option func(*File)

// WithClock overrides the time source used for start and end stamps.
func WithClock(now func() time.Time) Option {
	return func(f *File) { f.now = now }
}

// New creates an empty, unsaved capture with a fresh GUID and the start time
// stamped.
func New(opts ...Option) *File {
	f := &File{
		guid:      uuid.New(),
		modified:  true,
		firstSave: true,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.start = f.now()
	f.name = DefaultName(f.start)
	return f
}

// DefaultName is the display name given to a capture started at t.
func DefaultName(t time.Time) string {
	return fmt.Sprintf("%s %s", defaultNamePrefix, t.Format(nameTimeLayout))
}

// DefaultFilename is the file name suggested for a capture started at t.
func DefaultFilename(t time.Time) string {
	return fmt.Sprintf("%s-%s%s", defaultNamePrefix, t.Format(nameTimeLayout), Extension)
}

func (f *File) GUID() uuid.UUID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.guid
}

func (f *File) Name() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.name
}

// SetName changes the display name. The capture is marked modified only if
// the name actually changes.
func (f *File) SetName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.name != name {
		f.name = name
		f.modified = true
	}
}

func (f *File) Description() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.description
}

// SetDescription changes the description, marking the capture modified if
// it changes.
func (f *File) SetDescription(desc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.description != desc {
		f.description = desc
		f.modified = true
	}
}

// Revision is the number of saves that changed the capture.
func (f *File) Revision() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.revision
}

func (f *File) StartTime() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.start
}

// EndTime is zero until Finalize.
func (f *File) EndTime() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.end
}

// Path is the file the capture was last saved to or loaded from.
func (f *File) Path() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.path
}

func (f *File) IsModified() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.modified
}

// IsFrozen reports whether records can no longer be added.
func (f *File) IsFrozen() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.frozen
}

// IsFirstSave reports whether the capture has never been written to disk.
func (f *File) IsFirstSave() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.firstSave
}

// Len returns the number of game records.
func (f *File) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.records)
}

// Record returns the i-th game record.
func (f *File) Record(i int) gamerecord.Record {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.records[i]
}

// Records returns a copy of the record list.
func (f *File) Records() []gamerecord.Record {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]gamerecord.Record, len(f.records))
	copy(out, f.records)
	return out
}

// AddRecord appends a game record. It panics if the capture is finalized or
// the record has no body.
func (f *File) AddRecord(rec gamerecord.Record) {
	f.AddRecords(rec)
}

// AddRecords appends game records in order.
func (f *File) AddRecords(recs ...gamerecord.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen {
		panic("capture: AddRecords on a finalized capture")
	}
	f.appendLocked(recs)
}

// TryAddRecords is AddRecords for producers that may race with Finalize. It
// reports false and drops the records if the capture is already finalized.
func (f *File) TryAddRecords(recs ...gamerecord.Record) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen {
		return false
	}
	f.appendLocked(recs)
	return true
}

func (f *File) appendLocked(recs []gamerecord.Record) {
	for _, rec := range recs {
		if rec.Body == nil {
			panic("capture: AddRecords with a record that has no body")
		}
		f.records = append(f.records, rec)
		f.recordBytes += int64(FramedSize(Game{Record: rec}))
	}
	if len(recs) > 0 {
		f.modified = true
	}
}

// Finalize stamps the end time and freezes the record list. It panics if
// called twice.
func (f *File) Finalize() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen {
		panic("capture: Finalize on a finalized capture")
	}
	f.end = f.now()
	f.frozen = true
	f.modified = true
}

// EstimatedSize is the number of bytes Save would write.
func (f *File) EstimatedSize() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	meta := Metadata{Name: f.name, Description: f.description}
	return int64(HeaderSize+FramedSize(meta)) + f.recordBytes
}

// Duration is the span between start and end, or zero while capturing.
func (f *File) Duration() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.end.IsZero() || f.end.Before(f.start) {
		return 0
	}
	return f.end.Sub(f.start)
}

func unixSeconds(t time.Time) uint64 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}

func fromUnixSeconds(s uint64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(int64(s), 0)
}
