package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/psforever/GameLogger/log"
)

// ProgressFunc receives the number of records decoded so far and the total.
type ProgressFunc func(done, total uint64)

// LoadOptions configures Load and Read. A nil *LoadOptions uses defaults.
type LoadOptions struct {
	// Progress is called roughly every 5% of records and once at the end.
	Progress ProgressFunc
	// Logger receives non-fatal warnings. Defaults to a no-op logger.
	Logger *log.Logger
	// ChunkSize is the read size (DefaultChunkSize if zero).
	ChunkSize int
}

// Load reads and validates the capture file at path. The returned capture
// is frozen and unmodified.
func Load(path string, opts *LoadOptions) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	defer fh.Close()

	f, err := Read(fh, opts)
	if err != nil {
		return nil, err
	}
	f.path = path
	return f, nil
}

// Read decodes a capture from r. Any integrity or decode failure rejects the
// whole capture.
func Read(r io.Reader, opts *LoadOptions) (*File, error) {
	if opts == nil {
		opts = &LoadOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	raw := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, raw)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, headerError(ErrShortHeader, fmt.Sprintf("got %d bytes, want %d", n, HeaderSize))
		}
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	header, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	if header.EndTime < header.StartTime {
		logger.Warn("capture end time precedes start time", map[string]any{
			"start_time": header.StartTime,
			"end_time":   header.EndTime,
		})
	}

	f := &File{
		guid:     header.GUID,
		revision: header.Revision,
		start:    fromUnixSeconds(header.StartTime),
		end:      fromUnixSeconds(header.EndTime),
		frozen:   true,
		now:      time.Now,
	}

	stride := max(header.RecordCount/20, 1)
	rr := NewRecordReader(r, opts.ChunkSize)
	metaFound := false

	for i := uint64(0); i < header.RecordCount; i++ {
		offset := int64(HeaderSize) + rr.Offset()
		rec, err := rr.Next()
		if err != nil {
			return nil, recordError(err, i, offset)
		}

		switch rec := rec.(type) {
		case Metadata:
			if metaFound {
				return nil, &InvalidFileError{Kind: ErrDuplicateMetadata, Record: int64(i), Offset: offset}
			}
			f.name = rec.Name
			f.description = rec.Description
			metaFound = true
		case Game:
			f.records = append(f.records, rec.Record)
			f.recordBytes += int64(FramedSize(rec))
		}

		if opts.Progress != nil && ((i+1)%stride == 0 || i+1 == header.RecordCount) {
			opts.Progress(i+1, header.RecordCount)
		}
	}

	if !metaFound {
		logger.Warn("capture file is missing a metadata record; resave to fix", map[string]any{
			"guid": header.GUID.String(),
		})
	}
	if rr.Buffered() > 0 {
		logger.Warn("ignoring bytes after the last counted record", map[string]any{
			"record_count": header.RecordCount,
		})
	}

	logger.Debug("capture loaded", map[string]any{
		"guid":     header.GUID.String(),
		"revision": header.Revision,
		"records":  len(f.records),
	})
	return f, nil
}

func recordError(err error, index uint64, offset int64) error {
	if errors.Is(err, io.EOF) {
		return &InvalidFileError{
			Kind:   ErrUnexpectedEOF,
			Msg:    "file ends before the declared record count",
			Record: int64(index),
			Offset: offset,
		}
	}
	var fileErr *InvalidFileError
	if errors.As(err, &fileErr) {
		fileErr.Record = int64(index)
		fileErr.Offset += int64(HeaderSize)
		return fileErr
	}
	return fmt.Errorf("read capture record %d: %w", index, err)
}
