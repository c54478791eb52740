package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/psforever/GameLogger/bitstream"
	"github.com/psforever/GameLogger/iox"
	"github.com/psforever/GameLogger/types"
)

// Save writes the capture to path. The revision is bumped if the capture
// was modified since it was last saved or loaded. The file is written to a
// temporary sibling and renamed into place.
//
// On success the new revision and path are committed, the modified flag is
// cleared, and the capture is frozen.
func (f *File) Save(path string) error {
	f.mu.RLock()
	header, meta, records := f.snapshotLocked()
	f.mu.RUnlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".gcap-*")
	if err != nil {
		return fmt.Errorf("create temp capture file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriterSize(tmp, 1<<20)
	if err := writeCapture(bw, header, meta, records); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write capture file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync capture file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close capture file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename capture file: %w", err)
	}
	committed = true

	f.mu.Lock()
	f.revision = header.Revision
	f.path = path
	f.modified = false
	f.firstSave = false
	f.frozen = true
	f.mu.Unlock()
	return nil
}

// WriteTo encodes the capture as it would be saved, without committing
// anything into the in-memory object.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	f.mu.RLock()
	header, meta, records := f.snapshotLocked()
	f.mu.RUnlock()

	cw := &iox.CountingWriter{W: w}
	err := writeCapture(cw, header, meta, records)
	return cw.N, err
}

func (f *File) snapshotLocked() (Header, Metadata, []Game) {
	rev := f.revision
	if f.modified {
		rev++
	}
	records := make([]Game, len(f.records))
	for i, rec := range f.records {
		records[i] = Game{Record: rec}
	}
	header := Header{
		Version:     types.FileVersion,
		Revision:    rev,
		GUID:        f.guid,
		StartTime:   unixSeconds(f.start),
		EndTime:     unixSeconds(f.end),
		RecordCount: uint64(len(records)) + 1,
	}
	return header, Metadata{Name: f.name, Description: f.description}, records
}

func writeCapture(w io.Writer, header Header, meta Metadata, records []Game) error {
	hdr, err := header.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("write capture header: %w", err)
	}

	enc := bitstream.NewWriter(4096)
	if err := EncodeRecord(enc, meta); err != nil {
		return err
	}
	if _, err := w.Write(enc.Bytes()); err != nil {
		return fmt.Errorf("write metadata record: %w", err)
	}

	for i, rec := range records {
		enc.Reset()
		if err := EncodeRecord(enc, rec); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := w.Write(enc.Bytes()); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	return nil
}
