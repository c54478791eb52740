package capture

import (
	"errors"
	"io"

	"github.com/psforever/GameLogger/bitstream"
)

// DefaultChunkSize is how much RecordReader reads from its source at a time.
const DefaultChunkSize = 10 * 1024 * 1024

// compactThreshold is the consumed-prefix size above which the buffer is
// compacted.
const compactThreshold = 64 * 1024

// RecordReader decodes framed records from a stream. Bytes are read in
// chunks into a growing buffer; a record split across chunks is decoded once
// enough bytes have arrived. The consumed prefix is discarded periodically.
type RecordReader struct {
	r     io.Reader
	chunk []byte

	buf      []byte
	off      int
	consumed int64
	eof      bool
}

// NewRecordReader reads from r in chunks of chunkSize bytes
// (DefaultChunkSize if chunkSize <= 0).
func NewRecordReader(r io.Reader, chunkSize int) *RecordReader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &RecordReader{r: r, chunk: make([]byte, chunkSize)}
}

// Offset is the number of bytes consumed by decoded records.
func (rr *RecordReader) Offset() int64 {
	return rr.consumed + int64(rr.off)
}

// Buffered is the number of bytes read from the source but not yet decoded.
func (rr *RecordReader) Buffered() int {
	return len(rr.buf) - rr.off
}

// Next returns the next record.
//
// It returns io.EOF if the source ended cleanly between records, an
// *InvalidFileError of kind ErrUnexpectedEOF if it ended inside a record,
// one of kind ErrCorruptRecord for malformed bytes, or the source's error.
func (rr *RecordReader) Next() (Record, error) {
	for {
		if rr.Buffered() > 0 {
			c := bitstream.NewCursor(rr.buf[rr.off:])
			rec, err := DecodeRecord(c)
			if err == nil {
				rr.off += c.Pos()
				rr.compact()
				return rec, nil
			}
			if !IsNeedMoreData(err) {
				return nil, &InvalidFileError{Kind: ErrCorruptRecord, Offset: rr.Offset(), Err: err}
			}
		}

		if rr.eof {
			if rr.Buffered() == 0 {
				return nil, io.EOF
			}
			return nil, &InvalidFileError{
				Kind:   ErrUnexpectedEOF,
				Msg:    "file ends inside a record",
				Offset: rr.Offset() + int64(rr.Buffered()),
			}
		}
		if err := rr.fill(); err != nil {
			return nil, err
		}
	}
}

func (rr *RecordReader) fill() error {
	n, err := rr.r.Read(rr.chunk)
	if n > 0 {
		rr.buf = append(rr.buf, rr.chunk[:n]...)
	}
	if errors.Is(err, io.EOF) {
		rr.eof = true
		return nil
	}
	return err
}

func (rr *RecordReader) compact() {
	if rr.off == len(rr.buf) {
		rr.consumed += int64(rr.off)
		rr.buf = rr.buf[:0]
		rr.off = 0
		return
	}
	if rr.off < compactThreshold || rr.off < len(rr.buf)/2 {
		return
	}
	n := copy(rr.buf, rr.buf[rr.off:])
	rr.buf = rr.buf[:n]
	rr.consumed += int64(rr.off)
	rr.off = 0
}
