package capture

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/psforever/GameLogger/bitstream"
	"github.com/psforever/GameLogger/gamerecord"
	"github.com/psforever/GameLogger/log"
	"github.com/psforever/GameLogger/types"
)

var testStart = time.Date(2016, 7, 4, 18, 30, 5, 0, time.UTC)

// fixedClock returns testStart on the first call and advances a minute per call.
func fixedClock() func() time.Time {
	calls := 0
	return func() time.Time {
		t := testStart.Add(time.Duration(calls) * time.Minute)
		calls++
		return t
	}
}

func packet(i int) gamerecord.Record {
	return gamerecord.Record{
		Timestamp: uint64(1000 + i),
		Body: gamerecord.Packet{
			Type:        gamerecord.PacketGame,
			Destination: gamerecord.Destination(i % 2),
			Payload:     bytes.Repeat([]byte{byte(i)}, 1+i*37%300),
		},
	}
}

// newCapture builds a finalized capture holding n packet records.
func newCapture(t *testing.T, n int) *File {
	t.Helper()
	f := New(WithClock(fixedClock()))
	f.SetDescription("outpost fight")
	for i := range n {
		f.AddRecord(packet(i))
	}
	f.AddRecord(gamerecord.Record{Timestamp: 99999, Body: gamerecord.CryptoState{}})
	f.Finalize()
	return f
}

func encodeCapture(t *testing.T, f *File) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	return buf.Bytes()
}

// rewriteHeader re-encodes data's header after applying mutate, keeping the
// checksum valid.
func rewriteHeader(t *testing.T, data []byte, mutate func(*Header)) {
	t.Helper()
	h, err := ParseHeader(data[:HeaderSize])
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	mutate(&h)
	raw, err := h.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	copy(data, raw)
}

func TestNew(t *testing.T) {
	f := New(WithClock(fixedClock()))

	if f.GUID().String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("GUID should be generated")
	}
	if New().GUID() == f.GUID() {
		t.Error("GUIDs should be unique")
	}
	if !f.StartTime().Equal(testStart) {
		t.Errorf("StartTime = %v, want %v", f.StartTime(), testStart)
	}
	if f.Name() != "GameLogger 2016-07-04_18-30-05" {
		t.Errorf("Name = %q", f.Name())
	}
	if !f.IsModified() || !f.IsFirstSave() || f.IsFrozen() {
		t.Errorf("modified=%v firstSave=%v frozen=%v, want true true false",
			f.IsModified(), f.IsFirstSave(), f.IsFrozen())
	}
	if got := DefaultFilename(testStart); got != "GameLogger-2016-07-04_18-30-05.gcap" {
		t.Errorf("DefaultFilename = %q", got)
	}
}

func TestFile_ContractViolations(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s should panic", name)
			}
		}()
		fn()
	}

	f := New()
	mustPanic("AddRecord without body", func() { f.AddRecord(gamerecord.Record{}) })
	f.Finalize()
	mustPanic("AddRecord after Finalize", func() { f.AddRecord(packet(1)) })
	mustPanic("second Finalize", func() { f.Finalize() })
}

func TestRecord_Framing(t *testing.T) {
	records := []Record{
		Metadata{Name: "capture", Description: strings.Repeat("d", 400)},
		Game{Record: packet(3)},
		Game{Record: gamerecord.Record{Timestamp: 7, Body: gamerecord.CryptoState{}}},
	}

	for _, rec := range records {
		w := bitstream.NewWriter(64)
		if err := EncodeRecord(w, rec); err != nil {
			t.Fatalf("EncodeRecord failed: %v", err)
		}
		data := w.Bytes()
		if len(data) != FramedSize(rec) {
			t.Errorf("%s: FramedSize = %d, encoded %d", rec.Type(), FramedSize(rec), len(data))
		}
		if RecordType(data[0]) != rec.Type() {
			t.Errorf("%s: opcode = %d", rec.Type(), data[0])
		}

		got, err := DecodeRecord(bitstream.NewCursor(data))
		if err != nil {
			t.Fatalf("%s: DecodeRecord failed: %v", rec.Type(), err)
		}
		if !reflect.DeepEqual(got, rec) {
			t.Errorf("%s: DecodeRecord = %#v, want %#v", rec.Type(), got, rec)
		}
	}
}

func TestDecodeRecord_NeedMoreData(t *testing.T) {
	w := bitstream.NewWriter(64)
	if err := EncodeRecord(w, Game{Record: packet(5)}); err != nil {
		t.Fatal(err)
	}
	data := w.Bytes()

	tests := []struct {
		name       string
		available  int
		wantNeeded int
	}{
		{"empty", 0, RecordHeaderSize},
		{"partial header", 3, 2},
		{"header only", RecordHeaderSize, len(data) - RecordHeaderSize},
		{"one byte short", len(data) - 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := bitstream.NewCursor(data[:tt.available])
			_, err := DecodeRecord(c)

			var needErr *NeedMoreDataError
			if !errors.As(err, &needErr) {
				t.Fatalf("err = %v, want *NeedMoreDataError", err)
			}
			if needErr.Needed != tt.wantNeeded {
				t.Errorf("Needed = %d, want %d", needErr.Needed, tt.wantNeeded)
			}
			if c.Pos() != 0 {
				t.Errorf("cursor left at %d, want 0", c.Pos())
			}
		})
	}
}

func TestDecodeRecord_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"unknown record type", []byte{9, 0, 0, 0, 0}},
		{"payload shorter than its contents", []byte{0, 2, 0, 0, 0, 0x01, 5}},
		{"unread payload bytes", []byte{0, 5, 0, 0, 0, 0x01, 0, 0x01, 0, 0xff}},
		{"absurd length", []byte{1, 0xff, 0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord(bitstream.NewCursor(tt.data))
			if err == nil || IsNeedMoreData(err) {
				t.Fatalf("err = %v, want decode error", err)
			}
		})
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	f := newCapture(t, 25)
	path := filepath.Join(t.TempDir(), DefaultFilename(f.StartTime()))

	if err := f.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if f.Revision() != 1 || f.IsModified() || f.IsFirstSave() || f.Path() != path {
		t.Fatalf("after Save: revision=%d modified=%v firstSave=%v path=%q",
			f.Revision(), f.IsModified(), f.IsFirstSave(), f.Path())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != f.EstimatedSize() {
		t.Errorf("file size = %d, EstimatedSize = %d", info.Size(), f.EstimatedSize())
	}

	loaded, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.GUID() != f.GUID() {
		t.Errorf("GUID = %v, want %v", loaded.GUID(), f.GUID())
	}
	if loaded.Name() != f.Name() || loaded.Description() != "outpost fight" {
		t.Errorf("metadata = %q/%q", loaded.Name(), loaded.Description())
	}
	if loaded.Revision() != 1 {
		t.Errorf("Revision = %d, want 1", loaded.Revision())
	}
	if !loaded.StartTime().Equal(testStart) || !loaded.EndTime().Equal(testStart.Add(time.Minute)) {
		t.Errorf("times = %v..%v", loaded.StartTime(), loaded.EndTime())
	}
	if !loaded.IsFrozen() || loaded.IsModified() || loaded.IsFirstSave() {
		t.Errorf("loaded flags: frozen=%v modified=%v firstSave=%v", loaded.IsFrozen(), loaded.IsModified(), loaded.IsFirstSave())
	}
	if !reflect.DeepEqual(loaded.Records(), f.Records()) {
		t.Error("loaded records differ from saved records")
	}

	// Unmodified re-save keeps the revision.
	if err := loaded.Save(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Revision() != 1 {
		t.Errorf("unmodified re-save revision = %d, want 1", loaded.Revision())
	}

	// Setting the same name is not a modification.
	loaded.SetName(loaded.Name())
	if loaded.IsModified() {
		t.Error("SetName with the same value marked the capture modified")
	}
	loaded.SetName("renamed")
	if err := loaded.Save(path); err != nil {
		t.Fatal(err)
	}
	again, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again.Revision() != 2 || again.Name() != "renamed" {
		t.Errorf("after rename: revision=%d name=%q, want 2 renamed", again.Revision(), again.Name())
	}
}

func TestRead_ByteAtATime(t *testing.T) {
	data := encodeCapture(t, newCapture(t, 40))

	whole, err := Read(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	trickled, err := Read(iotest.OneByteReader(bytes.NewReader(data)), &LoadOptions{ChunkSize: 1})
	if err != nil {
		t.Fatalf("byte-at-a-time Read failed: %v", err)
	}

	if whole.Len() != 41 {
		t.Fatalf("Len = %d, want 41", whole.Len())
	}
	if !reflect.DeepEqual(whole.Records(), trickled.Records()) {
		t.Error("byte-at-a-time decode differs from whole-buffer decode")
	}
}

func TestRecordReader_Offsets(t *testing.T) {
	var stream bytes.Buffer
	var sizes []int
	for i := range 5 {
		w := bitstream.NewWriter(64)
		rec := Game{Record: packet(i)}
		if err := EncodeRecord(w, rec); err != nil {
			t.Fatal(err)
		}
		sizes = append(sizes, w.Len())
		stream.Write(w.Bytes())
	}
	total := stream.Len()

	rr := NewRecordReader(iotest.HalfReader(&stream), 7)
	var offset int64
	for i := range 5 {
		if _, err := rr.Next(); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		offset += int64(sizes[i])
		if rr.Offset() != offset {
			t.Errorf("record %d: Offset = %d, want %d", i, rr.Offset(), offset)
		}
	}
	if _, err := rr.Next(); err != io.EOF {
		t.Errorf("Next at end = %v, want io.EOF", err)
	}
	if rr.Offset() != int64(total) {
		t.Errorf("final Offset = %d, want %d", rr.Offset(), total)
	}
}

func TestLoad_HeaderBitFlips(t *testing.T) {
	data := encodeCapture(t, newCapture(t, 2))

	for bit := 0; bit < HeaderSize*8; bit++ {
		corrupt := bytes.Clone(data)
		corrupt[bit/8] ^= 1 << (bit % 8)

		_, err := Read(bytes.NewReader(corrupt), nil)
		if !errors.Is(err, ErrInvalidCaptureFile) {
			t.Fatalf("bit %d: err = %v, want ErrInvalidCaptureFile", bit, err)
		}
		if bit >= 32 && !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("bit %d: err = %v, want checksum mismatch", bit, err)
		}
	}
}

func TestLoad_HeaderErrors(t *testing.T) {
	good := encodeCapture(t, newCapture(t, 1))

	wrongVersion := bytes.Clone(good)
	h := Header{Version: types.ProtocolVersion{Major: 2, Minor: 0}, RecordCount: 1}
	raw, _ := h.MarshalBinary()
	copy(wrongVersion, raw)

	tests := []struct {
		name    string
		data    []byte
		want    error
		wantMsg string
	}{
		{"short header", good[:HeaderSize-1], ErrShortHeader, "not the correct length"},
		{"bad magic", append([]byte("PCAP"), good[4:]...), ErrBadMagic, "magic"},
		{"version mismatch", wrongVersion, ErrVersionMismatch, "expected 1.0, got 2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.data), nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_TruncatedRecordList(t *testing.T) {
	// 8 packets + crypto state + metadata = 10 records; drop the last.
	data := encodeCapture(t, newCapture(t, 8))
	h, _ := ParseHeader(data[:HeaderSize])
	if h.RecordCount != 10 {
		t.Fatalf("RecordCount = %d, want 10", h.RecordCount)
	}
	lastSize := FramedSize(Game{Record: gamerecord.Record{Body: gamerecord.CryptoState{}}})

	_, err := Read(bytes.NewReader(data[:len(data)-lastSize]), nil)
	if !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want ErrUnexpectedEOF", err)
	}
	if !strings.Contains(err.Error(), "unexpected end of capture file") {
		t.Errorf("error %q should mention the unexpected end", err)
	}
	var fileErr *InvalidFileError
	if errors.As(err, &fileErr) && fileErr.Record != 9 {
		t.Errorf("Record = %d, want 9", fileErr.Record)
	}

	// Cutting inside a record is reported the same way.
	_, err = Read(bytes.NewReader(data[:len(data)-2]), nil)
	if !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("mid-record cut: err = %v, want ErrUnexpectedEOF", err)
	}
}

func TestLoad_DuplicateMetadata(t *testing.T) {
	data := encodeCapture(t, newCapture(t, 0))
	w := bitstream.NewWriter(32)
	if err := EncodeRecord(w, Metadata{Name: "again"}); err != nil {
		t.Fatal(err)
	}
	data = append(data, w.Bytes()...)
	rewriteHeader(t, data, func(h *Header) { h.RecordCount++ })

	_, err := Read(bytes.NewReader(data), nil)
	if !errors.Is(err, ErrDuplicateMetadata) {
		t.Fatalf("err = %v, want ErrDuplicateMetadata", err)
	}
	if !strings.Contains(err.Error(), "at record 2") {
		t.Errorf("error %q should name the record index", err)
	}
}

func TestLoad_CorruptRecord(t *testing.T) {
	data := encodeCapture(t, newCapture(t, 3))
	data[HeaderSize] = 0x7f

	_, err := Read(bytes.NewReader(data), nil)
	if !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("err = %v, want ErrCorruptRecord", err)
	}
	if !errors.Is(err, ErrInvalidCaptureFile) {
		t.Errorf("err = %v should match ErrInvalidCaptureFile", err)
	}
}

func TestLoad_MissingMetadataWarns(t *testing.T) {
	h := Header{Version: types.FileVersion, RecordCount: 1, StartTime: 200, EndTime: 100}
	raw, _ := h.MarshalBinary()
	w := bitstream.NewWriter(64)
	if err := EncodeRecord(w, Game{Record: packet(1)}); err != nil {
		t.Fatal(err)
	}
	data := append(raw, w.Bytes()...)

	var logs bytes.Buffer
	f, err := Read(bytes.NewReader(data), &LoadOptions{Logger: log.NewLogger(nil).WithOutput(&logs)})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if f.Len() != 1 {
		t.Errorf("Len = %d, want 1", f.Len())
	}
	out := logs.String()
	if !strings.Contains(out, "missing a metadata record") {
		t.Errorf("expected missing-metadata warning, got %q", out)
	}
	if !strings.Contains(out, "end time precedes start time") {
		t.Errorf("expected end-before-start warning, got %q", out)
	}
}

func TestLoad_Progress(t *testing.T) {
	data := encodeCapture(t, newCapture(t, 39)) // 41 records

	var calls [][2]uint64
	_, err := Read(bytes.NewReader(data), &LoadOptions{
		Progress: func(done, total uint64) { calls = append(calls, [2]uint64{done, total}) },
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(calls) != 21 {
		t.Fatalf("progress called %d times, want 21", len(calls))
	}
	if calls[0] != [2]uint64{2, 41} {
		t.Errorf("first progress = %v, want [2 41]", calls[0])
	}
	if calls[len(calls)-1] != [2]uint64{41, 41} {
		t.Errorf("last progress = %v, want [41 41]", calls[len(calls)-1])
	}
}
