package capture

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"

	"github.com/psforever/GameLogger/bitstream"
	"github.com/psforever/GameLogger/types"
)

// Magic opens every GCAP file.
const Magic = "GCAP"

const (
	// checksummedSize covers magic, version, revision, GUID, times and count.
	checksummedSize = 4 + 1 + 1 + 8 + 16 + 8 + 8 + 8
	// HeaderSize is the fixed header length including the SHA-256 checksum.
	HeaderSize = checksummedSize + sha256.Size
)

// Header is the fixed-size GCAP file header.
type Header struct {
	Version  types.ProtocolVersion
	Revision uint64
	GUID     uuid.UUID
	// StartTime and EndTime are Unix seconds.
	StartTime uint64
	EndTime   uint64
	// RecordCount is the number of framed records following the header,
	// including the metadata record.
	RecordCount uint64
}

// MarshalBinary encodes the header followed by its checksum.
func (h Header) MarshalBinary() ([]byte, error) {
	w := bitstream.NewWriter(HeaderSize)
	w.WriteBytes([]byte(Magic))
	w.WriteU8(h.Version.Major)
	w.WriteU8(h.Version.Minor)
	w.WriteU64(h.Revision)
	w.WriteBytes(h.GUID[:])
	w.WriteU64(h.StartTime)
	w.WriteU64(h.EndTime)
	w.WriteU64(h.RecordCount)

	sum := sha256.Sum256(w.Bytes())
	w.WriteBytes(sum[:])
	return w.Bytes(), nil
}

// ParseHeader validates and decodes a header. Checks run in order: length,
// magic, checksum, version.
func ParseHeader(b []byte) (Header, error) {
	if len(b) != HeaderSize {
		return Header{}, headerError(ErrShortHeader, fmt.Sprintf("got %d bytes, want %d", len(b), HeaderSize))
	}

	c := bitstream.NewCursor(b)
	magic, _ := c.ReadBytes(len(Magic))
	if string(magic) != Magic {
		return Header{}, headerError(ErrBadMagic, fmt.Sprintf("%q", magic))
	}

	sum := sha256.Sum256(b[:checksummedSize])
	if !bytes.Equal(sum[:], b[checksummedSize:]) {
		return Header{}, headerError(ErrChecksumMismatch, "")
	}

	var h Header
	h.Version.Major, _ = c.ReadU8()
	h.Version.Minor, _ = c.ReadU8()
	h.Revision, _ = c.ReadU64()
	guid, _ := c.ReadBytes(16)
	copy(h.GUID[:], guid)
	h.StartTime, _ = c.ReadU64()
	h.EndTime, _ = c.ReadU64()
	h.RecordCount, _ = c.ReadU64()

	if !types.FileVersion.Compatible(h.Version) {
		return Header{}, headerError(ErrVersionMismatch, fmt.Sprintf(
			"expected %s, got %s; upgrade GameLogger to read newer files", types.FileVersion, h.Version))
	}
	return h, nil
}
