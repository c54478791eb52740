package bitstream

import "fmt"

// FieldKind is the type tag carried in the low 6 bits of a variable-length
// control byte.
type FieldKind uint8

const (
	FieldString      FieldKind = 1
	FieldOctetStream FieldKind = 2
)

const (
	kindMask uint8 = 0x3f
	width16  uint8 = 0x40
	width32  uint8 = 0x80
)

func (k FieldKind) String() string {
	switch k {
	case FieldString:
		return "string"
	case FieldOctetStream:
		return "octet-stream"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// VarField describes the prefix layout chosen for a variable-length field.
type VarField struct {
	Kind FieldKind
	// LengthWidth is the size in bytes of the length field: 1, 2 or 4.
	LengthWidth int
}

// PrefixLen is the number of bytes preceding the field contents.
func (f VarField) PrefixLen() int { return 1 + f.LengthWidth }

// Control returns the control byte for the field.
func (f VarField) Control() uint8 {
	c := uint8(f.Kind) & kindMask
	switch f.LengthWidth {
	case 2:
		c |= width16
	case 4:
		c |= width32
	}
	return c
}

// VarFieldFor picks the smallest length width that fits n bytes.
func VarFieldFor(kind FieldKind, n int) VarField {
	switch {
	case n <= 0xff:
		return VarField{Kind: kind, LengthWidth: 1}
	case n <= 0xffff:
		return VarField{Kind: kind, LengthWidth: 2}
	default:
		return VarField{Kind: kind, LengthWidth: 4}
	}
}

// VarSize returns the encoded size of a variable-length field holding n bytes.
func VarSize(n int) int {
	return VarFieldFor(FieldOctetStream, n).PrefixLen() + n
}

func parseControl(control uint8, want FieldKind) (int, error) {
	if FieldKind(control&kindMask) != want {
		return 0, fmt.Errorf("%w: expected %s, got type tag %d", ErrBadEncoding, want, control&kindMask)
	}
	switch control &^ kindMask {
	case 0:
		return 1, nil
	case width16:
		return 2, nil
	case width32:
		return 4, nil
	default:
		return 0, fmt.Errorf("%w: both length-width bits set (0x%02x)", ErrBadEncoding, control)
	}
}
