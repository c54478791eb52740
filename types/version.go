package types

import "fmt"

// Version is the canonical tool version.
const Version = "0.4.0"

// ProtocolVersion is a major/minor version pair. Peers and files must
// match both numbers exactly to be compatible.
type ProtocolVersion struct {
	Major uint8 `json:"major" yaml:"major"`
	Minor uint8 `json:"minor" yaml:"minor"`
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether other matches v exactly.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v == other
}

// WireVersion is the control protocol version spoken with instrumented clients.
var WireVersion = ProtocolVersion{Major: 1, Minor: 1}

// FileVersion is the GCAP capture file format version.
var FileVersion = ProtocolVersion{Major: 1, Minor: 0}
