package gamerecord

import "fmt"

var controlOpcodeNames = map[uint8]string{
	0:  "HandleGamePacket",
	1:  "ClientStart",
	2:  "ServerStart",
	3:  "MultiPacket",
	25: "AggregatePacket",
	29: "ConnectionClose",
}

// ControlOpcodeName names a control-layer opcode.
func ControlOpcodeName(op uint8) string {
	if name, ok := controlOpcodeNames[op]; ok {
		return name
	}
	switch {
	case op >= 9 && op <= 16:
		return fmt.Sprintf("SlottedMetaPacket%d", op-9)
	case op >= 17 && op <= 20:
		return fmt.Sprintf("RelatedA%d", op-17)
	case op >= 21 && op <= 24:
		return fmt.Sprintf("RelatedB%d", op-21)
	}
	return fmt.Sprintf("UnknownMessage%d", op)
}

// Describe returns a short label for a packet. Packets whose first byte is
// zero belong to the control layer and are named by their second byte.
func Describe(p Packet) string {
	switch {
	case len(p.Payload) == 0:
		return "Empty"
	case p.Payload[0] == 0x00 && len(p.Payload) > 1:
		return ControlOpcodeName(p.Payload[1])
	default:
		return fmt.Sprintf("Game(0x%02x)", p.Payload[0])
	}
}
