package gamerecord

import "bytes"

// sensitiveLoginPrefix starts the login packet carrying account credentials.
// It is matched on every packet channel, so a mislabelled packet is scrubbed
// too.
var sensitiveLoginPrefix = []byte{0x00, 0x09, 0x00, 0x00, 0x01, 0x03}

// Scrub truncates credential-bearing login packets to their identifying
// prefix. Other records are returned unchanged. The input is never modified.
func Scrub(r Record) (Record, bool) {
	p, ok := r.Packet()
	if !ok || !bytes.HasPrefix(p.Payload, sensitiveLoginPrefix) {
		return r, false
	}
	if len(p.Payload) == len(sensitiveLoginPrefix) {
		return r, false
	}
	p.Payload = bytes.Clone(sensitiveLoginPrefix)
	r.Body = p
	return r, true
}

// IsScrubbed reports whether p is a packet already cut down to the
// sensitive prefix.
func IsScrubbed(p Packet) bool {
	return bytes.Equal(p.Payload, sensitiveLoginPrefix)
}
