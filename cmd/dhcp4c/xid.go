package main

import (
	"crypto/rand"
	"encoding/binary"
)

// newXID returns a random 32-bit transaction id for a fresh acquisition
// attempt. Collisions across concurrent clients on the same segment are
// harmless — xid only needs to disambiguate this client's own in-flight
// exchanges — so crypto/rand is overkill precision-wise but avoids seeding
// a math/rand source for a one-shot CLI.
func newXID() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0x12345678
	}
	return binary.BigEndian.Uint32(b[:])
}
