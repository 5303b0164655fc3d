package main

import "testing"

func TestNewXIDVaries(t *testing.T) {
	seen := make(map[uint32]bool)
	for i := 0; i < 8; i++ {
		seen[newXID()] = true
	}
	if len(seen) < 2 {
		t.Errorf("newXID produced %d distinct values across 8 calls, want more variation", len(seen))
	}
}
