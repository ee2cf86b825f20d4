package backend

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"
)

// The genesis block header.
const genesisHeaderHex = "01000000000000000000000000000000000000000000000000000000" +
	"00000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa" +
	"4b1e5e4a29ab5f49ffff001d1dac2b7c"

// Genesis merkle root in display order.
const genesisMerkleDisplay = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

func TestParseHeaderGenesis(t *testing.T) {
	raw, err := hex.DecodeString(genesisHeaderHex)
	if err != nil {
		t.Fatalf("bad fixture: %v", err)
	}

	info, err := parseHeader(raw)
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}

	display, _ := hex.DecodeString(genesisMerkleDisplay)
	if !bytes.Equal(info.MerkleRoot, reverseBytes(display)) {
		t.Errorf("merkle root = %x, want internal order of %s", info.MerkleRoot, genesisMerkleDisplay)
	}

	want := time.Date(2009, time.January, 3, 18, 15, 5, 0, time.UTC)
	if !info.Time.Equal(want) {
		t.Errorf("time = %v, want %v", info.Time, want)
	}
}

func TestParseHeaderWrongSize(t *testing.T) {
	for _, n := range []int{0, 79, 81} {
		if _, err := parseHeader(make([]byte, n)); err == nil {
			t.Errorf("parseHeader accepted %d bytes", n)
		}
	}
}

func TestReverseBytes(t *testing.T) {
	in := []byte{1, 2, 3, 4}
	got := reverseBytes(in)
	if !bytes.Equal(got, []byte{4, 3, 2, 1}) {
		t.Errorf("reverseBytes = %v", got)
	}
	if !bytes.Equal(in, []byte{1, 2, 3, 4}) {
		t.Error("reverseBytes mutated its input")
	}
	if !bytes.Equal(reverseBytes(got), in) {
		t.Error("reverseBytes is not an involution")
	}
}
