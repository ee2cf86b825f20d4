package backend

import (
	"encoding/binary"
	"fmt"
	"time"
)

// headerSize is the size of a serialized Bitcoin block header.
const headerSize = 80

// Header field offsets. Version (4) and previous block hash (32) come
// before the merkle root; the timestamp follows it.
const (
	merkleRootOffset = 36
	merkleRootSize   = 32
	timeOffset       = 68
)

// parseHeader extracts the merkle root and timestamp from an 80-byte
// serialized block header. The merkle root is returned in internal
// byte order.
func parseHeader(raw []byte) (*BlockInfo, error) {
	if len(raw) != headerSize {
		return nil, fmt.Errorf("backend: header is %d bytes, want %d", len(raw), headerSize)
	}

	root := make([]byte, merkleRootSize)
	copy(root, raw[merkleRootOffset:merkleRootOffset+merkleRootSize])

	secs := binary.LittleEndian.Uint32(raw[timeOffset : timeOffset+4])
	return &BlockInfo{
		MerkleRoot: root,
		Time:       time.Unix(int64(secs), 0).UTC(),
	}, nil
}

// reverseBytes returns b in the opposite byte order. Esplora and Core
// report hashes in display order, which is the reverse of the internal
// order proofs commit to.
func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
