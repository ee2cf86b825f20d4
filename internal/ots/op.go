package ots

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"
)

// Operation tag bytes as they appear on the wire.
const (
	tagSha1      = 0x02
	tagRipemd160 = 0x03
	tagSha256    = 0x08
	tagKeccak256 = 0x67
	tagAppend    = 0xf0
	tagPrepend   = 0xf1
	tagReverse   = 0xf2
	tagHexlify   = 0xf3
)

// Op is one transformation applied to a digest on the path from the root
// document digest to an attestation. Every Op is pure and deterministic.
//
// The set of operations is closed: a proof whose transforms we cannot
// replay cannot be verified, so unknown operation tags are a decode error
// (unlike attestations, which are preserved opaquely).
type Op interface {
	// Tag returns the wire tag byte for this operation.
	Tag() byte
	// Apply transforms the input bytes. It never fails: operand size
	// constraints are enforced when the operation is decoded or built.
	Apply(input []byte) []byte

	fmt.Stringer
}

// OpSha1 hashes the input with SHA-1.
type OpSha1 struct{}

func (OpSha1) Tag() byte { return tagSha1 }
func (OpSha1) Apply(input []byte) []byte {
	sum := sha1.Sum(input)
	return sum[:]
}
func (OpSha1) String() string { return "SHA1()" }

// OpSha256 hashes the input with SHA-256.
type OpSha256 struct{}

func (OpSha256) Tag() byte { return tagSha256 }
func (OpSha256) Apply(input []byte) []byte {
	sum := sha256.Sum256(input)
	return sum[:]
}
func (OpSha256) String() string { return "SHA256()" }

// OpRipemd160 hashes the input with RIPEMD-160.
type OpRipemd160 struct{}

func (OpRipemd160) Tag() byte { return tagRipemd160 }
func (OpRipemd160) Apply(input []byte) []byte {
	h := ripemd160.New()
	h.Write(input)
	return h.Sum(nil)
}
func (OpRipemd160) String() string { return "RIPEMD160()" }

// OpKeccak256 hashes the input with the legacy (pre-NIST) Keccak-256 used
// by some upstream attestors.
type OpKeccak256 struct{}

func (OpKeccak256) Tag() byte { return tagKeccak256 }
func (OpKeccak256) Apply(input []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(input)
	return h.Sum(nil)
}
func (OpKeccak256) String() string { return "KECCAK256()" }

// OpReverse reverses the byte order of the input.
type OpReverse struct{}

func (OpReverse) Tag() byte { return tagReverse }
func (OpReverse) Apply(input []byte) []byte {
	out := make([]byte, len(input))
	for i, b := range input {
		out[len(input)-1-i] = b
	}
	return out
}
func (OpReverse) String() string { return "Reverse()" }

// OpHexlify converts the input to its lowercase hex ASCII representation.
type OpHexlify struct{}

func (OpHexlify) Tag() byte { return tagHexlify }
func (OpHexlify) Apply(input []byte) []byte {
	return []byte(hex.EncodeToString(input))
}
func (OpHexlify) String() string { return "Hexlify()" }

// OpAppend appends a fixed suffix to the input.
type OpAppend struct {
	Data []byte
}

func (op OpAppend) Tag() byte { return tagAppend }
func (op OpAppend) Apply(input []byte) []byte {
	out := make([]byte, 0, len(input)+len(op.Data))
	out = append(out, input...)
	return append(out, op.Data...)
}
func (op OpAppend) String() string { return fmt.Sprintf("Append(%x)", op.Data) }

// OpPrepend prepends a fixed prefix to the input.
type OpPrepend struct {
	Data []byte
}

func (op OpPrepend) Tag() byte { return tagPrepend }
func (op OpPrepend) Apply(input []byte) []byte {
	out := make([]byte, 0, len(input)+len(op.Data))
	out = append(out, op.Data...)
	return append(out, input...)
}
func (op OpPrepend) String() string { return fmt.Sprintf("Prepend(%x)", op.Data) }

// OpsEqual reports whether two operations are structurally identical,
// including operand bytes.
func OpsEqual(a, b Op) bool {
	if a.Tag() != b.Tag() {
		return false
	}
	switch av := a.(type) {
	case OpAppend:
		return bytes.Equal(av.Data, b.(OpAppend).Data)
	case OpPrepend:
		return bytes.Equal(av.Data, b.(OpPrepend).Data)
	default:
		return true
	}
}
