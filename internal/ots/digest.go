package ots

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"

	"golang.org/x/crypto/ripemd160"
)

// DigestType identifies the hash function used to produce the document
// digest at the root of a proof. The values are the on-disk tag bytes.
type DigestType byte

const (
	DigestSha1      DigestType = 0x02
	DigestRipemd160 DigestType = 0x03
	DigestSha256    DigestType = 0x08
)

// ParseDigestType maps a file header tag byte to a DigestType.
func ParseDigestType(tag byte) (DigestType, error) {
	switch DigestType(tag) {
	case DigestSha1, DigestRipemd160, DigestSha256:
		return DigestType(tag), nil
	default:
		return 0, fmt.Errorf("%w: 0x%02x", ErrBadDigestTag, tag)
	}
}

// Length returns the digest size in bytes.
func (d DigestType) Length() int {
	if d == DigestSha256 {
		return 32
	}
	return 20
}

// New returns a fresh hash.Hash for this digest type, for streaming
// large inputs.
func (d DigestType) New() hash.Hash {
	switch d {
	case DigestSha1:
		return sha1.New()
	case DigestRipemd160:
		return ripemd160.New()
	default:
		return sha256.New()
	}
}

// Hash computes the digest of data with this hash function.
func (d DigestType) Hash(data []byte) []byte {
	switch d {
	case DigestSha1:
		sum := sha1.Sum(data)
		return sum[:]
	case DigestRipemd160:
		h := ripemd160.New()
		h.Write(data)
		return h.Sum(nil)
	default:
		sum := sha256.Sum256(data)
		return sum[:]
	}
}

func (d DigestType) String() string {
	switch d {
	case DigestSha1:
		return "SHA1"
	case DigestRipemd160:
		return "RIPEMD160"
	case DigestSha256:
		return "SHA256"
	default:
		return fmt.Sprintf("DigestType(0x%02x)", byte(d))
	}
}
