package ots

import (
	"bytes"
	"fmt"
)

// attestationTagSize is the size of the 8-byte tag identifying an
// attestation type on the wire.
const attestationTagSize = 8

var (
	bitcoinAttestationTag = []byte{0x05, 0x88, 0x96, 0x0d, 0x73, 0xd7, 0x19, 0x01}
	pendingAttestationTag = []byte{0x83, 0xdf, 0xe3, 0x0d, 0x2e, 0xf9, 0x0c, 0x8e}
)

// Attestation is a claim, attached at some node of a proof tree, that the
// digest at that node existed at a point in time.
//
// The set of attestation types is open: tags we do not recognize decode to
// UnknownAttestation and survive re-encoding bit for bit, so a proof
// carrying attestations from a newer tool is never damaged by passing
// through this one.
type Attestation interface {
	fmt.Stringer

	attestation()
}

// BitcoinAttestation claims the digest equals the Merkle root of the
// Bitcoin block at Height.
type BitcoinAttestation struct {
	Height uint64
}

func (BitcoinAttestation) attestation() {}

func (a BitcoinAttestation) String() string {
	return fmt.Sprintf("Bitcoin block %d", a.Height)
}

// PendingAttestation records that a calendar server at URI has committed
// to the digest but the commitment has not yet reached the blockchain. The
// calendar can later be polled for the completed proof.
type PendingAttestation struct {
	URI string
}

func (PendingAttestation) attestation() {}

func (a PendingAttestation) String() string {
	return fmt.Sprintf("pending: update URI %s", a.URI)
}

// UnknownAttestation preserves an attestation type this implementation
// cannot interpret. It is unverifiable but must never be dropped.
type UnknownAttestation struct {
	Tag     [attestationTagSize]byte
	Payload []byte
}

func (UnknownAttestation) attestation() {}

func (a UnknownAttestation) String() string {
	return fmt.Sprintf("unknown attestation type %x: %x", a.Tag[:], a.Payload)
}

// AttestationsEqual reports whether two attestations are structurally
// identical.
func AttestationsEqual(a, b Attestation) bool {
	switch av := a.(type) {
	case BitcoinAttestation:
		bv, ok := b.(BitcoinAttestation)
		return ok && av.Height == bv.Height
	case PendingAttestation:
		bv, ok := b.(PendingAttestation)
		return ok && av.URI == bv.URI
	case UnknownAttestation:
		bv, ok := b.(UnknownAttestation)
		return ok && av.Tag == bv.Tag && bytes.Equal(av.Payload, bv.Payload)
	default:
		return false
	}
}

// validateURI enforces the restricted character set calendar URIs must use.
// Anything outside it is rejected at decode time so a hostile proof cannot
// smuggle control characters into later HTTP requests or terminal output.
func validateURI(uri string) error {
	for _, ch := range uri {
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '.' || ch == '-' || ch == '_' || ch == '/' || ch == ':':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidURIChar, ch)
		}
	}
	return nil
}
