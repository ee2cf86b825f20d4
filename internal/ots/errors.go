package ots

import "errors"

// Hard limits applied while decoding untrusted proof bytes.
const (
	// RecursionLimit bounds the nesting depth of a proof tree. Proofs
	// deeper than this are rejected rather than risking stack exhaustion.
	RecursionLimit = 256

	// MaxOpLength is the maximum operand size for append/prepend
	// operations.
	MaxOpLength = 4096

	// MaxURILength is the maximum length of a pending attestation URI.
	MaxURILength = 1000
)

// Format errors. Any of these aborts processing of the proof file being
// decoded; a partially decoded tree is never returned.
var (
	ErrBadMagic       = errors.New("ots: bad magic bytes, not a timestamp proof")
	ErrBadVersion     = errors.New("ots: unsupported proof version")
	ErrBadDigestTag   = errors.New("ots: unrecognized digest type tag")
	ErrBadOpTag       = errors.New("ots: unrecognized operation tag")
	ErrBadLength      = errors.New("ots: length out of range")
	ErrInvalidURIChar = errors.New("ots: invalid character in attestation URI")
	ErrDepthExceeded  = errors.New("ots: proof tree exceeds recursion limit")
	ErrTrailingBytes  = errors.New("ots: unexpected data after end of timestamp")
)

// ErrMergeMismatch indicates an attempt to merge two timestamps rooted at
// different digests. This is a caller contract violation, not a property of
// the proof data.
var ErrMergeMismatch = errors.New("ots: cannot merge timestamps with different root digests")
