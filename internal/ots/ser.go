package ots

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// headerMagic begins every detached proof file.
var headerMagic = []byte("\x00OpenTimestamps\x00\x00Proof\x00\xbf\x89\xe2\xe8\x84\xe8\x92\x94")

// Version is the only major proof file version this implementation
// understands.
const Version = 1

// Special tag bytes in the tree encoding. Every other tag is an operation.
const (
	tagAttestation = 0x00
	tagFork        = 0xff
)

// maxAttestationPayload bounds the preserved payload of attestation types
// we cannot interpret.
const maxAttestationPayload = 8192

// DetachedTimestamp is a complete proof file: the hash function used on
// the original document and the proof tree rooted at the document digest.
type DetachedTimestamp struct {
	DigestType DigestType
	Timestamp  *Timestamp
}

// Decode reads a detached proof file. Any deviation from the format is
// fatal: a bad preamble, an unsupported version, an unknown operation tag,
// out-of-range lengths, excessive nesting, or trailing data all reject the
// file without returning a partial tree.
func Decode(r io.Reader) (*DetachedTimestamp, error) {
	d := &decoder{r: bufio.NewReader(r)}

	magic := make([]byte, len(headerMagic))
	if _, err := io.ReadFull(d.r, magic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if !bytes.Equal(magic, headerMagic) {
		return nil, ErrBadMagic
	}
	version, err := d.readUint()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}

	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	dt, err := ParseDigestType(tag)
	if err != nil {
		return nil, err
	}
	digest, err := d.readFixed(dt.Length())
	if err != nil {
		return nil, err
	}

	root := NewTimestamp(digest)
	if err := d.readTree(root, RecursionLimit); err != nil {
		return nil, err
	}
	if err := d.expectEOF(); err != nil {
		return nil, err
	}
	return &DetachedTimestamp{DigestType: dt, Timestamp: root}, nil
}

// DecodeTree reads a bare proof tree rooted at a known digest. Calendar
// servers return trees in this form, without the file preamble.
func DecodeTree(r io.Reader, digest []byte) (*Timestamp, error) {
	d := &decoder{r: bufio.NewReader(r)}
	root := NewTimestamp(append([]byte(nil), digest...))
	if err := d.readTree(root, RecursionLimit); err != nil {
		return nil, err
	}
	if err := d.expectEOF(); err != nil {
		return nil, err
	}
	return root, nil
}

// Encode writes the proof file. Encoding is deterministic: entries are
// emitted in stored order and operand bytes are written exactly as held in
// memory, so Decode(Encode(t)) reproduces t byte for byte.
func (dt *DetachedTimestamp) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}
	e.writeBytes(headerMagic)
	e.writeUint(Version)
	e.writeByte(byte(dt.DigestType))
	e.writeBytes(dt.Timestamp.Digest)
	if err := e.writeTree(dt.Timestamp); err != nil {
		return err
	}
	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

// Encode writes the bare tree without the file preamble, the inverse of
// DecodeTree.
func (t *Timestamp) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}
	if err := e.writeTree(t); err != nil {
		return err
	}
	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

type decoder struct {
	r *bufio.Reader
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("ots: truncated proof: %w", err)
	}
	return b, nil
}

func (d *decoder) readFixed(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, fmt.Errorf("ots: truncated proof: %w", err)
	}
	return buf, nil
}

// readUint decodes an unsigned LEB128 varint. Values that would overflow
// 64 bits are rejected.
func (d *decoder) readUint() (uint64, error) {
	var val uint64
	var shift uint
	for {
		b, err := d.readByte()
		if err != nil {
			return 0, err
		}
		if shift >= 64 || (shift == 63 && b > 1) {
			return 0, fmt.Errorf("%w: varint overflows 64 bits", ErrBadLength)
		}
		val |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return val, nil
		}
		shift += 7
	}
}

// readVarBytes reads a length-prefixed byte string with the length
// constrained to [min, max].
func (d *decoder) readVarBytes(min, max int) ([]byte, error) {
	n, err := d.readUint()
	if err != nil {
		return nil, err
	}
	if n < uint64(min) || n > uint64(max) {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrBadLength, n, min, max)
	}
	return d.readFixed(int(n))
}

func (d *decoder) expectEOF() error {
	_, err := d.r.ReadByte()
	switch {
	case err == nil:
		return ErrTrailingBytes
	case errors.Is(err, io.EOF):
		return nil
	default:
		return fmt.Errorf("ots: read proof: %w", err)
	}
}

// readTree parses the continuation of node: a single entry, or several
// sibling entries when fork markers are present. Nested fork markers
// flatten into one sibling list, which preserves the leaf set, leaf order,
// and every path digest.
func (d *decoder) readTree(node *Timestamp, depth int) error {
	tag, err := d.readByte()
	if err != nil {
		return err
	}
	return d.readEntries(node, tag, depth)
}

func (d *decoder) readEntries(node *Timestamp, tag byte, depth int) error {
	if depth <= 0 {
		return ErrDepthExceeded
	}
	for tag == tagFork {
		branch, err := d.readByte()
		if err != nil {
			return err
		}
		if err := d.readEntries(node, branch, depth-1); err != nil {
			return err
		}
		if tag, err = d.readByte(); err != nil {
			return err
		}
		if tag != tagFork {
			return d.readEntries(node, tag, depth-1)
		}
	}
	return d.readEntry(node, tag, depth)
}

func (d *decoder) readEntry(node *Timestamp, tag byte, depth int) error {
	if tag == tagAttestation {
		a, err := d.readAttestation()
		if err != nil {
			return err
		}
		node.Entries = append(node.Entries, Entry{Attestation: a})
		return nil
	}
	op, err := d.readOp(tag)
	if err != nil {
		return err
	}
	child := NewTimestamp(op.Apply(node.Digest))
	node.Entries = append(node.Entries, Entry{Op: op, Child: child})
	return d.readTree(child, depth-1)
}

func (d *decoder) readOp(tag byte) (Op, error) {
	switch tag {
	case tagSha1:
		return OpSha1{}, nil
	case tagSha256:
		return OpSha256{}, nil
	case tagRipemd160:
		return OpRipemd160{}, nil
	case tagKeccak256:
		return OpKeccak256{}, nil
	case tagReverse:
		return OpReverse{}, nil
	case tagHexlify:
		return OpHexlify{}, nil
	case tagAppend:
		data, err := d.readVarBytes(1, MaxOpLength)
		if err != nil {
			return nil, err
		}
		return OpAppend{Data: data}, nil
	case tagPrepend:
		data, err := d.readVarBytes(1, MaxOpLength)
		if err != nil {
			return nil, err
		}
		return OpPrepend{Data: data}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadOpTag, tag)
	}
}

func (d *decoder) readAttestation() (Attestation, error) {
	tag, err := d.readFixed(attestationTagSize)
	if err != nil {
		return nil, err
	}
	// Payload length. Known attestation types are parsed from the stream
	// directly; the length is authoritative only for unknown payloads,
	// which are preserved verbatim.
	n, err := d.readUint()
	if err != nil {
		return nil, err
	}
	switch {
	case bytes.Equal(tag, bitcoinAttestationTag):
		height, err := d.readUint()
		if err != nil {
			return nil, err
		}
		return BitcoinAttestation{Height: height}, nil
	case bytes.Equal(tag, pendingAttestationTag):
		uri, err := d.readVarBytes(0, MaxURILength)
		if err != nil {
			return nil, err
		}
		if err := validateURI(string(uri)); err != nil {
			return nil, err
		}
		return PendingAttestation{URI: string(uri)}, nil
	default:
		if n > maxAttestationPayload {
			return nil, fmt.Errorf("%w: attestation payload %d exceeds %d", ErrBadLength, n, maxAttestationPayload)
		}
		payload, err := d.readFixed(int(n))
		if err != nil {
			return nil, err
		}
		var t [attestationTagSize]byte
		copy(t[:], tag)
		return UnknownAttestation{Tag: t, Payload: payload}, nil
	}
}

type encoder struct {
	w   *bufio.Writer
	err error
}

func (e *encoder) writeByte(b byte) {
	if e.err == nil {
		e.err = e.w.WriteByte(b)
	}
}

func (e *encoder) writeBytes(p []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(p)
	}
}

func (e *encoder) writeUint(n uint64) {
	if n == 0 {
		e.writeByte(0)
		return
	}
	for n > 0 {
		b := byte(n & 0x7f)
		n >>= 7
		if n > 0 {
			b |= 0x80
		}
		e.writeByte(b)
	}
}

func (e *encoder) writeVarBytes(p []byte) {
	e.writeUint(uint64(len(p)))
	e.writeBytes(p)
}

func (e *encoder) writeTree(node *Timestamp) error {
	if len(node.Entries) == 0 {
		return fmt.Errorf("ots: cannot encode node with no entries")
	}
	for i, entry := range node.Entries {
		if i < len(node.Entries)-1 {
			e.writeByte(tagFork)
		}
		if entry.Attestation != nil {
			e.writeByte(tagAttestation)
			e.writeAttestation(entry.Attestation)
			continue
		}
		e.writeOp(entry.Op)
		if err := e.writeTree(entry.Child); err != nil {
			return err
		}
	}
	return e.err
}

func (e *encoder) writeOp(op Op) {
	e.writeByte(op.Tag())
	switch v := op.(type) {
	case OpAppend:
		e.writeVarBytes(v.Data)
	case OpPrepend:
		e.writeVarBytes(v.Data)
	}
}

func (e *encoder) writeAttestation(a Attestation) {
	switch v := a.(type) {
	case BitcoinAttestation:
		e.writeBytes(bitcoinAttestationTag)
		var payload bytes.Buffer
		inner := &encoder{w: bufio.NewWriter(&payload)}
		inner.writeUint(v.Height)
		inner.w.Flush()
		e.writeVarBytes(payload.Bytes())
	case PendingAttestation:
		e.writeBytes(pendingAttestationTag)
		var payload bytes.Buffer
		inner := &encoder{w: bufio.NewWriter(&payload)}
		inner.writeVarBytes([]byte(v.URI))
		inner.w.Flush()
		e.writeVarBytes(payload.Bytes())
	case UnknownAttestation:
		e.writeBytes(v.Tag[:])
		e.writeVarBytes(v.Payload)
	}
}
