// Package ots implements the OpenTimestamps proof engine: the binary proof
// format, the in-memory timestamp tree, and the pure evaluation and merge
// logic over it. Network protocols built on top of it live in the calendar
// and backend packages.
package ots

import (
	"bytes"
	"fmt"
	"io"
)

// Entry is one outgoing edge of a timestamp node. Exactly one of
// Attestation or Op is set: an attestation terminates a path at this
// node's digest, while an operation leads to the child node holding the
// transformed digest.
type Entry struct {
	Attestation Attestation
	Op          Op
	Child       *Timestamp
}

// Timestamp is one node of a proof tree. It records the digest value the
// proof has reached at this point and, in stored order, the attestations
// made directly against that digest and the operations transforming it
// further. A node with several entries is a fork; the common chain case is
// a single operation entry.
//
// A Timestamp exclusively owns its subtree. Children carry no parent
// references and the tree contains no cycles, so plain ownership suffices.
type Timestamp struct {
	Digest  []byte
	Entries []Entry
}

// NewTimestamp returns a leafless node holding digest.
func NewTimestamp(digest []byte) *Timestamp {
	return &Timestamp{Digest: digest}
}

// Add appends an operation edge and returns the child node it leads to.
// If a structurally identical operation already hangs off this node the
// existing child is returned instead, so repeated Adds converge on one
// subtree per distinct operation.
func (t *Timestamp) Add(op Op) *Timestamp {
	for _, e := range t.Entries {
		if e.Op != nil && OpsEqual(e.Op, op) {
			return e.Child
		}
	}
	child := NewTimestamp(op.Apply(t.Digest))
	t.Entries = append(t.Entries, Entry{Op: op, Child: child})
	return child
}

// Attest attaches an attestation directly at this node. Structurally equal
// attestations are stored once.
func (t *Timestamp) Attest(a Attestation) {
	for _, e := range t.Entries {
		if e.Attestation != nil && AttestationsEqual(e.Attestation, a) {
			return
		}
	}
	t.Entries = append(t.Entries, Entry{Attestation: a})
}

// RemoveAttestation deletes the first attestation structurally equal to a
// from this node, if present.
func (t *Timestamp) RemoveAttestation(a Attestation) {
	for i, e := range t.Entries {
		if e.Attestation != nil && AttestationsEqual(e.Attestation, a) {
			t.Entries = append(t.Entries[:i], t.Entries[i+1:]...)
			return
		}
	}
}

// Merge folds other into t. Both must be rooted at the same digest: a
// merge only makes sense at a shared commitment point, and calling this
// with differing roots is a bug in the caller, reported as
// ErrMergeMismatch.
//
// Attestation sets are unioned and edges with identical operations are
// merged recursively; all other edges become siblings. Merge absorbs
// other, which must not be used afterwards.
func (t *Timestamp) Merge(other *Timestamp) error {
	if !bytes.Equal(t.Digest, other.Digest) {
		return fmt.Errorf("%w: %x vs %x", ErrMergeMismatch, t.Digest, other.Digest)
	}
	for _, e := range other.Entries {
		if e.Attestation != nil {
			t.Attest(e.Attestation)
			continue
		}
		merged := false
		for _, have := range t.Entries {
			if have.Op != nil && OpsEqual(have.Op, e.Op) {
				// Children share the digest by construction.
				if err := have.Child.Merge(e.Child); err != nil {
					return err
				}
				merged = true
				break
			}
		}
		if !merged {
			t.Entries = append(t.Entries, e)
		}
	}
	return nil
}

// Clone returns a deep copy of the subtree rooted at t.
func (t *Timestamp) Clone() *Timestamp {
	out := &Timestamp{Digest: append([]byte(nil), t.Digest...)}
	out.Entries = make([]Entry, len(t.Entries))
	for i, e := range t.Entries {
		out.Entries[i] = e
		if e.Child != nil {
			out.Entries[i].Child = e.Child.Clone()
		}
	}
	return out
}

// Leaf is one attestation reachable in a proof tree together with the
// digest the proof claims at that attestation.
type Leaf struct {
	Digest      []byte
	Attestation Attestation
}

// Walk evaluates the tree from start, folding every operation along each
// root-to-leaf path, and returns one Leaf per attestation in depth-first
// stored order. It performs no I/O and does not consult the digests cached
// on the nodes, so it holds for any starting digest.
func (t *Timestamp) Walk(start []byte) []Leaf {
	var leaves []Leaf
	t.walk(start, &leaves)
	return leaves
}

func (t *Timestamp) walk(digest []byte, leaves *[]Leaf) {
	for _, e := range t.Entries {
		if e.Attestation != nil {
			*leaves = append(*leaves, Leaf{Digest: digest, Attestation: e.Attestation})
			continue
		}
		e.Child.walk(e.Op.Apply(digest), leaves)
	}
}

// PendingRef points at a node carrying a pending attestation, so the
// attestation can be replaced in place once the calendar completes it.
type PendingRef struct {
	Node        *Timestamp
	Attestation PendingAttestation
}

// Pending returns every pending attestation in the tree in depth-first
// stored order.
func (t *Timestamp) Pending() []PendingRef {
	var refs []PendingRef
	t.pending(&refs)
	return refs
}

func (t *Timestamp) pending(refs *[]PendingRef) {
	for _, e := range t.Entries {
		if p, ok := e.Attestation.(PendingAttestation); ok {
			*refs = append(*refs, PendingRef{Node: t, Attestation: p})
		}
		if e.Child != nil {
			e.Child.pending(refs)
		}
	}
}

// Equal reports whether two trees are structurally identical, including
// entry order.
func (t *Timestamp) Equal(other *Timestamp) bool {
	if !bytes.Equal(t.Digest, other.Digest) || len(t.Entries) != len(other.Entries) {
		return false
	}
	for i, e := range t.Entries {
		o := other.Entries[i]
		switch {
		case e.Attestation != nil:
			if o.Attestation == nil || !AttestationsEqual(e.Attestation, o.Attestation) {
				return false
			}
		default:
			if o.Op == nil || !OpsEqual(e.Op, o.Op) || !e.Child.Equal(o.Child) {
				return false
			}
		}
	}
	return true
}

// Dump writes a human-readable rendering of the tree, one step per line,
// in the layout used by `ots info -v`.
func (t *Timestamp) Dump(w io.Writer) {
	fmt.Fprintf(w, "Starting digest: %x\n", t.Digest)
	t.dump(w, 0)
}

func (t *Timestamp) dump(w io.Writer, depth int) {
	indent := func() {
		for i := 0; i < depth; i++ {
			io.WriteString(w, "    ")
		}
	}
	fork := len(t.Entries) > 1
	if fork {
		indent()
		fmt.Fprintf(w, "(fork %d ways)\n", len(t.Entries))
	}
	for _, e := range t.Entries {
		childDepth := depth
		if fork {
			childDepth = depth + 1
		}
		for i := 0; i < childDepth; i++ {
			io.WriteString(w, "    ")
		}
		if e.Attestation != nil {
			fmt.Fprintf(w, "result attested by %s\n", e.Attestation)
			continue
		}
		fmt.Fprintf(w, "execute %s\n", e.Op)
		for i := 0; i < childDepth; i++ {
			io.WriteString(w, "    ")
		}
		fmt.Fprintf(w, " result %x\n", e.Child.Digest)
		e.Child.dump(w, childDepth)
	}
}
