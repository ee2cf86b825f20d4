package ots

import (
	"bytes"
	"errors"
	"testing"
)

func testDigest(b byte) []byte {
	d := make([]byte, 32)
	d[0] = b
	return d
}

func TestAddDeduplicates(t *testing.T) {
	ts := NewTimestamp(testDigest(1))
	a := ts.Add(OpSha256{})
	b := ts.Add(OpSha256{})
	if a != b {
		t.Fatal("adding an identical op created a second edge")
	}
	if len(ts.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(ts.Entries))
	}

	c := ts.Add(OpAppend{Data: []byte{0xff}})
	if c == a {
		t.Fatal("distinct op returned the same child")
	}
	if len(ts.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(ts.Entries))
	}
	if !bytes.Equal(a.Digest, OpSha256{}.Apply(ts.Digest)) {
		t.Error("child digest not derived from parent")
	}
}

func TestAttestDeduplicates(t *testing.T) {
	ts := NewTimestamp(testDigest(1))
	ts.Attest(BitcoinAttestation{Height: 123})
	ts.Attest(BitcoinAttestation{Height: 123})
	if len(ts.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(ts.Entries))
	}
	ts.Attest(BitcoinAttestation{Height: 124})
	if len(ts.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(ts.Entries))
	}
}

func TestRemoveAttestation(t *testing.T) {
	ts := NewTimestamp(testDigest(1))
	ts.Attest(PendingAttestation{URI: "https://a.example.org"})
	ts.Attest(BitcoinAttestation{Height: 42})

	ts.RemoveAttestation(PendingAttestation{URI: "https://a.example.org"})
	if len(ts.Entries) != 1 {
		t.Fatalf("got %d entries after removal, want 1", len(ts.Entries))
	}
	if _, ok := ts.Entries[0].Attestation.(BitcoinAttestation); !ok {
		t.Error("wrong attestation removed")
	}

	// Removing something absent is a no-op.
	ts.RemoveAttestation(PendingAttestation{URI: "https://gone.example.org"})
	if len(ts.Entries) != 1 {
		t.Error("removal of an absent attestation changed the tree")
	}
}

func buildPendingTimestamp(root []byte, uri string, height uint64) *Timestamp {
	ts := NewTimestamp(root)
	child := ts.Add(OpAppend{Data: []byte{0x01}}).Add(OpSha256{})
	if uri != "" {
		child.Attest(PendingAttestation{URI: uri})
	}
	if height != 0 {
		child.Attest(BitcoinAttestation{Height: height})
	}
	return ts
}

func TestMergeMismatchedRoots(t *testing.T) {
	a := NewTimestamp(testDigest(1))
	b := NewTimestamp(testDigest(2))
	if err := a.Merge(b); !errors.Is(err, ErrMergeMismatch) {
		t.Fatalf("err = %v, want ErrMergeMismatch", err)
	}
}

func TestMergeUnion(t *testing.T) {
	root := testDigest(7)
	a := buildPendingTimestamp(root, "https://a.example.org", 0)
	b := buildPendingTimestamp(root, "https://b.example.org", 500)

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	leaves := a.Walk(a.Digest)
	if len(leaves) != 3 {
		t.Fatalf("got %d leaves after merge, want 3", len(leaves))
	}
	// The shared op path must not have been duplicated.
	if len(a.Entries) != 1 {
		t.Fatalf("root fanout = %d after merge, want 1", len(a.Entries))
	}
}

func TestMergeIdempotent(t *testing.T) {
	root := testDigest(7)
	a := buildPendingTimestamp(root, "https://a.example.org", 100)
	before := a.Clone()
	if err := a.Merge(before.Clone()); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !a.Equal(before) {
		t.Fatal("merging a timestamp with a copy of itself changed it")
	}
}

func TestMergeCommutative(t *testing.T) {
	root := testDigest(9)
	mk := func() (*Timestamp, *Timestamp) {
		return buildPendingTimestamp(root, "https://a.example.org", 0),
			buildPendingTimestamp(root, "https://b.example.org", 700)
	}

	x, y := mk()
	if err := x.Merge(y); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	p, q := mk()
	if err := q.Merge(p); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// Attestation sets agree regardless of merge direction.
	if got, want := leafSet(x), leafSet(q); len(got) != len(want) {
		t.Fatalf("leaf counts differ: %d vs %d", len(got), len(want))
	} else {
		for k := range want {
			if !got[k] {
				t.Errorf("leaf %q missing after reversed merge", k)
			}
		}
	}
}

func TestMergeAssociative(t *testing.T) {
	root := testDigest(11)
	mk := func() (*Timestamp, *Timestamp, *Timestamp) {
		return buildPendingTimestamp(root, "https://a.example.org", 10),
			buildPendingTimestamp(root, "https://b.example.org", 20),
			buildPendingTimestamp(root, "https://c.example.org", 30)
	}

	// a · (b · c)
	a, b, c := mk()
	if err := b.Merge(c); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// (x · y) · z
	x, y, z := mk()
	if err := x.Merge(y); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := x.Merge(z); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	got, want := leafSet(a), leafSet(x)
	if len(got) != len(want) {
		t.Fatalf("leaf counts differ: %d vs %d", len(got), len(want))
	}
	for k := range want {
		if !got[k] {
			t.Errorf("leaf %q missing after regrouped merge", k)
		}
	}
}

func leafSet(ts *Timestamp) map[string]bool {
	set := make(map[string]bool)
	for _, leaf := range ts.Walk(ts.Digest) {
		set[string(leaf.Digest)+"|"+leaf.Attestation.String()] = true
	}
	return set
}

func TestCloneIndependence(t *testing.T) {
	a := buildPendingTimestamp(testDigest(3), "https://a.example.org", 0)
	b := a.Clone()
	if !a.Equal(b) {
		t.Fatal("clone differs from original")
	}
	b.Entries[0].Child.Attest(BitcoinAttestation{Height: 999})
	if a.Equal(b) {
		t.Fatal("mutating the clone changed the original")
	}
}

func TestWalkRecomputesDigests(t *testing.T) {
	root := []byte("document digest")
	ts := NewTimestamp(root)
	child := ts.Add(OpPrepend{Data: []byte("salt")}).Add(OpSha256{})
	child.Attest(BitcoinAttestation{Height: 1})

	want := OpSha256{}.Apply(OpPrepend{Data: []byte("salt")}.Apply(root))
	leaves := ts.Walk(root)
	if len(leaves) != 1 {
		t.Fatalf("got %d leaves, want 1", len(leaves))
	}
	if !bytes.Equal(leaves[0].Digest, want) {
		t.Errorf("leaf digest = %x, want %x", leaves[0].Digest, want)
	}

	// Walk folds from the digest it is given, not the stored one.
	other := []byte("another document")
	leaves = ts.Walk(other)
	want = OpSha256{}.Apply(OpPrepend{Data: []byte("salt")}.Apply(other))
	if !bytes.Equal(leaves[0].Digest, want) {
		t.Errorf("leaf digest = %x, want %x", leaves[0].Digest, want)
	}
}

func TestPendingRefs(t *testing.T) {
	ts := buildPendingTimestamp(testDigest(5), "https://a.example.org", 300)
	ts.Entries[0].Child.Attest(PendingAttestation{URI: "https://b.example.org"})

	refs := ts.Pending()
	if len(refs) != 2 {
		t.Fatalf("got %d pending refs, want 2", len(refs))
	}
	for _, ref := range refs {
		if ref.Node == nil {
			t.Error("pending ref missing its node")
		}
	}
	if refs[0].Attestation.URI == refs[1].Attestation.URI {
		t.Error("duplicate pending refs")
	}
}

func TestDumpMentionsAttestation(t *testing.T) {
	ts := buildPendingTimestamp(testDigest(5), "", 123456)
	var buf bytes.Buffer
	ts.Dump(&buf)
	out := buf.String()
	if !bytes.Contains(buf.Bytes(), []byte("123456")) {
		t.Errorf("dump does not mention the block height:\n%s", out)
	}
}
