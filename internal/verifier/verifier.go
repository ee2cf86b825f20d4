// Package verifier checks timestamp proofs against the Bitcoin chain.
//
// A proof claims that some digest equals the merkle root of a block at
// a given height. The verifier folds the proof's operations, asks a
// backend for the real header, and compares.
package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dzatona/opentimestamps-client/internal/backend"
	"github.com/dzatona/opentimestamps-client/internal/ots"
)

// ErrMismatch means a proof's operations fold to a digest that does
// not equal the attested block's merkle root. The proof is forged or
// corrupt, not merely incomplete.
var ErrMismatch = errors.New("verifier: digest does not match block merkle root")

// Status classifies one attestation's verification outcome.
type Status int

const (
	// StatusVerified means the attestation checked out against a block.
	StatusVerified Status = iota

	// StatusPending means the attestation still awaits its calendar.
	StatusPending

	// StatusUnverifiable means the attestation type is unknown to this
	// client version.
	StatusUnverifiable

	// StatusMismatch means the attested digest contradicts the chain.
	StatusMismatch

	// StatusError means the backend could not answer.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusPending:
		return "pending"
	case StatusUnverifiable:
		return "unverifiable"
	case StatusMismatch:
		return "mismatch"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the verification result for one attestation leaf.
type Outcome struct {
	Attestation ots.Attestation
	Status      Status

	// Height and Time are set for verified Bitcoin attestations.
	Height uint64
	Time   time.Time

	// Err carries detail for mismatch and error outcomes.
	Err error
}

// Verifier checks proofs against one block source.
type Verifier struct {
	src backend.Source
}

// New creates a Verifier backed by src.
func New(src backend.Source) *Verifier {
	return &Verifier{src: src}
}

// Verify folds the proof from digest and checks every attestation
// leaf, returning one outcome per leaf in stored order. Each block
// height is resolved at most once per call even when several leaves
// attest to it. The only returned error is context cancellation;
// per-leaf failures live in the outcomes.
func (v *Verifier) Verify(ctx context.Context, ts *ots.Timestamp, digest []byte) ([]Outcome, error) {
	leaves := ts.Walk(digest)
	outcomes := make([]Outcome, 0, len(leaves))

	type blockAnswer struct {
		info *backend.BlockInfo
		err  error
	}
	memo := make(map[uint64]blockAnswer)

	for _, leaf := range leaves {
		out := Outcome{Attestation: leaf.Attestation}

		switch att := leaf.Attestation.(type) {
		case ots.PendingAttestation:
			out.Status = StatusPending

		case ots.UnknownAttestation:
			out.Status = StatusUnverifiable

		case ots.BitcoinAttestation:
			out.Height = att.Height
			answer, ok := memo[att.Height]
			if !ok {
				info, err := v.src.Block(ctx, att.Height)
				answer = blockAnswer{info: info, err: err}
				memo[att.Height] = answer
			}
			switch {
			case answer.err != nil:
				out.Status = StatusError
				out.Err = answer.err
			case bytes.Equal(leaf.Digest, answer.info.MerkleRoot):
				out.Status = StatusVerified
				out.Time = answer.info.Time
			default:
				out.Status = StatusMismatch
				out.Err = fmt.Errorf("%w: height %d: proof folds to %x, block has %x",
					ErrMismatch, att.Height, leaf.Digest, answer.info.MerkleRoot)
			}

		default:
			out.Status = StatusUnverifiable
		}

		outcomes = append(outcomes, out)
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// Earliest returns the earliest verified block time among outcomes.
// The second return is false when nothing verified.
func Earliest(outcomes []Outcome) (time.Time, bool) {
	var best time.Time
	found := false
	for _, out := range outcomes {
		if out.Status != StatusVerified {
			continue
		}
		if !found || out.Time.Before(best) {
			best = out.Time
			found = true
		}
	}
	return best, found
}

// AnyMismatch reports whether any outcome contradicts the chain. A
// single mismatch condemns the whole proof file regardless of other
// leaves verifying, since an honest stamper never produces one.
func AnyMismatch(outcomes []Outcome) bool {
	for _, out := range outcomes {
		if out.Status == StatusMismatch {
			return true
		}
	}
	return false
}
