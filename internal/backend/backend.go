// Package backend resolves Bitcoin block headers for attestation
// verification.
//
// Verification only needs two facts about a block: its merkle root and
// its timestamp. Each backend speaks one node flavor (Core JSON-RPC,
// Electrum, Esplora) and reduces its answer to a BlockInfo.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"
)

// ErrBlockNotFound means the node does not have a block at the
// requested height. On a synced mainnet node this indicates a bogus
// attestation rather than a transient failure.
var ErrBlockNotFound = errors.New("backend: block not found")

// BlockInfo is the slice of a block header that attestation
// verification needs.
type BlockInfo struct {
	// MerkleRoot is the transaction merkle root in internal byte
	// order, as it appears in the 80-byte header.
	MerkleRoot []byte

	// Time is the block header timestamp.
	Time time.Time
}

// Source resolves block headers by height.
type Source interface {
	// Block returns header facts for the block at the given height.
	// It returns ErrBlockNotFound when the chain has no such block.
	Block(ctx context.Context, height uint64) (*BlockInfo, error)
}

// retryAttempts is how many times transient backend failures are
// retried before giving up.
const retryAttempts = 3

// withRetry runs fn with exponential backoff. ErrBlockNotFound is a
// definitive answer and is never retried.
func withRetry(ctx context.Context, fn func() (*BlockInfo, error)) (*BlockInfo, error) {
	b := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		info, err := fn()
		if err == nil {
			return info, nil
		}
		if errors.Is(err, ErrBlockNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
