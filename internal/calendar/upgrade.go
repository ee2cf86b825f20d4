package calendar

import (
	"context"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dzatona/opentimestamps-client/internal/ots"
)

// lookupConcurrency bounds in-flight calendar lookups during an upgrade.
const lookupConcurrency = 4

// LookupResult records the outcome of one coalesced calendar lookup.
type LookupResult struct {
	URL    string
	Digest []byte
	Err    error
}

// UpgradeReport summarizes an Upgrade pass.
type UpgradeReport struct {
	// Results holds one entry per distinct (calendar, commitment) pair.
	Results []LookupResult

	// Upgraded counts pending attestations that were replaced with
	// completed subtrees.
	Upgraded int
}

// Pending reports whether any lookup failed, leaving its attestation
// in place for a later pass.
func (r *UpgradeReport) Pending() bool {
	for _, res := range r.Results {
		if res.Err != nil {
			return true
		}
	}
	return false
}

// Upgrade replaces pending attestations in ts with the completed
// subtrees their calendars now serve. Attestations whose calendars
// still answer 404 are left in place so a later pass can retry.
//
// newClient builds the client for a calendar URL; nil means NewClient.
// Lookups for the same (calendar, commitment) pair are coalesced, and
// the tree is only modified after all lookups finish, so ts is never
// left half-spliced by a context cancellation.
func Upgrade(ctx context.Context, ts *ots.Timestamp, newClient func(url string) *Client) (*UpgradeReport, error) {
	if newClient == nil {
		newClient = NewClient
	}

	refs := ts.Pending()
	if len(refs) == 0 {
		return &UpgradeReport{}, nil
	}

	// Coalesce: several tree nodes can carry the same pending
	// attestation after merges, and one lookup answers them all.
	type lookupKey struct {
		url    string
		digest string
	}
	groups := make(map[lookupKey][]ots.PendingRef)
	var order []lookupKey
	for _, ref := range refs {
		key := lookupKey{url: ref.Attestation.URI, digest: hex.EncodeToString(ref.Node.Digest)}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ref)
	}

	report := &UpgradeReport{Results: make([]LookupResult, len(order))}
	updates := make([]*ots.Timestamp, len(order))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(lookupConcurrency)
	for i, key := range order {
		i, key := i, key
		g.Go(func() error {
			digest, _ := hex.DecodeString(key.digest)
			up, err := newClient(key.url).Lookup(ctx, digest)

			mu.Lock()
			defer mu.Unlock()
			report.Results[i] = LookupResult{URL: key.url, Digest: digest, Err: err}
			updates[i] = up
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	// Splice serially now that every lookup has settled.
	for i, key := range order {
		if updates[i] == nil {
			continue
		}
		group := groups[key]
		for n, ref := range group {
			// Merge absorbs its argument, so every ref but the last
			// gets a clone taken before the original is consumed.
			up := updates[i]
			if n < len(group)-1 {
				up = updates[i].Clone()
			}
			ref.Node.RemoveAttestation(ref.Attestation)
			if err := ref.Node.Merge(up); err != nil {
				// Cannot happen: the lookup was keyed by this
				// node's digest.
				report.Results[i].Err = err
				continue
			}
			report.Upgraded++
		}
	}
	return report, nil
}
