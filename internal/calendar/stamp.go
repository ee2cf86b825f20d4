package calendar

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dzatona/opentimestamps-client/internal/ots"
)

// SubmitResult records the outcome of one calendar submission.
type SubmitResult struct {
	URL string
	Err error
}

// Stamp submits the timestamp's root digest to every client
// concurrently and merges the returned partial trees into ts as they
// arrive. It returns per-calendar outcomes; the error is ErrStampFailed
// when not a single calendar accepted the digest, since such a proof
// could never be upgraded.
func Stamp(ctx context.Context, ts *ots.Timestamp, clients []*Client) ([]SubmitResult, error) {
	results := make([]SubmitResult, len(clients))

	var mu sync.Mutex
	var accepted int

	g := new(errgroup.Group)
	for i, client := range clients {
		i, client := i, client
		g.Go(func() error {
			results[i].URL = client.URL

			sub, err := client.Submit(ctx, ts.Digest)
			if err != nil {
				results[i].Err = err
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if err := ts.Merge(sub); err != nil {
				results[i].Err = err
				return nil
			}
			accepted++
			return nil
		})
	}
	g.Wait()

	if accepted == 0 {
		return results, ErrStampFailed
	}
	return results, nil
}
