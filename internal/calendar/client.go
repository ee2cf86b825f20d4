// Package calendar talks to OpenTimestamps calendar servers.
//
// A calendar accepts digest submissions, aggregates them into a Merkle
// tree, and commits the tree root to Bitcoin. Submission returns a
// partial timestamp ending in a pending attestation; once the calendar's
// commitment confirms, a later lookup returns the completed path to a
// Bitcoin attestation.
package calendar

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jpillora/backoff"

	"github.com/dzatona/opentimestamps-client/internal/logging"
	"github.com/dzatona/opentimestamps-client/internal/ots"
)

// DefaultCalendars are the public calendar pools used when the
// configuration names none.
var DefaultCalendars = []string{
	"https://a.pool.opentimestamps.org",
	"https://b.pool.opentimestamps.org",
	"https://a.pool.eternitywall.com",
}

const (
	acceptHeader = "application/vnd.opentimestamps.v1"

	// maxResponseSize bounds calendar responses. Real proofs are well
	// under a few kilobytes.
	maxResponseSize = 1 << 20
)

var (
	// ErrStillPending means the calendar has not yet committed the
	// requested digest to Bitcoin. Try again later.
	ErrStillPending = errors.New("calendar: commitment not yet attested")

	// ErrStampFailed means no calendar accepted a submission.
	ErrStampFailed = errors.New("calendar: every calendar submission failed")
)

// Client talks to a single calendar server.
type Client struct {
	// URL is the calendar base URL, without a trailing slash.
	URL string

	// HTTP overrides the transport. Nil means a 30 second timeout client.
	HTTP *http.Client

	// Attempts is the number of tries for retryable failures. Zero
	// means 3.
	Attempts int

	// Log overrides the logger. Nil means the package default.
	Log *logging.Logger
}

// NewClient creates a client for one calendar server.
func NewClient(url string) *Client {
	return &Client{
		URL: url,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Submit sends a digest to the calendar and returns the partial
// timestamp tree the calendar built over it. The returned tree's root
// digest equals the submitted digest and its leaves are pending
// attestations naming this calendar.
func (c *Client) Submit(ctx context.Context, digest []byte) (*ots.Timestamp, error) {
	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/digest", bytes.NewReader(digest))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", acceptHeader)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	ts, err := ots.DecodeTree(bytes.NewReader(body), digest)
	if err != nil {
		return nil, fmt.Errorf("calendar %s: bad submit response: %w", c.URL, err)
	}
	return ts, nil
}

// Lookup asks the calendar for the timestamp tree over a previously
// submitted commitment. ErrStillPending means the calendar knows the
// commitment but has not yet anchored it in Bitcoin.
func (c *Client) Lookup(ctx context.Context, commitment []byte) (*ots.Timestamp, error) {
	body, err := c.do(ctx, func() (*http.Request, error) {
		url := c.URL + "/timestamp/" + hex.EncodeToString(commitment)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", acceptHeader)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	ts, err := ots.DecodeTree(bytes.NewReader(body), commitment)
	if err != nil {
		return nil, fmt.Errorf("calendar %s: bad lookup response: %w", c.URL, err)
	}
	return ts, nil
}

// do runs one request with retries on transport failures and server
// errors. Client errors are returned immediately; a 404 maps to
// ErrStillPending since calendars answer it for not-yet-anchored
// commitments.
func (c *Client) do(ctx context.Context, makeReq func() (*http.Request, error)) ([]byte, error) {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	log := c.Log
	if log == nil {
		log = logging.Default()
	}
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = 3
	}

	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := makeReq()
		if err != nil {
			return nil, err
		}

		body, retryable, err := c.once(httpClient, req)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		log.Debug("calendar request failed", "url", c.URL, "attempt", attempt, "error", err)
	}
	return nil, lastErr
}

func (c *Client) once(httpClient *http.Client, req *http.Request) (body []byte, retryable bool, err error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("calendar %s: %w", c.URL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, true, fmt.Errorf("calendar %s: read response: %w", c.URL, err)
		}
		return body, false, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("calendar %s: %w", c.URL, ErrStillPending)

	case resp.StatusCode >= 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, true, fmt.Errorf("calendar %s: status %d: %s", c.URL, resp.StatusCode, bytes.TrimSpace(msg))

	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("calendar %s: status %d: %s", c.URL, resp.StatusCode, bytes.TrimSpace(msg))
	}
}
