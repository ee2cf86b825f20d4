package backend

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Esplora resolves blocks through an Esplora REST API such as
// blockstream.info or a self-hosted instance.
type Esplora struct {
	// BaseURL is the API root, e.g. https://blockstream.info/api.
	BaseURL string

	// HTTP overrides the transport. Nil means a 30 second timeout client.
	HTTP *http.Client
}

// NewEsplora creates an Esplora backend for the given API root.
func NewEsplora(baseURL string) *Esplora {
	return &Esplora{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Block resolves a height to header facts with two calls: height to
// block hash, then block hash to block metadata.
func (e *Esplora) Block(ctx context.Context, height uint64) (*BlockInfo, error) {
	return withRetry(ctx, func() (*BlockInfo, error) {
		hash, err := e.blockHash(ctx, height)
		if err != nil {
			return nil, err
		}
		return e.blockInfo(ctx, hash)
	})
}

func (e *Esplora) blockHash(ctx context.Context, height uint64) (string, error) {
	body, status, err := e.get(ctx, fmt.Sprintf("%s/block-height/%d", e.BaseURL, height))
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("backend: esplora status %d: %s", status, body)
	}
	return strings.TrimSpace(string(body)), nil
}

func (e *Esplora) blockInfo(ctx context.Context, hash string) (*BlockInfo, error) {
	body, status, err := e.get(ctx, e.BaseURL+"/block/"+hash)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: hash %s", ErrBlockNotFound, hash)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("backend: esplora status %d: %s", status, body)
	}

	var block struct {
		MerkleRoot string `json:"merkle_root"`
		Timestamp  int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &block); err != nil {
		return nil, fmt.Errorf("backend: esplora block response: %w", err)
	}

	root, err := hex.DecodeString(block.MerkleRoot)
	if err != nil || len(root) != merkleRootSize {
		return nil, fmt.Errorf("backend: esplora merkle root %q", block.MerkleRoot)
	}

	// Esplora reports display order.
	return &BlockInfo{
		MerkleRoot: reverseBytes(root),
		Time:       time.Unix(block.Timestamp, 0).UTC(),
	}, nil
}

func (e *Esplora) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	httpClient := e.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("backend: esplora: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("backend: esplora read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
