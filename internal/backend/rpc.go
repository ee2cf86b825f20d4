package backend

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// rpcInvalidParameter is the bitcoind error code for, among other
// things, a block height beyond the tip.
const rpcInvalidParameter = -8

// CoreRPC resolves blocks through a Bitcoin Core node's JSON-RPC
// interface.
type CoreRPC struct {
	// URL is the node endpoint, e.g. http://127.0.0.1:8332.
	URL string

	// User and Password are the RPC credentials.
	User     string
	Password string

	// HTTP overrides the transport. Nil means a 30 second timeout client.
	HTTP *http.Client
}

// NewCoreRPC creates a backend for a Bitcoin Core node.
func NewCoreRPC(url, user, password string) *CoreRPC {
	return &CoreRPC{
		URL:      url,
		User:     user,
		Password: password,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("backend: rpc error %d: %s", e.Code, e.Message)
}

// Block resolves a height with getblockhash followed by getblockheader.
func (c *CoreRPC) Block(ctx context.Context, height uint64) (*BlockInfo, error) {
	return withRetry(ctx, func() (*BlockInfo, error) {
		var hash string
		if err := c.call(ctx, "getblockhash", []any{height}, &hash); err != nil {
			var rpcErr *rpcError
			if errors.As(err, &rpcErr) && rpcErr.Code == rpcInvalidParameter {
				return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
			}
			return nil, err
		}

		var header struct {
			MerkleRoot string `json:"merkleroot"`
			Time       int64  `json:"time"`
		}
		if err := c.call(ctx, "getblockheader", []any{hash}, &header); err != nil {
			return nil, err
		}

		root, err := hex.DecodeString(header.MerkleRoot)
		if err != nil || len(root) != merkleRootSize {
			return nil, fmt.Errorf("backend: rpc merkle root %q", header.MerkleRoot)
		}

		// getblockheader reports display order.
		return &BlockInfo{
			MerkleRoot: reverseBytes(root),
			Time:       time.Unix(header.Time, 0).UTC(),
		}, nil
	})
}

// call runs one JSON-RPC request and unmarshals the result.
func (c *CoreRPC) call(ctx context.Context, method string, params []any, result any) error {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "1.0",
		"id":      "opentimestamps",
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.User != "" {
		req.SetBasicAuth(c.User, c.Password)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("backend: rpc read response: %w", err)
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("backend: rpc %s: status %d: %w", method, resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	return json.Unmarshal(rpcResp.Result, result)
}
