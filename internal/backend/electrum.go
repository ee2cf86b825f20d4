package backend

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// Electrum resolves blocks through an Electrum server's TCP interface.
// Each call dials a fresh connection, sends one newline-delimited
// JSON-RPC request, and reads one response line.
type Electrum struct {
	// Address is the server host:port.
	Address string

	// DialTimeout bounds connection setup. Zero means 10 seconds.
	DialTimeout time.Duration
}

// NewElectrum creates a backend for an Electrum server.
func NewElectrum(address string) *Electrum {
	return &Electrum{Address: address}
}

// Block fetches the raw 80-byte header at the given height with
// blockchain.block.header.
func (e *Electrum) Block(ctx context.Context, height uint64) (*BlockInfo, error) {
	return withRetry(ctx, func() (*BlockInfo, error) {
		var headerHex string
		if err := e.call(ctx, "blockchain.block.header", []any{height}, &headerHex); err != nil {
			return nil, err
		}

		raw, err := hex.DecodeString(strings.TrimSpace(headerHex))
		if err != nil {
			return nil, fmt.Errorf("backend: electrum header hex: %w", err)
		}
		return parseHeader(raw)
	})
}

func (e *Electrum) call(ctx context.Context, method string, params []any, result any) error {
	timeout := e.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", e.Address)
	if err != nil {
		return fmt.Errorf("backend: electrum dial %s: %w", e.Address, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      0,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("backend: electrum write: %w", err)
	}

	line, err := bufio.NewReaderSize(conn, 1<<16).ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("backend: electrum read: %w", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("backend: electrum response: %w", err)
	}
	if resp.Error != nil {
		// Electrum answers height-out-of-range with an error rather
		// than a status code.
		if strings.Contains(strings.ToLower(resp.Error.Message), "out of range") ||
			strings.Contains(strings.ToLower(resp.Error.Message), "not found") {
			return ErrBlockNotFound
		}
		return fmt.Errorf("backend: electrum error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return json.Unmarshal(resp.Result, result)
}
