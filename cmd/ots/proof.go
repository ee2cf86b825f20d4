package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dzatona/opentimestamps-client/internal/backend"
	"github.com/dzatona/opentimestamps-client/internal/calendar"
	"github.com/dzatona/opentimestamps-client/internal/config"
	"github.com/dzatona/opentimestamps-client/internal/ots"
)

const otsExt = ".ots"

// readProof loads and parses a detached proof file.
func readProof(path string) (*ots.DetachedTimestamp, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dt, err := ots.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dt, nil
}

// writeProof serializes a proof to path. With overwrite false an
// existing file is an error.
func writeProof(path string, dt *ots.DetachedTimestamp, overwrite bool) error {
	var buf bytes.Buffer
	if err := dt.Encode(&buf); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// hashFile streams a file through the proof's digest function.
func hashFile(path string, dt ots.DigestType) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := dt.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h.Sum(nil), nil
}

// targetForProof derives the stamped file's path from a proof path by
// stripping the .ots extension.
func targetForProof(proofPath string) (string, error) {
	if !strings.HasSuffix(proofPath, otsExt) {
		return "", fmt.Errorf("%s does not end in %s; pass the target with -f", proofPath, otsExt)
	}
	return strings.TrimSuffix(proofPath, otsExt), nil
}

// calendarFlag collects repeated -c options.
type calendarFlag []string

func (f *calendarFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *calendarFlag) Set(value string) error {
	*f = append(*f, value)
	return nil
}

// calendarClients builds one client per calendar URL, all sharing the
// same per-request timeout.
func calendarClients(urls []string, timeout time.Duration) []*calendar.Client {
	clients := make([]*calendar.Client, len(urls))
	for i, url := range urls {
		c := calendar.NewClient(url)
		c.HTTP = &http.Client{Timeout: timeout}
		clients[i] = c
	}
	return clients
}

// blockSource builds the verification backend, wrapped in the header
// cache when one is configured. The returned closer is nil when there
// is nothing to close.
func blockSource(cfg *config.Config) (backend.Source, io.Closer, error) {
	timeout := cfg.Timeout()
	var src backend.Source
	switch cfg.Backend.Kind {
	case config.BackendElectrum:
		e := backend.NewElectrum(cfg.Backend.Address)
		e.DialTimeout = timeout
		src = e
	case config.BackendCore:
		c := backend.NewCoreRPC(cfg.Backend.URL, cfg.Backend.RPCUser, cfg.Backend.RPCPassword)
		c.HTTP = &http.Client{Timeout: timeout}
		src = c
	default:
		e := backend.NewEsplora(cfg.Backend.URL)
		e.HTTP = &http.Client{Timeout: timeout}
		src = e
	}

	if cfg.Backend.CachePath == "" {
		return src, nil, nil
	}
	cache, err := backend.OpenCache(cfg.Backend.CachePath, src)
	if err != nil {
		return nil, nil, err
	}
	return cache, cache, nil
}
