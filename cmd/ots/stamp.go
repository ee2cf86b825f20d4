package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ttacon/chalk"

	"github.com/dzatona/opentimestamps-client/internal/calendar"
	"github.com/dzatona/opentimestamps-client/internal/ots"
)

// nonceSize is how much randomness is appended to a file digest before
// submission, so calendars never learn the digest itself.
const nonceSize = 16

func cmdStamp(args []string) int {
	fs := flag.NewFlagSet("stamp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	var calendars calendarFlag
	fs.Var(&calendars, "c", "calendar URL to submit to, repeatable (default: configured pools)")
	timeout := fs.Duration("t", 0, "per-calendar request timeout (default: from config)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: ots stamp [options] <file>...")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() < 1 {
		fs.Usage()
		return exitFailure
	}

	cfg := loadConfig(*configPath)
	urls := cfg.Calendars
	if len(calendars) > 0 {
		urls = []string(calendars)
	}
	if *timeout <= 0 {
		*timeout = cfg.Timeout()
	}
	clients := calendarClients(urls, *timeout)

	code := exitOK
	for _, path := range fs.Args() {
		if err := stampFile(context.Background(), path, clients); err != nil {
			fmt.Fprintf(os.Stderr, "%s%s: %v%s\n", chalk.Red, path, err, chalk.Reset)
			code = exitFailure
		}
	}
	return code
}

func stampFile(ctx context.Context, path string, clients []*calendar.Client) error {
	proofPath := path + otsExt
	if _, err := os.Stat(proofPath); err == nil {
		return fmt.Errorf("%s already exists; refusing to overwrite", proofPath)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	h := sha256.New()
	_, err = io.Copy(h, f)
	f.Close()
	if err != nil {
		return err
	}
	digest := h.Sum(nil)

	// Blind the file digest with a nonce so the commitment sent to the
	// calendars reveals nothing about the file.
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("gather nonce: %w", err)
	}

	ts := ots.NewTimestamp(digest)
	commitment := ts.Add(ots.OpAppend{Data: nonce}).Add(ots.OpSha256{})

	results, err := calendar.Stamp(ctx, commitment, clients)
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "%sSubmit to %s failed: %v%s\n", chalk.Yellow, res.URL, res.Err, chalk.Reset)
		} else {
			fmt.Printf("Submitted to %s\n", res.URL)
		}
	}
	if err != nil {
		return err
	}

	dt := &ots.DetachedTimestamp{DigestType: ots.DigestSha256, Timestamp: ts}
	if err := writeProof(proofPath, dt, false); err != nil {
		return err
	}
	fmt.Printf("%sCreated %s%s\n", chalk.Green, proofPath, chalk.Reset)
	return nil
}
