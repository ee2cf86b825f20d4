package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ttacon/chalk"

	"github.com/dzatona/opentimestamps-client/internal/verifier"
)

func cmdVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	target := fs.String("f", "", "stamped file (default: proof path without .ots)")
	backendKind := fs.String("b", "", "block header backend: esplora, electrum, or core (default: from config)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: ots verify [options] <file.ots>")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		return exitFailure
	}
	proofPath := fs.Arg(0)

	dt, err := readProof(proofPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	targetPath := *target
	if targetPath == "" {
		targetPath, err = targetForProof(proofPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFailure
		}
	}

	digest, err := hashFile(targetPath, dt.DigestType)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	if !bytes.Equal(digest, dt.Timestamp.Digest) {
		fmt.Fprintf(os.Stderr, "%sFile does not match proof: %s digest is %x, proof commits to %x%s\n",
			chalk.Red, dt.DigestType, digest, dt.Timestamp.Digest, chalk.Reset)
		return exitFailure
	}

	cfg := loadConfig(*configPath)
	if *backendKind != "" {
		cfg.Backend.Kind = *backendKind
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFailure
		}
	}
	src, closer, err := blockSource(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	if closer != nil {
		defer closer.Close()
	}

	outcomes, err := verifier.New(src).Verify(context.Background(), dt.Timestamp, digest)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	var verified, failed bool
	for _, out := range outcomes {
		switch out.Status {
		case verifier.StatusVerified:
			fmt.Printf("%sSuccess! Bitcoin block %d attests existence as of %s%s\n",
				chalk.Green, out.Height, out.Time.Format("2006-01-02 15:04:05 MST"), chalk.Reset)
			verified = true
		case verifier.StatusPending:
			fmt.Printf("%sPending: %s has not confirmed yet; try 'ots upgrade' later%s\n",
				chalk.Yellow, out.Attestation, chalk.Reset)
		case verifier.StatusUnverifiable:
			fmt.Printf("%sIgnoring %s%s\n", chalk.Yellow, out.Attestation, chalk.Reset)
		case verifier.StatusMismatch:
			fmt.Fprintf(os.Stderr, "%s%v%s\n", chalk.Red, out.Err, chalk.Reset)
		case verifier.StatusError:
			fmt.Fprintf(os.Stderr, "%sCould not check %s: %v%s\n", chalk.Red, out.Attestation, out.Err, chalk.Reset)
			failed = true
		}
	}

	switch {
	case verifier.AnyMismatch(outcomes):
		// A single contradiction condemns the file even if another
		// leaf checked out.
		return exitFailure
	case verified:
		return exitOK
	case failed:
		return exitFailure
	default:
		return exitPending
	}
}
