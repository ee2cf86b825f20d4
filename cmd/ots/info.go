package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dzatona/opentimestamps-client/internal/ots"
)

func cmdInfo(args []string) int {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	verbose := fs.Bool("v", false, "print the full proof tree, not just the attestations")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: ots info [options] <file.ots>")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		return exitFailure
	}

	dt, err := readProof(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	fmt.Printf("File %s hash: %x\n", dt.DigestType, dt.Timestamp.Digest)
	if *verbose {
		dt.Timestamp.Dump(os.Stdout)
	}

	var bitcoin, pending, unknown int
	for _, leaf := range dt.Timestamp.Walk(dt.Timestamp.Digest) {
		if !*verbose {
			fmt.Printf("  %s\n", leaf.Attestation)
		}
		switch leaf.Attestation.(type) {
		case ots.BitcoinAttestation:
			bitcoin++
		case ots.PendingAttestation:
			pending++
		default:
			unknown++
		}
	}
	fmt.Printf("\nAttestations: %d bitcoin, %d pending, %d unknown\n", bitcoin, pending, unknown)
	return exitOK
}
