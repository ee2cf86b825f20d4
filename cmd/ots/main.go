// ots is an OpenTimestamps client: it stamps files onto the Bitcoin
// blockchain through calendar servers, upgrades pending proofs, and
// verifies completed ones.
package main

import (
	"fmt"
	"os"

	"github.com/dzatona/opentimestamps-client/internal/config"
	"github.com/dzatona/opentimestamps-client/internal/logging"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitPending = 2
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitFailure)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "stamp":
		os.Exit(cmdStamp(args))
	case "info":
		os.Exit(cmdInfo(args))
	case "verify":
		os.Exit(cmdVerify(args))
	case "upgrade":
		os.Exit(cmdUpgrade(args))
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(exitFailure)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `ots - OpenTimestamps client

Usage: ots <command> [options] <args>

Commands:
  stamp <file>...        Create a timestamp proof (<file>.ots) for each file
  info <file.ots>        Show the structure of a timestamp proof
  verify <file.ots>      Check a proof against the Bitcoin blockchain
  upgrade <file.ots>...  Replace pending attestations with completed ones
  help                   Show this help message

Run 'ots <command> -h' for command options.`)
}

// loadConfig reads the configuration and installs the logger it asks
// for. Exits on a broken config file.
func loadConfig(path string) *config.Config {
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(exitFailure)
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	format, _ := logging.ParseFormat(cfg.Logging.Format)
	logging.SetDefault(logging.New(&logging.Config{Level: level, Format: format}))
	return cfg
}
