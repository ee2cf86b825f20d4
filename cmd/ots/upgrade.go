package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ttacon/chalk"

	"github.com/dzatona/opentimestamps-client/internal/calendar"
)

func cmdUpgrade(args []string) int {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dryRun := fs.Bool("n", false, "query calendars but do not rewrite proof files")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: ots upgrade [options] <file.ots>...")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() < 1 {
		fs.Usage()
		return exitFailure
	}

	cfg := loadConfig(*configPath)

	code := exitOK
	for _, path := range fs.Args() {
		stillPending, err := upgradeFile(context.Background(), path, *dryRun, cfg.Timeout())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s%s: %v%s\n", chalk.Red, path, err, chalk.Reset)
			code = exitFailure
			continue
		}
		if stillPending && code == exitOK {
			code = exitPending
		}
	}
	return code
}

func upgradeFile(ctx context.Context, path string, dryRun bool, timeout time.Duration) (stillPending bool, err error) {
	dt, err := readProof(path)
	if err != nil {
		return false, err
	}

	if len(dt.Timestamp.Pending()) == 0 {
		fmt.Printf("%s is already complete\n", path)
		return false, nil
	}

	report, err := calendar.Upgrade(ctx, dt.Timestamp, func(url string) *calendar.Client {
		c := calendar.NewClient(url)
		c.HTTP = &http.Client{Timeout: timeout}
		return c
	})
	if err != nil {
		return false, err
	}

	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Printf("%s%s: %v%s\n", chalk.Yellow, path, res.Err, chalk.Reset)
		}
	}

	if report.Upgraded == 0 {
		fmt.Printf("%s: nothing to upgrade yet\n", path)
		return true, nil
	}

	if dryRun {
		fmt.Printf("%s: %d attestation(s) upgradeable (dry run, file unchanged)\n", path, report.Upgraded)
		return report.Pending(), nil
	}

	// Keep the pre-upgrade proof around in case the rewrite goes wrong.
	original, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path+".bak", original, 0644); err != nil {
		return false, fmt.Errorf("write backup: %w", err)
	}
	if err := writeProof(path, dt, true); err != nil {
		return false, err
	}

	fmt.Printf("%sUpgraded %s (%d attestation(s))%s\n", chalk.Green, path, report.Upgraded, chalk.Reset)
	return report.Pending(), nil
}
