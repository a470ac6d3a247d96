package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

// errPartialFailure signals that the run completed but some units failed.
// It maps to a distinct exit code so callers can tell it apart from a
// fatal error that prevented any transfer.
var errPartialFailure = errors.New("completed with failures")

const (
	exitOK             = 0
	exitPartialFailure = 1
	exitFatal          = 2
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bulksync",
		Short: "Reliable, integrity-checked bulk dataset synchronization",
		Long: `bulksync synchronizes a local directory tree to an object store with
bounded parallelism, rate limiting, chunked uploads and post-upload
checksum verification.`,
		Version:       fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newSizeCmd())

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errPartialFailure) {
			fmt.Fprintf(os.Stderr, "bulksync: %v\n", err)
			os.Exit(exitPartialFailure)
		}
		fmt.Fprintf(os.Stderr, "bulksync: %v\n", err)
		os.Exit(exitFatal)
	}

	os.Exit(exitOK)
}
