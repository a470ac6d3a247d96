package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/bulksync/bulksync/pkg/logger"
	"github.com/bulksync/bulksync/pkg/manifest"
	"github.com/bulksync/bulksync/pkg/planner"
	"github.com/bulksync/bulksync/pkg/remote"
	"github.com/bulksync/bulksync/pkg/report"
	"github.com/bulksync/bulksync/pkg/scheduler"
	"github.com/bulksync/bulksync/pkg/verify"
)

var (
	transfers      int
	checkers       int
	tpsLimit       float64
	chunkSizeStr   string
	maxAttempts    int
	checksumFlag   bool
	dryRun         bool
	quiet          bool
	includes       []string
	excludes       []string
	logLevel       string
	profile        string
	region         string
	planJSONFile   string
	resultJSONFile string
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <source-dir> <s3-uri>",
		Short: "Synchronize a local directory to an S3 destination",
		Args:  cobra.ExactArgs(2),
		RunE:  runSync,
	}

	cmd.Flags().IntVar(&transfers, "transfers", 4, "Number of parallel transfers")
	cmd.Flags().IntVar(&checkers, "checkers", 8, "Number of parallel checksum checkers")
	cmd.Flags().Float64Var(&tpsLimit, "tpslimit", 0, "Max transactions per second against the store (0 = unlimited)")
	cmd.Flags().StringVar(&chunkSizeStr, "chunk-size", "8M", "Multipart chunk size for large uploads")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 3, "Attempts per unit before marking it failed")
	cmd.Flags().BoolVar(&checksumFlag, "checksum", false, "Compare content hashes for same-size files")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show planned operations without executing")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress non-error output")
	cmd.Flags().StringSliceVar(&includes, "include", nil, "Include patterns (multiple allowed)")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "Exclude patterns (multiple allowed)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (error, info, debug)")
	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile to use")
	cmd.Flags().StringVar(&region, "region", "", "AWS region (uses default if not specified)")
	cmd.Flags().StringVar(&planJSONFile, "plan-json-file", "", "Path to output plan as JSON file")
	cmd.Flags().StringVar(&resultJSONFile, "result-json-file", "", "Path to output result as JSON file")

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	sourceDir := args[0]
	s3URI := args[1]

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	if transfers <= 0 {
		return fmt.Errorf("--transfers must be positive, got %d", transfers)
	}
	if checkers <= 0 {
		return fmt.Errorf("--checkers must be positive, got %d", checkers)
	}
	if maxAttempts <= 0 {
		return fmt.Errorf("--max-attempts must be positive, got %d", maxAttempts)
	}
	chunkSize, err := humanize.ParseBytes(chunkSizeStr)
	if err != nil {
		return fmt.Errorf("invalid --chunk-size %q: %w", chunkSizeStr, err)
	}
	bucket, prefix, err := remote.ParseS3URI(s3URI)
	if err != nil {
		return fmt.Errorf("invalid S3 URI: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var configOpts []func(*config.LoadOptions) error
	if profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		configOpts = append(configOpts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	store := remote.NewS3Store(cfg, bucket, prefix)

	syncLogger := &logger.SyncLogger{
		Level:    level,
		IsDryRun: dryRun,
		IsQuiet:  quiet,
	}

	limiter := newLimiter(tpsLimit)

	// Manifest and inventory have no dependency on each other, so they
	// run concurrently.
	var (
		units       []manifest.Unit
		skipped     []manifest.SkippedFile
		inventory   map[string]remote.Object
		manifestErr error
		invErr      error
		wg          sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		units, skipped, manifestErr = manifest.Build(sourceDir, manifest.Options{
			Includes: includes,
			Excludes: excludes,
		})
	}()
	go func() {
		defer wg.Done()
		inventory, invErr = remote.Inventory(ctx, store, includes, excludes)
	}()
	wg.Wait()

	if manifestErr != nil {
		return fmt.Errorf("failed to build manifest: %w", manifestErr)
	}
	if invErr != nil {
		return fmt.Errorf("failed to list destination: %w", invErr)
	}

	syncLogger.Info("manifest: %d files, destination: %d objects", len(units), len(inventory))

	plnr := planner.New(store, syncLogger, limiter, checkers)
	operations, err := plnr.Plan(ctx, units, inventory, planner.Options{Checksum: checksumFlag})
	if err != nil {
		return fmt.Errorf("failed to generate plan: %w", err)
	}

	if planJSONFile != "" {
		if err := writePlanJSON(planJSONFile, operations); err != nil {
			return fmt.Errorf("failed to write plan JSON: %w", err)
		}
	}

	if dryRun {
		destBase := "s3://" + bucket
		if prefix != "" {
			destBase += "/" + prefix
		}
		for _, op := range operations {
			switch op.Action {
			case planner.ActionUpload, planner.ActionReupload:
				syncLogger.Upload(op.Unit.LocalPath, destBase+"/"+op.Unit.Path)
			case planner.ActionSkip:
				syncLogger.Skip(op.Unit.Path, op.Reason)
			}
		}
		return nil
	}

	sink := report.NewSink()
	for _, sf := range skipped {
		syncLogger.Error("read", sf.Path, sf.Err)
		sink.RecordSkippedSource(sf)
	}

	progressDone := startProgress(ctx, sink, syncLogger)

	verifier := verify.New(store, limiter)
	sched := scheduler.New(store, verifier, syncLogger, limiter, scheduler.Config{
		Transfers:   transfers,
		MaxAttempts: maxAttempts,
		ChunkSize:   int64(chunkSize),
	})
	sched.Run(ctx, operations, sink)

	progressDone()

	summary := sink.Finalize()
	if !quiet {
		fmt.Println()
		fmt.Print(summary.Format())
	}

	if resultJSONFile != "" {
		if err := writeResultJSON(resultJSONFile, summary); err != nil {
			return fmt.Errorf("failed to write result JSON: %w", err)
		}
	}

	if !summary.Ok() {
		return fmt.Errorf("%w: %d of %d units failed", errPartialFailure, summary.Failed, len(operations)+len(skipped))
	}

	return nil
}

func newLimiter(tps float64) *rate.Limiter {
	if tps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(tps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(tps), burst)
}

// startProgress emits a running counts line until the returned stop
// function is called.
func startProgress(ctx context.Context, sink *report.Sink, log logger.Logger) func() {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := sink.Progress()
				log.Info("progress: %d/%d done (uploaded %d, skipped %d, failed %d)",
					snap.Done, snap.Total, snap.Uploaded, snap.Skipped, snap.Failed)
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}
