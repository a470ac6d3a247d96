package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bulksync/bulksync/pkg/remote"
)

var (
	sizeHumanReadable bool
	sizeProfile       string
	sizeRegion        string
)

func newSizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "size <s3-uri>",
		Short: "Report object count and total size at the destination",
		Args:  cobra.ExactArgs(1),
		RunE:  runSize,
	}

	cmd.Flags().BoolVar(&sizeHumanReadable, "human-readable", false, "Print sizes in human-readable units")
	cmd.Flags().StringVar(&sizeProfile, "profile", "", "AWS profile to use")
	cmd.Flags().StringVar(&sizeRegion, "region", "", "AWS region (uses default if not specified)")

	return cmd
}

func runSize(cmd *cobra.Command, args []string) error {
	bucket, prefix, err := remote.ParseS3URI(args[0])
	if err != nil {
		return fmt.Errorf("invalid S3 URI: %w", err)
	}

	ctx := context.Background()

	var configOpts []func(*config.LoadOptions) error
	if sizeProfile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(sizeProfile))
	}
	if sizeRegion != "" {
		configOpts = append(configOpts, config.WithRegion(sizeRegion))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	store := remote.NewS3Store(cfg, bucket, prefix)

	inventory, err := remote.Inventory(ctx, store, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to list destination: %w", err)
	}

	count, bytes := remote.TotalSize(inventory)

	if sizeHumanReadable {
		fmt.Printf("Total objects: %d\n", count)
		fmt.Printf("Total size: %s (%d bytes)\n", humanize.IBytes(uint64(bytes)), bytes)
	} else {
		fmt.Printf("Total objects: %d\n", count)
		fmt.Printf("Total size: %d\n", bytes)
	}

	return nil
}
