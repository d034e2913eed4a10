package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"datastory/internal/config"
	"datastory/internal/ingest"
)

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Load the table and publish it as a new offline snapshot in the blob store",
		Long: `snapshot loads the records through the configured source chain and writes
them to snapshots/<timestamp>.csv in the blob store. The snapshot source
reads the newest published snapshot whenever blob.snapshot_key is unset or
missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if source != "" && source != config.PrimaryAPI && source != config.PrimaryWarehouse {
				return fmt.Errorf("unknown --source %q (want %s or %s)", source, config.PrimaryAPI, config.PrimaryWarehouse)
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			primary := a.cfg.Source.Primary
			if source != "" {
				primary = source
			}
			table, err := a.loader(ctx, primary).Load(ctx)
			if err != nil {
				return err
			}
			info, err := ingest.PublishSnapshot(ctx, a.store, table, time.Now())
			if err != nil {
				return fmt.Errorf("publish snapshot: %w", err)
			}
			a.logger.Info().Str("key", info.Key).Int64("bytes", info.Size).Msg("snapshot published")
			fmt.Fprintf(cmd.OutOrStdout(), "published %s (%s records, %s)\n",
				info.Key, humanize.Comma(int64(table.Len())), humanize.Bytes(uint64(info.Size)))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", fmt.Sprintf("Primary source to read (%s or %s)", config.PrimaryAPI, config.PrimaryWarehouse))
	return cmd
}
