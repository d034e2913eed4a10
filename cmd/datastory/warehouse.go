package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"datastory/internal/config"
	"datastory/internal/ingest"
	"datastory/pkg/domain"
)

func newWarehouseCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warehouse",
		Short: "Manage the SQL warehouse of case records",
	}
	cmd.AddCommand(newWarehouseLoadCmd(opts))
	return cmd
}

func newWarehouseLoadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Replace the warehouse contents with the records from the live API (or snapshot)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			table, err := a.loader(ctx, config.PrimaryAPI).Load(ctx)
			if err != nil {
				return err
			}
			wh, location, err := ingest.OpenWarehouse(ctx, a.cfg.Warehouse)
			if err != nil {
				return fmt.Errorf("open warehouse: %w", err)
			}
			a.closers = append(a.closers, wh)
			records := make([]domain.Record, table.Len())
			for i := range records {
				records[i] = table.Record(i)
			}
			if err := wh.Replace(ctx, records); err != nil {
				return fmt.Errorf("replace warehouse: %w", err)
			}
			meta := table.Meta()
			a.logger.Info().Str("warehouse", location).Int("records", len(records)).Str("from", string(meta.LoadedFrom)).Msg("warehouse loaded")
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %s records from %s into %s\n",
				humanize.Comma(int64(len(records))), meta.LoadedFrom, location)
			return nil
		},
	}
}
