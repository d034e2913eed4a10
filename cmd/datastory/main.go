// Command datastory serves the Allegheny County fatal overdose dashboard and
// manages its offline snapshot and SQL warehouse.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "datastory",
		Short: "Allegheny County fatal accidental overdose dashboard",
		Long: `datastory loads the WPRDC fatal accidental overdose records (live API or
SQL warehouse, falling back to the offline CSV snapshot) and serves an
interactive dashboard of yearly trends, substances, drug combinations and
ZIP code geography.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "TOML config file (default: $DATASTORY_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newSummaryCmd(opts),
		newSnapshotCmd(opts),
		newWarehouseCmd(opts),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
