package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"datastory/internal/pipeline"
	"datastory/pkg/domain"
)

type summary struct {
	Meta          domain.Meta           `json:"meta"`
	DefaultFilter domain.FilterSpec     `json:"default_filter"`
	KPIs          pipeline.KPIs         `json:"kpis"`
	Trend         *pipeline.Trend       `json:"trend,omitempty"`
	Combinations  []pipeline.ComboCount `json:"top_combinations"`
	ZIPs          []pipeline.ZIPCount   `json:"top_zips"`
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	var top int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Load the table and print the headline figures for the default filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			table, err := a.loadTable(ctx)
			if err != nil {
				return err
			}
			engine, err := pipeline.NewEngine(table, pipeline.Options{
				TopCombinations: top,
				Metrics:         a.metrics,
				Logger:          a.logger,
			})
			if err != nil {
				return err
			}
			d, err := engine.Render(ctx, table.DefaultFilter())
			if err != nil {
				return err
			}
			s := summary{
				Meta:          table.Meta(),
				DefaultFilter: d.Spec,
				KPIs:          d.KPIs,
				Trend:         d.Yearly.Trend,
				Combinations:  d.Combinations.Top,
				ZIPs:          d.ZIPs.ByFrequency(),
			}
			if top > 0 && len(s.ZIPs) > top {
				s.ZIPs = s.ZIPs[:top]
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			printSummary(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	cmd.Flags().IntVar(&top, "top", 5, "Number of combinations and ZIP codes to list")
	return cmd
}

func printSummary(w io.Writer, s summary) {
	m := s.Meta
	fmt.Fprintf(w, "%s\n", m.Source)
	fmt.Fprintf(w, "loaded from %s %s: %s records covering %d–%d\n",
		m.LoadedFrom, humanize.Time(m.LoadedAt), humanize.Comma(int64(m.Rows)), m.YearMin, m.YearMax)
	if m.Notice != "" {
		fmt.Fprintf(w, "notice: %s\n", m.Notice)
	}
	fmt.Fprintf(w, "\n%s\n", s.KPIs.Description)
	if s.KPIs.MedianAge != nil {
		fmt.Fprintf(w, "median age: %s\n", humanize.Ftoa(*s.KPIs.MedianAge))
	}
	if t := s.Trend; t != nil {
		fmt.Fprintf(w, "peak: %d deaths in %d, trend %+.1f deaths/year\n", t.PeakCount, t.PeakYear, t.Slope)
	}
	if len(s.Combinations) > 0 {
		fmt.Fprintln(w, "\ntop combinations:")
		for i, c := range s.Combinations {
			fmt.Fprintf(w, "  %2d. %-40s %s\n", i+1, c.Signature, humanize.Comma(int64(c.Count)))
		}
	}
	if len(s.ZIPs) > 0 {
		fmt.Fprintln(w, "\ntop ZIP codes:")
		for i, z := range s.ZIPs {
			fmt.Fprintf(w, "  %2d. %s %s\n", i+1, z.ZIP, humanize.Comma(int64(z.Count)))
		}
	}
}
