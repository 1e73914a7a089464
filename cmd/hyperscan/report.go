package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/hyperscan/internal/analyze"
)

type reportOptions struct {
	Metric    string
	Ascending bool
	Top       int
	Exclude   []string
}

func newReportCommand(o *reportOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report RESULTS.csv",
		Short: "Summarize the results of a finished scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := analyze.Load(nil, args[0])
			if err != nil {
				return err
			}
			return summarize(cmd.OutOrStdout(), r, o.Metric, o.Ascending, o.Top, o.Exclude...)
		},
	}
	cmd.Flags().StringVar(&o.Metric, "metric", "val_loss", "Metric to report on.")
	cmd.Flags().BoolVar(&o.Ascending, "ascending", false, "Lower metric values rank first.")
	cmd.Flags().IntVar(&o.Top, "top", 5, "Number of best parameter rows printed.")
	cmd.Flags().StringSliceVar(&o.Exclude, "exclude", nil, "Columns left out of the best rows and correlations.")
	return cmd
}

// summarize prints the metric distribution, the best rows and the
// parameter correlations.
func summarize(out io.Writer, r *analyze.Report, metric string, ascending bool, top int, exclude ...string) error {
	s, err := r.Describe(metric)
	if err != nil {
		return err
	}
	at, err := r.RoundsToHigh(metric)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s over %d rounds: mean %.4g, std %.4g, min %.4g, median %.4g, max %.4g (first reached in round %d)\n",
		metric, s.Count, s.Mean, s.Std, s.Min, s.Median, s.Max, at)

	best, err := r.BestParams(metric, exclude, top, ascending)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nbest %d rounds by %s:\n", len(best.Rows), metric)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(best.Header, "\t"))
	for _, row := range best.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	corr, err := r.Correlate(metric, exclude)
	if err != nil {
		return err
	}
	if len(corr) > 0 {
		fmt.Fprintf(out, "\nspearman correlation with %s:\n", metric)
		for _, c := range corr {
			fmt.Fprintf(out, "  %-20s %+.3f\n", c.Column, c.Rho)
		}
	}
	return nil
}
