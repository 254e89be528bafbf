package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"qr-campaign-analytics/internal/simulator"
	"qr-campaign-analytics/internal/validation"
)

func newCompareCmd() *cobra.Command {
	var (
		values []float64
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Rerun a scenario for several weekly values",
		Args:  cobra.NoArgs,
	}
	sf := addScenarioFlags(cmd)
	cmd.Flags().Float64SliceVar(&values, "values", simulator.DefaultComparisonValues, "Weekly values to compare")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Print the rows as JSON")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := sf.config()
		if err != nil {
			return err
		}
		if err := validation.ValidateComparisonValues(values); err != nil {
			return err
		}

		rows := simulator.Compare(cfg, values)
		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "WEEKLY VALUE\tTO MEDIUM\tTO ADULT\tDIED\tSPENT")
		for _, r := range rows {
			fmt.Fprintf(tw, "%g\t%s\t%s\t%s\t%s\n",
				r.WeeklyValue, dayOrDash(r.ToMediumDays), dayOrDash(r.ToAdultDays), dayOrDash(r.DiedOnDay), r.SpentTotal.StringFixed(1))
		}
		return tw.Flush()
	}

	return cmd
}
