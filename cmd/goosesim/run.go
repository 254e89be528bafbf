package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"qr-campaign-analytics/internal/simulator"
)

func newRunCmd() *cobra.Command {
	var (
		asJSON      bool
		summaryOnly bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a single scenario",
		Args:  cobra.NoArgs,
	}
	sf := addScenarioFlags(cmd)
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&summaryOnly, "summary", false, "Print only the summary")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := sf.config()
		if err != nil {
			return err
		}

		res := simulator.Run(cfg)
		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		if !summaryOnly {
			if err := writeDayLog(out, res.Log); err != nil {
				return err
			}
			fmt.Fprintln(out)
		}
		return writeSummary(out, res.Summary)
	}

	return cmd
}

func writeDayLog(w io.Writer, log []simulator.DayLog) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSTAGE\tHUNGER\tSIZE\tFEEDS\tPAID\tWALLET\tGAINS\tSTAGE UP")
	for _, l := range log {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\t%s\t%d\t%s\n",
			l.Day, l.Stage, l.Hunger, l.Size, l.FeedsToday,
			l.PaidSpent.StringFixed(2), l.WalletEnd.StringFixed(2), l.SizeGains, l.StageUp)
	}
	return tw.Flush()
}

func writeSummary(w io.Writer, s simulator.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Days run:\t%d\n", s.DaysRun)
	fmt.Fprintf(tw, "Reached medium on day:\t%s\n", dayOrDash(s.ReachedMediumOnDay))
	fmt.Fprintf(tw, "Reached adult on day:\t%s\n", dayOrDash(s.ReachedAdultOnDay))
	fmt.Fprintf(tw, "Died on day:\t%s\n", dayOrDash(s.DiedOnDay))
	fmt.Fprintf(tw, "Final stage:\t%s\n", s.FinalStage)
	fmt.Fprintf(tw, "Final hunger / size:\t%d / %d\n", s.FinalHunger, s.FinalSize)
	fmt.Fprintf(tw, "Wallet at end:\t%s\n", s.WalletEnd.StringFixed(2))
	fmt.Fprintf(tw, "Total paid spent:\t%s\n", s.TotalPaidSpent.StringFixed(2))
	return tw.Flush()
}
