package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"vpsbot/internal/payment"
)

func intentsCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "intents",
		Short: "List payment intents by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch payment.Status(status) {
			case payment.StatusPending, payment.StatusCompleted, payment.StatusExpired, payment.StatusError:
			default:
				return fmt.Errorf("unknown status %q", status)
			}

			conn, _, err := connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			rows, err := payment.NewRepository(conn).ListByStatus(cmd.Context(), payment.Status(status), limit)
			if err != nil {
				return err
			}
			return printIntents(cmd.OutOrStdout(), rows)
		},
	}
	cmd.AddCommand(intentStatsCmd())
	cmd.Flags().StringVarP(&status, "status", "s", string(payment.StatusPending), "pending, completed, expired or error")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows, 0 for all")
	return cmd
}

func printIntents(w io.Writer, rows []payment.Intent) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REFERENCE\tUSER\tREQUESTED\tSETTLEMENT\tSTATUS\tCREATED")
	for _, in := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
			in.Ref, in.UserID, in.Requested, in.Settlement, in.Status, in.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func intentStatsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Daily counts of intents by outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}

			conn, _, err := connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			to := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 1)
			stats, err := payment.NewRepository(conn).StatsByDay(cmd.Context(), to.AddDate(0, 0, -days), to)
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 7, "Number of days, today included")
	return cmd
}

func printStats(w io.Writer, stats []payment.DailyStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tCREATED\tCOMPLETED\tEXPIRED\tERROR\tSETTLED")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Day, s.Created, s.Completed, s.Expired, s.Errored, s.Settled)
	}
	return tw.Flush()
}
