package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vpsbot/internal/ledger"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and adjust wallets",
	}
	cmd.AddCommand(ledgerCheckCmd())
	cmd.AddCommand(ledgerCreditCmd())
	return cmd
}

func ledgerCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify every balance equals the sum of its transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			bad, err := ledger.NewService(ledger.NewRepository(conn)).CheckAll(cmd.Context())
			if err != nil {
				return err
			}
			return reportConsistency(cmd, bad)
		},
	}
}

func reportConsistency(cmd *cobra.Command, bad []int64) error {
	if len(bad) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "ledger consistent")
		return nil
	}
	ids := make([]string, len(bad))
	for i, id := range bad {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Errorf("inconsistent users: %s", strings.Join(ids, ", "))
}

func ledgerCreditCmd() *cobra.Command {
	var details string
	cmd := &cobra.Command{
		Use:   "credit <user-id> <amount>",
		Short: "Post an admin adjustment (negative amounts debit)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("user id: %w", err)
			}
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}

			conn, _, err := connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			balance, err := ledger.NewService(ledger.NewRepository(conn)).Adjust(cmd.Context(), userID, amount, details)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d balance %d\n", userID, balance)
			return nil
		},
	}
	cmd.Flags().StringVarP(&details, "details", "d", "Operator adjustment", "Transaction details")
	return cmd
}
