package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/spf13/cobra"
)

var resendIDs []int64

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Inspect and resend persisted failures",
}

var failuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List failure records, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		records, err := app.resends.List(ctx)
		if err != nil {
			return err
		}
		return printFailures(cmd.OutOrStdout(), records)
	},
}

var failuresResendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Resend failure records by id",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		// Ids are checked against the current listing before sending.
		if _, err := app.resends.List(ctx); err != nil {
			return err
		}

		result, err := app.resends.Resend(ctx, resendIDs)
		var resolvedErr *domain.AlreadyResolvedError
		if errors.As(err, &resolvedErr) {
			return fmt.Errorf("records %v are already resolved; nothing was sent", resolvedErr.IDs)
		}
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	failuresResendCmd.Flags().Int64SliceVar(&resendIDs, "ids", nil, "failure record ids, e.g. 3,4")
	_ = failuresResendCmd.MarkFlagRequired("ids")

	failuresCmd.AddCommand(failuresListCmd, failuresResendCmd)
	rootCmd.AddCommand(failuresCmd)
}

func printFailures(w io.Writer, records []domain.FailedMessage) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tCREATED\tATTEMPTS\tRESOLVED\tLAST ERROR")
	for _, record := range records {
		lastError := record.Reason
		if record.LastError != nil {
			lastError = *record.LastError
		}
		resolved := "no"
		if record.Resolved {
			resolved = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			record.ID,
			record.NormalizedNumber,
			record.CreatedAt.Local().Format(time.DateTime),
			record.AttemptCount,
			resolved,
			lastError,
		)
	}
	return tw.Flush()
}
