package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/kursadbilgin/sms-dispatch/internal/wire"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch ID",
	Short: "Show a dispatch batch and its gateway attempts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		batch, err := app.client.GetBatch(ctx, args[0])
		if err != nil {
			return err
		}
		return printBatch(cmd.OutOrStdout(), batch)
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

func printBatch(w io.Writer, batch *wire.BatchResponse) error {
	fmt.Fprintf(w, "batch %s (%s) %s: total %d, sent %d, failed %d\n",
		batch.ID, batch.Kind, batch.Status, batch.TotalCount, batch.SentCount, batch.FailedCount)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tSTATUS\tAT\tERROR")
	for _, attempt := range batch.Attempts {
		status := "-"
		if attempt.StatusCode != nil {
			status = fmt.Sprint(*attempt.StatusCode)
		}
		errText := ""
		if attempt.Error != nil {
			errText = *attempt.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", attempt.Number, status, attempt.CreatedAt.Local().Format(time.DateTime), errText)
	}
	return tw.Flush()
}
