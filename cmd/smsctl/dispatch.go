package main

import (
	"fmt"
	"io"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/spf13/cobra"
)

var (
	dispatchRows     string
	dispatchName     string
	dispatchSelected []int
	dispatchAll      bool
	dispatchExport   bool
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Upload a rows file and send the selected rows",
	RunE:  runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchRows, "rows", "", "rows file (.xlsx or .json)")
	dispatchCmd.Flags().StringVar(&dispatchName, "name", "", "dataset name used for export file names")
	dispatchCmd.Flags().IntSliceVar(&dispatchSelected, "select", nil, "row indices to send, e.g. 0,2,5")
	dispatchCmd.Flags().BoolVar(&dispatchAll, "all", false, "select every row")
	dispatchCmd.Flags().BoolVar(&dispatchExport, "export", false, "write the non-empty partitions to the export dir")
	_ = dispatchCmd.MarkFlagRequired("rows")
	dispatchCmd.MarkFlagsMutuallyExclusive("select", "all")

	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	dataset, err := app.uploader.Upload(dispatchRows, dispatchName)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	selection := app.workspace.Selection()
	if dispatchAll {
		selection.SelectAll()
	} else if err := selection.Select(dispatchSelected); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d rows, %d selected, %d recipients\n",
		dataset.Name(), dataset.Len(), selection.Len(), selection.DerivedRecipientCount())

	result, err := app.orchestrator.DispatchSelected(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	printResult(out, result)

	if !dispatchExport {
		return nil
	}
	files, err := app.exports.ExportAll(ctx, result)
	for _, file := range files {
		fmt.Fprintf(out, "exported %d %s recipients to %s\n", file.Count, file.Partition, file.Path)
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func printResult(w io.Writer, result *domain.DispatchResult) {
	if result.Message != "" {
		fmt.Fprintln(w, result.Message)
	}
	fmt.Fprintf(w, "sent %d, failed %d, skipped %d\n", result.SentCount, result.FailedCount, len(result.Skipped))
	if result.BatchID != "" {
		fmt.Fprintf(w, "batch %s\n", result.BatchID)
	}
	for _, outcome := range result.Failed {
		fmt.Fprintf(w, "  failed %s%s: %s\n", outcome.Recipient.NormalizedNumber, recordSuffix(outcome), outcome.Reason)
	}
	for _, skipped := range result.Skipped {
		number := skipped.Recipient.NormalizedNumber
		if number == "" {
			number = skipped.Recipient.RawNumber
		}
		fmt.Fprintf(w, "  skipped row %d %s %s: %s\n", skipped.Recipient.RowIndex, skipped.Recipient.Role, number, skipped.Reason)
	}
}

func recordSuffix(outcome domain.RecipientOutcome) string {
	if outcome.RecordID == 0 {
		return ""
	}
	return fmt.Sprintf(" (record %d)", outcome.RecordID)
}
