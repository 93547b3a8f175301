package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	sendNumbers string
	sendMessage string

	previewType string
	previewRows string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one message to a typed list of numbers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		result, err := app.orchestrator.ManualSend(ctx, sendNumbers, sendMessage)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), result)
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render result messages for a rows file without sending",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		dataset, err := app.uploader.Upload(previewRows, "")
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		rows, err := app.client.Preview(ctx, previewType, dataset.Rows())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the SMS gateway balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		balance, err := app.client.Balance(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), balance)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendNumbers, "numbers", "", "numbers separated by comma, semicolon or newline")
	sendCmd.Flags().StringVar(&sendMessage, "message", "", "message text")
	_ = sendCmd.MarkFlagRequired("numbers")
	_ = sendCmd.MarkFlagRequired("message")

	previewCmd.Flags().StringVar(&previewType, "type", "varsity", "exam type: varsity or medical")
	previewCmd.Flags().StringVar(&previewRows, "rows", "", "rows file (.xlsx or .json)")
	_ = previewCmd.MarkFlagRequired("rows")

	rootCmd.AddCommand(sendCmd, previewCmd, balanceCmd)
}
