package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "analyze <purchase-id>",
		Short: "Run return, price-drop and recurrence analysis for one purchase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) error {
				out := app.Orchestrator.AnalyzePurchase(ctx, args[0], userID)
				if err := printJSON(cmd, out); err != nil {
					return err
				}
				if !out.Success {
					return fmt.Errorf("analysis incomplete: %d task(s) failed", len(out.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "owner of the purchase")
	return cmd
}
