package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leasingborsen/reconcile-cli/internal/apply"
)

var (
	applySessionID string
	applyChangeIDs []string
	applyBy        string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a session's reviewed changes to inventory",
	Long:  "Applies the selected changes and discards the session's remaining pending ones.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := apply.New(st).Apply(ctx, apply.Request{
			SessionID:         applySessionID,
			SelectedChangeIDs: applyChangeIDs,
			AppliedBy:         applyBy,
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVar(&applySessionID, "session", "", "session id to apply (required)")
	applyCmd.Flags().StringSliceVar(&applyChangeIDs, "changes", nil, "change ids to apply (required)")
	applyCmd.Flags().StringVar(&applyBy, "by", "", "reviewer identity recorded on applied changes (required)")
	_ = applyCmd.MarkFlagRequired("session")
	_ = applyCmd.MarkFlagRequired("changes")
	_ = applyCmd.MarkFlagRequired("by")
	rootCmd.AddCommand(applyCmd)
}
