package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leasingborsen/reconcile-cli/internal/model"
)

var (
	sessionsSellerID string
	sessionsLimit    int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "List extraction sessions, or show one session with its changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) == 1 {
			sess, err := st.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			changes, err := st.ListChanges(ctx, sess.ID)
			if err != nil {
				return err
			}
			return printJSON(struct {
				Session *model.ExtractionSession `json:"session"`
				Changes []model.Change           `json:"changes"`
			}{sess, changes})
		}

		sessions, err := st.ListSessions(ctx, sessionsSellerID, sessionsLimit)
		if err != nil {
			return err
		}
		return printJSON(sessions)
	},
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsSellerID, "seller", "", "filter sessions by seller id")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
	rootCmd.AddCommand(sessionsCmd)
}
