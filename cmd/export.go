package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leasingborsen/reconcile-cli/internal/export"
)

var (
	exportSessionID string
	exportOutPath   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session's change set as an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := st.GetSession(ctx, exportSessionID)
		if err != nil {
			return err
		}
		changes, err := st.ListChanges(ctx, sess.ID)
		if err != nil {
			return err
		}

		if err := export.WriteSessionXLSX(exportOutPath, sess, changes); err != nil {
			return err
		}

		zap.L().Info("session exported",
			zap.String("session_id", sess.ID),
			zap.Int("changes", len(changes)),
			zap.String("out", exportOutPath),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSessionID, "session", "", "session id to export (required)")
	exportCmd.Flags().StringVar(&exportOutPath, "out", "session.xlsx", "output file path")
	_ = exportCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(exportCmd)
}
