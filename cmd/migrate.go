package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateModelsPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema and optionally seed reference models",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		zap.L().Info("schema migrated", zap.String("driver", cfg.Store.Driver))

		if migrateModelsPath == "" {
			return nil
		}

		raw, err := os.ReadFile(migrateModelsPath)
		if err != nil {
			return eris.Wrapf(err, "read models file %s", migrateModelsPath)
		}
		var entries []struct {
			Make  string `json:"make"`
			Model string `json:"model"`
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			return eris.Wrapf(err, "parse models file %s", migrateModelsPath)
		}
		pairs := make([][2]string, 0, len(entries))
		for _, e := range entries {
			if e.Make == "" || e.Model == "" {
				return eris.Errorf("models file %s: entries need both make and model", migrateModelsPath)
			}
			pairs = append(pairs, [2]string{e.Make, e.Model})
		}
		if err := st.SeedModels(ctx, pairs); err != nil {
			return err
		}
		zap.L().Info("reference models seeded", zap.Int("count", len(pairs)))
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateModelsPath, "models", "", "path to JSON file of reference models to seed")
	rootCmd.AddCommand(migrateCmd)
}
