package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leasingborsen/reconcile-cli/internal/ingest"
	"github.com/leasingborsen/reconcile-cli/internal/model"
)

var (
	importFilePath string
	importSellerID string
)

// import loads an extraction payload straight into inventory without a
// review pass. Meant for first-time onboarding of a seller; day-to-day
// updates go through reconcile + apply.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import extracted vehicles directly as inventory listings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		batch, err := ingest.ReadFile(ctx, importFilePath)
		if err != nil {
			return err
		}

		inserted := 0
		for _, v := range batch.Vehicles {
			listing := &model.ExistingListing{
				SellerID:     importSellerID,
				Make:         v.Make,
				Model:        v.Model,
				Variant:      v.Variant,
				Transmission: v.Transmission,
				FuelType:     v.FuelType,
				BodyType:     v.BodyType,
				Horsepower:   v.Horsepower,
				Year:         v.Year,
				WLTPRangeKM:  v.WLTPRangeKM,
				CO2Emission:  v.CO2Emission,
				MonthlyPrice: v.MonthlyPrice,
			}
			if err := st.InsertListing(ctx, listing); err != nil {
				return err
			}
			if err := st.InsertOffers(ctx, listing.ID, v.Offers); err != nil {
				return err
			}
			inserted++
		}

		zap.L().Info("import complete",
			zap.Int("inserted", inserted),
			zap.Int("rejected", len(batch.Rejected)),
			zap.String("seller_id", importSellerID),
			zap.String("file", importFilePath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to extraction JSON file (required)")
	importCmd.Flags().StringVar(&importSellerID, "seller", "", "seller id to import under (required)")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("seller")
	rootCmd.AddCommand(importCmd)
}
