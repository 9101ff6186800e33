package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leasingborsen/reconcile-cli/internal/classify"
	"github.com/leasingborsen/reconcile-cli/internal/ingest"
	"github.com/leasingborsen/reconcile-cli/internal/match"
	"github.com/leasingborsen/reconcile-cli/internal/model"
	"github.com/leasingborsen/reconcile-cli/internal/store"
)

var (
	reconcileFilePath string
	reconcileSellerID string
)

// reconcileSummary is the stdout payload of one reconcile run.
type reconcileSummary struct {
	SessionID string                  `json:"session_id"`
	SellerID  string                  `json:"seller_id"`
	Counts    model.SessionCounts     `json:"counts"`
	Rejected  []ingest.Rejected       `json:"rejected,omitempty"`
	Errors    []classify.VehicleError `json:"errors,omitempty"`
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match an extraction payload against inventory and stage a change set",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		summary, err := runReconciliation(ctx, st, reconcileFilePath, reconcileSellerID)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func runReconciliation(ctx context.Context, st store.Store, filePath, sellerID string) (*reconcileSummary, error) {
	batch, err := ingest.ReadFile(ctx, filePath)
	if err != nil {
		return nil, err
	}

	listings, err := st.ListingsBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	known, err := st.KnownModels(ctx)
	if err != nil {
		return nil, err
	}
	if len(known) == 0 {
		// No reference catalog seeded; missing-model detection is off.
		known = nil
	}

	matcher := match.New(match.Config{
		SimilarityThreshold: cfg.Matcher.SimilarityThreshold,
		VariantWeight:       cfg.Matcher.VariantWeight,
		AttrWeight:          cfg.Matcher.AttrWeight,
		HorsepowerTolerance: cfg.Matcher.HorsepowerTolerance,
	})
	result := matcher.Match(listings, batch.Vehicles)

	cls := classify.New(known).Classify(result, time.Now().UTC())

	sess, err := st.CreateSession(ctx, sellerID, cls.Counts)
	if err != nil {
		return nil, err
	}
	if err := st.SaveChanges(ctx, sess.ID, cls.Changes); err != nil {
		return nil, err
	}

	zap.L().Info("reconciliation staged",
		zap.String("session_id", sess.ID),
		zap.String("seller_id", sellerID),
		zap.Int("creates", cls.Counts.Created),
		zap.Int("updates", cls.Counts.Updated),
		zap.Int("deletes", cls.Counts.Deleted),
		zap.Int("unchanged", cls.Counts.Unchanged),
	)

	return &reconcileSummary{
		SessionID: sess.ID,
		SellerID:  sellerID,
		Counts:    cls.Counts,
		Rejected:  batch.Rejected,
		Errors:    cls.Errors,
	}, nil
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileFilePath, "file", "", "path to extraction JSON file (required)")
	reconcileCmd.Flags().StringVar(&reconcileSellerID, "seller", "", "seller id to reconcile against (required)")
	_ = reconcileCmd.MarkFlagRequired("file")
	_ = reconcileCmd.MarkFlagRequired("seller")
	rootCmd.AddCommand(reconcileCmd)
}
