// Package classify turns matcher pairings into a persistable change
// set for one extraction session.
package classify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leasingborsen/reconcile-cli/internal/compare"
	"github.com/leasingborsen/reconcile-cli/internal/identity"
	"github.com/leasingborsen/reconcile-cli/internal/match"
	"github.com/leasingborsen/reconcile-cli/internal/model"
)

// VehicleError records one vehicle excluded from the change set. The
// rest of the session proceeds normally.
type VehicleError struct {
	Vehicle *model.ExtractedVehicle `json:"vehicle,omitempty"`
	Error   string                  `json:"error"`
}

// Classification is the assembled change set for one session.
type Classification struct {
	Changes []model.Change
	Counts  model.SessionCounts
	Errors  []VehicleError
}

// Classifier assembles per-vehicle verdicts from pairings and offer
// comparisons. knownModels holds the reference (make, model) pairs the
// catalog can resolve; extracted vehicles outside it become
// missing_model changes flagged for operator attention instead of
// creates.
type Classifier struct {
	knownModels map[string]bool
}

// New creates a Classifier. knownModels keys are identity.ModelKey
// values; a nil map disables missing-model detection (every unmatched
// vehicle classifies as a create).
func New(knownModels map[string]bool) *Classifier {
	return &Classifier{knownModels: knownModels}
}

// ModelKey is the lookup key for the reference model set.
func ModelKey(make, mdl string) string {
	return identity.ExactKey(make, mdl, "")
}

// Classify produces one change per pairing. Matcher row errors carry
// through as vehicle errors. Classification is deterministic: the same
// input yields the same change set (ids aside) on every run.
func (c *Classifier) Classify(res match.Result, now time.Time) Classification {
	out := Classification{}

	for _, re := range res.Errors {
		v := re.Vehicle
		out.Errors = append(out.Errors, VehicleError{Vehicle: &v, Error: re.Reason})
	}

	for _, p := range res.Pairings {
		ch, err := c.classifyPairing(p, now)
		if err != nil {
			out.Errors = append(out.Errors, VehicleError{Vehicle: p.Extracted, Error: err.Error()})
			continue
		}

		// missing_model changes are flagged for the operator, not
		// auto-creatable, so they stay out of the created count.
		switch ch.ChangeType {
		case model.ChangeTypeCreate:
			out.Counts.Created++
		case model.ChangeTypeUpdate:
			out.Counts.Updated++
		case model.ChangeTypeDelete:
			out.Counts.Deleted++
		case model.ChangeTypeUnchanged:
			out.Counts.Unchanged++
		}
		out.Changes = append(out.Changes, ch)
	}

	if len(out.Errors) > 0 {
		zap.L().Warn("classification completed with vehicle errors",
			zap.Int("changes", len(out.Changes)),
			zap.Int("errors", len(out.Errors)),
		)
	}
	return out
}

func (c *Classifier) classifyPairing(p match.Pairing, now time.Time) (model.Change, error) {
	switch {
	case p.Existing != nil && p.Extracted != nil:
		return c.classifyPair(p, now), nil
	case p.Extracted != nil:
		return c.classifyCreate(p, now), nil
	case p.Existing != nil:
		return model.Change{
			ID:                uuid.New().String(),
			ChangeType:        model.ChangeTypeDelete,
			ExistingListingID: &p.Existing.ID,
			Confidence:        p.Confidence,
			MatchMethod:       model.MatchMethodUnmatched,
			Status:            model.ChangeStatusPending,
			CreatedAt:         now,
		}, nil
	default:
		return model.Change{}, fmt.Errorf("pairing with neither side set")
	}
}

func (c *Classifier) classifyPair(p match.Pairing, now time.Time) model.Change {
	diff := &model.ChangeDiff{
		Fields: compare.CompareScalars(p.Existing.Extracted(), *p.Extracted),
		Offers: compare.CompareOffers(p.Existing.Offers, p.Extracted.Offers),
	}

	ch := model.Change{
		ID:                uuid.New().String(),
		ExistingListingID: &p.Existing.ID,
		ExtractedData:     p.Extracted,
		Confidence:        p.Confidence,
		MatchMethod:       p.Method,
		Status:            model.ChangeStatusPending,
		CreatedAt:         now,
	}
	if diff.Empty() {
		ch.ChangeType = model.ChangeTypeUnchanged
		return ch
	}
	ch.ChangeType = model.ChangeTypeUpdate
	ch.Diff = diff
	return ch
}

func (c *Classifier) classifyCreate(p match.Pairing, now time.Time) model.Change {
	ch := model.Change{
		ID:            uuid.New().String(),
		ExtractedData: p.Extracted,
		MatchMethod:   model.MatchMethodUnmatched,
		Status:        model.ChangeStatusPending,
		CreatedAt:     now,
		// Creates carry the extractor's own confidence when present.
		Confidence: p.Extracted.Confidence,
	}

	if c.knownModels != nil && !c.knownModels[ModelKey(p.Extracted.Make, p.Extracted.Model)] {
		ch.ChangeType = model.ChangeTypeMissingModel
		ch.Error = fmt.Sprintf("no catalog model for %s %s", p.Extracted.Make, p.Extracted.Model)
		return ch
	}
	ch.ChangeType = model.ChangeTypeCreate
	return ch
}
