// Package apply executes reviewed change sets against the inventory
// store. Changes are applied one at a time; a failing change is
// recorded and skipped so the rest of the selection still lands.
package apply

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leasingborsen/reconcile-cli/internal/model"
	"github.com/leasingborsen/reconcile-cli/internal/store"
)

// ErrInvalidRequest marks request validation failures so transports
// can map them to a client error.
var ErrInvalidRequest = errors.New("invalid apply request")

// Request selects the changes to apply for one session.
// SelectedChangeIDs must name at least one change; pending changes left
// out of the selection are discarded.
type Request struct {
	SessionID         string   `json:"session_id"`
	SelectedChangeIDs []string `json:"selected_change_ids,omitempty"`
	AppliedBy         string   `json:"applied_by"`
}

// ChangeError records one change that could not be applied.
type ChangeError struct {
	ChangeID   string `json:"change_id"`
	ChangeType string `json:"change_type"`
	Error      string `json:"error"`
	ListingID  string `json:"listing_id,omitempty"`
}

// Result summarizes one apply run.
type Result struct {
	SessionID      string        `json:"session_id"`
	AppliedCreates int           `json:"applied_creates"`
	AppliedUpdates int           `json:"applied_updates"`
	AppliedDeletes int           `json:"applied_deletes"`
	DiscardedCount int           `json:"discarded_count"`
	TotalProcessed int           `json:"total_processed"`
	ErrorCount     int           `json:"error_count"`
	Errors         []ChangeError `json:"errors,omitempty"`
	AppliedBy      string        `json:"applied_by"`
	AppliedAt      time.Time     `json:"applied_at"`
}

// Engine applies change sets. It owns no state beyond the store handle;
// one engine serves any number of sessions.
type Engine struct {
	store store.Store
}

func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// Apply validates the request, applies the selected changes in order,
// and discards the session's remaining pending changes. Selection
// validation is fail-fast: a malformed change id rejects the whole
// request before anything is written. Per-change failures do not: the
// failing change is recorded and the loop moves on.
func (e *Engine) Apply(ctx context.Context, req Request) (*Result, error) {
	if req.AppliedBy == "" {
		return nil, eris.Wrap(ErrInvalidRequest, "applied_by is required")
	}
	if _, err := uuid.Parse(req.SessionID); err != nil {
		return nil, eris.Wrapf(ErrInvalidRequest, "session id %q is not a uuid", req.SessionID)
	}
	if len(req.SelectedChangeIDs) == 0 {
		return nil, eris.Wrap(ErrInvalidRequest, "selected_change_ids must name at least one change")
	}
	for _, id := range req.SelectedChangeIDs {
		if _, err := uuid.Parse(id); err != nil {
			return nil, eris.Wrapf(ErrInvalidRequest, "change id %q is not a uuid", id)
		}
	}

	sess, err := e.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	all, err := e.store.ListChanges(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	selected, missing := selectChanges(all, req.SelectedChangeIDs)

	res := &Result{
		SessionID: req.SessionID,
		AppliedBy: req.AppliedBy,
		AppliedAt: time.Now().UTC(),
	}
	log := zap.L().With(zap.String("session_id", req.SessionID))

	// Selected ids that resolve to no change in the session are
	// per-change errors, not request failures: the rest of the
	// selection still applies.
	for _, id := range missing {
		res.TotalProcessed++
		res.ErrorCount++
		res.Errors = append(res.Errors, ChangeError{ChangeID: id, Error: "change not found in session"})
		log.Warn("selected change not found", zap.String("change_id", id))
	}

	inSelection := make(map[string]bool, len(selected))
	for _, ch := range selected {
		inSelection[ch.ID] = true
		e.applyOne(ctx, sess, ch, res, log)
	}

	// Pending changes left out of the selection are discarded: the
	// operator reviewed them and chose not to take them.
	for _, ch := range all {
		if inSelection[ch.ID] || ch.Status != model.ChangeStatusPending {
			continue
		}
		if err := e.store.MarkChangeRejected(ctx, ch.ID); err != nil {
			log.Warn("failed to discard unselected change", zap.String("change_id", ch.ID), zap.Error(err))
			continue
		}
		res.DiscardedCount++
	}

	// A run that applied nothing to an already-settled session (every
	// selected change failed, e.g. all applied before) leaves the
	// recorded outcome alone; otherwise the batch outcome is recorded.
	status := sessionOutcome(res)
	if res.TotalProcessed > res.ErrorCount || sess.Status == model.SessionStatusPending {
		if err := e.store.MarkSessionApplied(ctx, req.SessionID, status, req.AppliedBy, res.AppliedAt); err != nil {
			return nil, err
		}
	}

	log.Info("apply run finished",
		zap.String("status", string(status)),
		zap.Int("creates", res.AppliedCreates),
		zap.Int("updates", res.AppliedUpdates),
		zap.Int("deletes", res.AppliedDeletes),
		zap.Int("discarded", res.DiscardedCount),
		zap.Int("errors", res.ErrorCount),
	)
	return res, nil
}

// selectChanges resolves the selected ids against the session's change
// set. Ids resolving to nothing come back in missing: resolution
// failure is a per-change error, never a request failure.
func selectChanges(all []model.Change, ids []string) (selected []model.Change, missing []string) {
	byID := make(map[string]model.Change, len(all))
	for _, ch := range all {
		byID[ch.ID] = ch
	}
	for _, id := range ids {
		ch, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		selected = append(selected, ch)
	}
	return selected, missing
}

// applyOne applies a single change and records the outcome on res.
// Errors are contained here: nothing propagates to the caller.
func (e *Engine) applyOne(ctx context.Context, sess *model.ExtractionSession, ch model.Change, res *Result, log *zap.Logger) {
	res.TotalProcessed++

	fail := func(err error) {
		res.ErrorCount++
		ce := ChangeError{ChangeID: ch.ID, ChangeType: string(ch.ChangeType), Error: err.Error()}
		if ch.ExistingListingID != nil {
			ce.ListingID = *ch.ExistingListingID
		}
		res.Errors = append(res.Errors, ce)
		log.Warn("change failed to apply",
			zap.String("change_id", ch.ID),
			zap.String("change_type", string(ch.ChangeType)),
			zap.Error(err),
		)
	}

	if ch.Status != model.ChangeStatusPending {
		fail(eris.Wrapf(store.ErrAlreadyApplied, "change is %s", ch.Status))
		return
	}

	var err error
	switch ch.ChangeType {
	case model.ChangeTypeCreate:
		err = e.applyCreate(ctx, sess.SellerID, ch)
	case model.ChangeTypeUpdate:
		err = e.applyUpdate(ctx, ch)
	case model.ChangeTypeDelete:
		err = e.applyDelete(ctx, ch)
	case model.ChangeTypeUnchanged:
		// Nothing to write; marking the change applied below is the
		// whole effect.
	case model.ChangeTypeMissingModel:
		err = eris.Errorf("missing reference model; seed %q before applying", missingModelName(ch))
	default:
		err = eris.Errorf("unknown change type %q", ch.ChangeType)
	}
	if err != nil {
		fail(err)
		return
	}

	if err := e.store.MarkChangeApplied(ctx, ch.ID, res.AppliedBy, res.AppliedAt); err != nil {
		fail(err)
		return
	}

	switch ch.ChangeType {
	case model.ChangeTypeCreate:
		res.AppliedCreates++
	case model.ChangeTypeUpdate:
		res.AppliedUpdates++
	case model.ChangeTypeDelete:
		res.AppliedDeletes++
	}
}

// applyCreate inserts the listing row and its offers. The two writes
// are separate statements, so a failed offer insert deletes the listing
// again rather than leaving a half-created vehicle behind.
func (e *Engine) applyCreate(ctx context.Context, sellerID string, ch model.Change) error {
	if ch.ExtractedData == nil {
		return eris.New("create change has no extracted data")
	}
	v := ch.ExtractedData

	listing := &model.ExistingListing{
		SellerID:     sellerID,
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
	if err := e.store.InsertListing(ctx, listing); err != nil {
		return err
	}

	if err := e.store.InsertOffers(ctx, listing.ID, v.Offers); err != nil {
		if delErr := e.store.DeleteListingRow(ctx, listing.ID); delErr != nil {
			zap.L().Error("failed to undo listing insert after offer failure",
				zap.String("listing_id", listing.ID), zap.Error(delErr))
		}
		return eris.Wrapf(err, "insert offers for new listing %s", listing.ID)
	}
	return nil
}

// applyUpdate overlays the extracted fields onto the current listing
// and writes the result in one transaction. Empty extracted fields mean
// "not in the document" and leave the stored value alone.
func (e *Engine) applyUpdate(ctx context.Context, ch model.Change) error {
	if ch.ExistingListingID == nil {
		return eris.New("update change has no listing reference")
	}
	if ch.ExtractedData == nil {
		return eris.New("update change has no extracted data")
	}

	listing, err := e.store.GetListing(ctx, *ch.ExistingListingID)
	if err != nil {
		return err
	}
	overlay(listing, ch.ExtractedData)
	return e.store.UpdateListing(ctx, listing)
}

// applyDelete removes a listing. Change rows in other sessions may
// still point at it, so their references are cleared first, then the
// offers, then the row itself.
func (e *Engine) applyDelete(ctx context.Context, ch model.Change) error {
	if ch.ExistingListingID == nil {
		return eris.New("delete change has no listing reference")
	}
	listingID := *ch.ExistingListingID

	cleared, err := e.store.ClearChangeReferences(ctx, listingID)
	if err != nil {
		return err
	}
	if cleared > 0 {
		zap.L().Debug("cleared change references before delete",
			zap.String("listing_id", listingID), zap.Int64("cleared", cleared))
	}
	if err := e.store.DeleteListingOffers(ctx, listingID); err != nil {
		return err
	}
	if err := e.store.DeleteListingRow(ctx, listingID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Already gone, e.g. deleted by an earlier change in the
			// same run. Treat as done.
			return nil
		}
		return err
	}
	return nil
}

func overlay(l *model.ExistingListing, v *model.ExtractedVehicle) {
	l.Make = v.Make
	l.Model = v.Model
	l.Variant = v.Variant
	if v.Transmission != "" {
		l.Transmission = v.Transmission
	}
	if v.FuelType != "" {
		l.FuelType = v.FuelType
	}
	if v.BodyType != "" {
		l.BodyType = v.BodyType
	}
	if v.Horsepower != 0 {
		l.Horsepower = v.Horsepower
	}
	if v.Year != 0 {
		l.Year = v.Year
	}
	if v.WLTPRangeKM != 0 {
		l.WLTPRangeKM = v.WLTPRangeKM
	}
	if v.CO2Emission != 0 {
		l.CO2Emission = v.CO2Emission
	}
	if v.MonthlyPrice != 0 {
		l.MonthlyPrice = v.MonthlyPrice
	}
	if len(v.Offers) > 0 {
		l.Offers = v.Offers
	}
}

func missingModelName(ch model.Change) string {
	if ch.ExtractedData == nil {
		return "unknown"
	}
	return ch.ExtractedData.Make + " " + ch.ExtractedData.Model
}

// sessionOutcome maps the run's error profile onto a session status.
func sessionOutcome(res *Result) model.SessionStatus {
	switch {
	case res.ErrorCount == 0:
		return model.SessionStatusCompleted
	case res.ErrorCount < res.TotalProcessed:
		return model.SessionStatusPartiallyApplied
	default:
		return model.SessionStatusFailed
	}
}
