package apply

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leasingborsen/reconcile-cli/internal/model"
	"github.com/leasingborsen/reconcile-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	store  store.Store
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "apply.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return &fixture{store: s, engine: New(s)}
}

func (f *fixture) seedListing(t *testing.T, sellerID, variant string) *model.ExistingListing {
	t.Helper()
	l := &model.ExistingListing{
		SellerID: sellerID,
		Make:     "VW", Model: "Golf", Variant: variant,
		Transmission: "automatic", MonthlyPrice: 3695,
	}
	require.NoError(t, f.store.InsertListing(context.Background(), l))
	require.NoError(t, f.store.InsertOffers(context.Background(), l.ID, []model.Offer{
		{MonthlyPrice: 3695, PeriodMonths: 36, MileagePerYear: 15000},
	}))
	return l
}

func (f *fixture) seedSession(t *testing.T, sellerID string, changes []model.Change) *model.ExtractionSession {
	t.Helper()
	sess, err := f.store.CreateSession(context.Background(), sellerID, model.SessionCounts{})
	require.NoError(t, err)
	for i := range changes {
		changes[i].ID = uuid.New().String()
		changes[i].SessionID = sess.ID
		changes[i].Status = model.ChangeStatusPending
		changes[i].CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
	}
	require.NoError(t, f.store.SaveChanges(context.Background(), sess.ID, changes))
	return sess
}

func (f *fixture) changeIDs(t *testing.T, sessionID string) []string {
	t.Helper()
	changes, err := f.store.ListChanges(context.Background(), sessionID)
	require.NoError(t, err)
	ids := make([]string, len(changes))
	for i, ch := range changes {
		ids[i] = ch.ID
	}
	return ids
}

func extractedGolf(variant string, price int) *model.ExtractedVehicle {
	return &model.ExtractedVehicle{
		Make: "VW", Model: "Golf", Variant: variant,
		Transmission: "automatic", MonthlyPrice: price,
		Offers: []model.Offer{{MonthlyPrice: price, PeriodMonths: 36, MileagePerYear: 15000}},
	}
}

func TestApplyFullSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	toUpdate := f.seedListing(t, "seller-1", "Style")
	toDelete := f.seedListing(t, "seller-1", "Life")

	sess := f.seedSession(t, "seller-1", []model.Change{
		{ChangeType: model.ChangeTypeCreate, ExtractedData: extractedGolf("R-Line", 4595), MatchMethod: model.MatchMethodUnmatched},
		{ChangeType: model.ChangeTypeUpdate, ExistingListingID: &toUpdate.ID, ExtractedData: extractedGolf("Style", 3795), MatchMethod: model.MatchMethodExact},
		{ChangeType: model.ChangeTypeDelete, ExistingListingID: &toDelete.ID, MatchMethod: model.MatchMethodUnmatched},
		{ChangeType: model.ChangeTypeUnchanged, ExistingListingID: &toUpdate.ID, MatchMethod: model.MatchMethodExact},
	})

	res, err := f.engine.Apply(ctx, Request{SessionID: sess.ID, SelectedChangeIDs: f.changeIDs(t, sess.ID), AppliedBy: "admin"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.AppliedCreates)
	assert.Equal(t, 1, res.AppliedUpdates)
	assert.Equal(t, 1, res.AppliedDeletes)
	assert.Equal(t, 0, res.DiscardedCount)
	assert.Equal(t, 4, res.TotalProcessed)
	assert.Equal(t, 0, res.ErrorCount)

	// Create landed with its offers.
	listings, err := f.store.ListingsBySeller(ctx, "seller-1")
	require.NoError(t, err)
	require.Len(t, listings, 2)
	variants := []string{listings[0].Variant, listings[1].Variant}
	assert.ElementsMatch(t, []string{"Style", "R-Line"}, variants)

	// Update overwrote the price.
	updated, err := f.store.GetListing(ctx, toUpdate.ID)
	require.NoError(t, err)
	assert.Equal(t, 3795, updated.MonthlyPrice)

	// Delete removed listing and offers.
	_, err = f.store.GetListing(ctx, toDelete.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, got.Status)
	assert.Equal(t, "admin", got.AppliedBy)

	changes, err := f.store.ListChanges(ctx, sess.ID)
	require.NoError(t, err)
	for _, ch := range changes {
		assert.Equal(t, model.ChangeStatusApplied, ch.Status)
	}
}

func TestApplySubsetDiscardsRest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.seedSession(t, "seller-1", []model.Change{
		{ChangeType: model.ChangeTypeCreate, ExtractedData: extractedGolf("R-Line", 4595), MatchMethod: model.MatchMethodUnmatched},
		{ChangeType: model.ChangeTypeCreate, ExtractedData: extractedGolf("GTI", 5295), MatchMethod: model.MatchMethodUnmatched},
	})
	changes, err := f.store.ListChanges(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	res, err := f.engine.Apply(ctx, Request{
		SessionID:         sess.ID,
		SelectedChangeIDs: []string{changes[0].ID},
		AppliedBy:         "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.AppliedCreates)
	assert.Equal(t, 1, res.DiscardedCount)
	assert.Equal(t, 1, res.TotalProcessed)

	listings, err := f.store.ListingsBySeller(ctx, "seller-1")
	require.NoError(t, err)
	assert.Len(t, listings, 1)

	after, err := f.store.GetChange(ctx, changes[1].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeStatusRejected, after.Status)
}

func TestApplyRejectsMalformedIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.seedSession(t, "seller-1", []model.Change{
		{ChangeType: model.ChangeTypeCreate, ExtractedData: extractedGolf("R-Line", 4595), MatchMethod: model.MatchMethodUnmatched},
	})

	_, err := f.engine.Apply(ctx, Request{
		SessionID:         sess.ID,
		SelectedChangeIDs: []string{"not-a-uuid"},
		AppliedBy:         "admin",
	})
	require.ErrorIs(t, err, ErrInvalidRequest)

	// Fail-fast: nothing was written or discarded.
	changes, err := f.store.ListChanges(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeStatusPending, changes[0].Status)
	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPending, got.Status)
}

func TestApplyRejectsEmptySelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.seedSession(t, "seller-1", []model.Change{
		{ChangeType: model.ChangeTypeCreate, ExtractedData: extractedGolf("R-Line", 4595), MatchMethod: model.MatchMethodUnmatched},
	})

	_, err := f.engine.Apply(ctx, Request{SessionID: sess.ID, AppliedBy: "admin"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	changes, err := f.store.ListChanges(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeStatusPending, changes[0].Status, "nothing is applied or discarded")
}

func TestApplyUnknownChangeIDRecordedPerChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.seedSession(t, "seller-1", []model.Change{
		{ChangeType: model.ChangeTypeCreate, ExtractedData: extractedGolf("R-Line", 4595), MatchMethod: model.MatchMethodUnmatched},
	})
	ids := f.changeIDs(t, sess.ID)
	ghost := uuid.New().String()

	res, err := f.engine.Apply(ctx, Request{
		SessionID:         sess.ID,
		SelectedChangeIDs: []string{ghost, ids[0]},
		AppliedBy:         "admin",
	})
	require.NoError(t, err, "an unresolvable change id must not abort the batch")

	assert.Equal(t, 1, res.AppliedCreates, "the resolvable change still applies")
	assert.Equal(t, 2, res.TotalProcessed)
	assert.Equal(t, 1, res.ErrorCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ghost, res.Errors[0].ChangeID)
	assert.Contains(t, res.Errors[0].Error, "not found")

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPartiallyApplied, got.Status)
}

func TestApplySecondRunReportsAlreadyApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.seedSession(t, "seller-1", []model.Change{
		{ChangeType: model.ChangeTypeCreate, ExtractedData: extractedGolf("R-Line", 4595), MatchMethod: model.MatchMethodUnmatched},
	})
	ids := f.changeIDs(t, sess.ID)

	first, err := f.engine.Apply(ctx, Request{SessionID: sess.ID, SelectedChangeIDs: ids, AppliedBy: "admin"})
	require.NoError(t, err)
	require.Equal(t, 1, first.AppliedCreates)

	second, err := f.engine.Apply(ctx, Request{SessionID: sess.ID, SelectedChangeIDs: ids, AppliedBy: "admin"})
	require.NoError(t, err, "double-apply is a per-change error, not a request failure")
	assert.Equal(t, 0, second.AppliedCreates)
	assert.Equal(t, 1, second.ErrorCount)
	require.Len(t, second.Errors, 1)
	assert.Equal(t, ids[0], second.Errors[0].ChangeID)
	assert.Contains(t, second.Errors[0].Error, "applied")

	listings, err := f.store.ListingsBySeller(ctx, "seller-1")
	require.NoError(t, err)
	assert.Len(t, listings, 1, "repeat apply must not duplicate the create")

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, got.Status, "a no-op rerun leaves the recorded outcome alone")
}

func TestApplyDeleteClearsCrossSessionReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.seedListing(t, "seller-1", "Style")

	// An older session still references the listing.
	old := f.seedSession(t, "seller-1", []model.Change{
		{ChangeType: model.ChangeTypeUpdate, ExistingListingID: &listing.ID, ExtractedData: extractedGolf("Style", 3750), MatchMethod: model.MatchMethodExact},
	})

	sess := f.seedSession(t, "seller-1", []model.Change{
		{ChangeType: model.ChangeTypeDelete, ExistingListingID: &listing.ID, MatchMethod: model.MatchMethodUnmatched},
	})

	res, err := f.engine.Apply(ctx, Request{SessionID: sess.ID, SelectedChangeIDs: f.changeIDs(t, sess.ID), AppliedBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.AppliedDeletes)
	assert.Equal(t, 0, res.ErrorCount)

	oldChanges, err := f.store.ListChanges(ctx, old.ID)
	require.NoError(t, err)
	require.Len(t, oldChanges, 1)
	assert.Nil(t, oldChanges[0].ExistingListingID, "stale reference must be cleared, not left dangling")

	n, err := f.store.CountChangeReferences(ctx, listing.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "no session may still reference the deleted listing")
}

func TestApplyMissingModelFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.seedSession(t, "seller-1", []model.Change{
		{ChangeType: model.ChangeTypeMissingModel, ExtractedData: extractedGolf("R-Line", 4595), MatchMethod: model.MatchMethodUnmatched},
		{ChangeType: model.ChangeTypeCreate, ExtractedData: extractedGolf("GTI", 5295), MatchMethod: model.MatchMethodUnmatched},
	})

	res, err := f.engine.Apply(ctx, Request{SessionID: sess.ID, SelectedChangeIDs: f.changeIDs(t, sess.ID), AppliedBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Equal(t, 1, res.AppliedCreates)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, string(model.ChangeTypeMissingModel), res.Errors[0].ChangeType)

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPartiallyApplied, got.Status)
}

// failingOfferStore breaks the offer insert so the create compensation
// path can be observed.
type failingOfferStore struct {
	store.Store
}

func (f *failingOfferStore) InsertOffers(ctx context.Context, listingID string, offers []model.Offer) error {
	return eris.New("disk full")
}

func TestApplyCreateCompensatesOnOfferFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broken := New(&failingOfferStore{Store: f.store})

	sess := f.seedSession(t, "seller-1", []model.Change{
		{ChangeType: model.ChangeTypeCreate, ExtractedData: extractedGolf("R-Line", 4595), MatchMethod: model.MatchMethodUnmatched},
	})

	res, err := broken.Apply(ctx, Request{SessionID: sess.ID, SelectedChangeIDs: f.changeIDs(t, sess.ID), AppliedBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.AppliedCreates)
	assert.Equal(t, 1, res.ErrorCount)

	// The half-created listing was rolled back.
	listings, err := f.store.ListingsBySeller(ctx, "seller-1")
	require.NoError(t, err)
	assert.Empty(t, listings)

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFailed, got.Status)
}

func TestApplyUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Apply(context.Background(), Request{
		SessionID:         uuid.New().String(),
		SelectedChangeIDs: []string{uuid.New().String()},
		AppliedBy:         "admin",
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
