package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leasingborsen/reconcile-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "reconcile.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedListing(t *testing.T, s *SQLiteStore, sellerID string) *model.ExistingListing {
	t.Helper()
	l := &model.ExistingListing{
		SellerID: sellerID,
		Make:     "VW", Model: "Golf", Variant: "Style",
		Transmission: "automatic", FuelType: "petrol",
		Horsepower: 150, MonthlyPrice: 3695,
	}
	require.NoError(t, s.InsertListing(context.Background(), l))
	return l
}

func seedSession(t *testing.T, s *SQLiteStore, sellerID string) *model.ExtractionSession {
	t.Helper()
	sess, err := s.CreateSession(context.Background(), sellerID, model.SessionCounts{Created: 1})
	require.NoError(t, err)
	return sess
}

func pendingChange(sessionID string, ct model.ChangeType, listingID *string) model.Change {
	return model.Change{
		ID:                uuid.New().String(),
		SessionID:         sessionID,
		ChangeType:        ct,
		ExistingListingID: listingID,
		MatchMethod:       model.MatchMethodExact,
		Status:            model.ChangeStatusPending,
		CreatedAt:         time.Now().UTC(),
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "seller-1", model.SessionCounts{Created: 2, Updated: 1, Deleted: 1, Unchanged: 5})
	require.NoError(t, err)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "seller-1", got.SellerID)
	assert.Equal(t, model.SessionStatusPending, got.Status)
	assert.Equal(t, sess.Counts, got.Counts)
	assert.Nil(t, got.AppliedAt)

	appliedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkSessionApplied(ctx, sess.ID, model.SessionStatusCompleted, "reviewer@dealer.dk", appliedAt))

	got, err = s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, got.Status)
	assert.Equal(t, "reviewer@dealer.dk", got.AppliedBy)
	require.NotNil(t, got.AppliedAt)
	assert.True(t, got.AppliedAt.Equal(appliedAt))
}

func TestUpdateSessionStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := seedSession(t, s, "seller-1")

	require.NoError(t, s.UpdateSessionStatus(ctx, sess.ID, model.SessionStatusFailed))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFailed, got.Status)

	err = s.UpdateSessionStatus(ctx, uuid.New().String(), model.SessionStatusFailed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSessionsFiltersBySeller(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedSession(t, s, "seller-a")
	seedSession(t, s, "seller-a")
	seedSession(t, s, "seller-b")

	all, err := s.ListSessions(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onlyA, err := s.ListSessions(ctx, "seller-a", 10)
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)
	for _, sess := range onlyA {
		assert.Equal(t, "seller-a", sess.SellerID)
	}
}

func TestChangeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := seedSession(t, s, "seller-1")
	listing := seedListing(t, s, "seller-1")

	ch := pendingChange(sess.ID, model.ChangeTypeUpdate, &listing.ID)
	ch.Confidence = 0.96
	ch.MatchMethod = model.MatchMethodFuzzy
	ch.ExtractedData = &model.ExtractedVehicle{
		Make: "VW", Model: "Golf", Variant: "Style Plus", MonthlyPrice: 3795,
		Offers: []model.Offer{{MonthlyPrice: 3795, PeriodMonths: 36, MileagePerYear: 15000}},
	}
	ch.Diff = &model.ChangeDiff{
		Fields: []model.FieldChange{{Field: "variant", Old: "Style", New: "Style Plus"}},
	}

	require.NoError(t, s.SaveChanges(ctx, sess.ID, []model.Change{ch}))

	got, err := s.GetChange(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeTypeUpdate, got.ChangeType)
	assert.Equal(t, model.MatchMethodFuzzy, got.MatchMethod)
	assert.Equal(t, 0.96, got.Confidence)
	require.NotNil(t, got.ExistingListingID)
	assert.Equal(t, listing.ID, *got.ExistingListingID)
	require.NotNil(t, got.ExtractedData)
	assert.Equal(t, "Style Plus", got.ExtractedData.Variant)
	require.NotNil(t, got.Diff)
	require.Len(t, got.Diff.Fields, 1)
	assert.Equal(t, "variant", got.Diff.Fields[0].Field)

	listed, err := s.ListChanges(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, ch.ID, listed[0].ID)
}

func TestMarkChangeAppliedOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := seedSession(t, s, "seller-1")

	ch := pendingChange(sess.ID, model.ChangeTypeCreate, nil)
	ch.ExtractedData = &model.ExtractedVehicle{Make: "Kia", Model: "Ceed", Variant: "Active"}
	require.NoError(t, s.SaveChanges(ctx, sess.ID, []model.Change{ch}))

	appliedAt := time.Now().UTC()
	require.NoError(t, s.MarkChangeApplied(ctx, ch.ID, "admin", appliedAt))

	got, err := s.GetChange(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeStatusApplied, got.Status)
	assert.Equal(t, "admin", got.AppliedBy)
	require.NotNil(t, got.AppliedAt)

	// Second apply must be refused, not silently repeated.
	err = s.MarkChangeApplied(ctx, ch.ID, "admin", time.Now().UTC())
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	err = s.MarkChangeApplied(ctx, uuid.New().String(), "admin", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkChangeRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := seedSession(t, s, "seller-1")

	ch := pendingChange(sess.ID, model.ChangeTypeCreate, nil)
	require.NoError(t, s.SaveChanges(ctx, sess.ID, []model.Change{ch}))
	require.NoError(t, s.MarkChangeRejected(ctx, ch.ID))

	got, err := s.GetChange(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeStatusRejected, got.Status)

	// A rejected change is terminal for both transitions.
	assert.ErrorIs(t, s.MarkChangeRejected(ctx, ch.ID), ErrNotFound)
	assert.ErrorIs(t, s.MarkChangeApplied(ctx, ch.ID, "admin", time.Now().UTC()), ErrAlreadyApplied)
}

func TestClearChangeReferencesSpansSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	listing := seedListing(t, s, "seller-1")

	sessA := seedSession(t, s, "seller-1")
	sessB := seedSession(t, s, "seller-1")
	chA := pendingChange(sessA.ID, model.ChangeTypeUpdate, &listing.ID)
	chB := pendingChange(sessB.ID, model.ChangeTypeDelete, &listing.ID)
	require.NoError(t, s.SaveChanges(ctx, sessA.ID, []model.Change{chA}))
	require.NoError(t, s.SaveChanges(ctx, sessB.ID, []model.Change{chB}))

	n, err := s.CountChangeReferences(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cleared, err := s.ClearChangeReferences(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cleared)

	n, err = s.CountChangeReferences(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// With the references gone the listing row can be deleted without
	// tripping the foreign key.
	require.NoError(t, s.DeleteListingRow(ctx, listing.ID))

	got, err := s.GetChange(ctx, chB.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ExistingListingID)
}

func TestListingWithOffersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	listing := seedListing(t, s, "seller-1")

	offers := []model.Offer{
		{MonthlyPrice: 3695, FirstPayment: 4995, PeriodMonths: 36, MileagePerYear: 15000},
		{MonthlyPrice: 3895, FirstPayment: 4995, PeriodMonths: 36, MileagePerYear: 20000},
	}
	require.NoError(t, s.InsertOffers(ctx, listing.ID, offers))

	got, err := s.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Golf", got.Model)
	assert.Equal(t, offers, got.Offers)

	bySeller, err := s.ListingsBySeller(ctx, "seller-1")
	require.NoError(t, err)
	require.Len(t, bySeller, 1)
	assert.Equal(t, offers, bySeller[0].Offers)
}

func TestUpdateListingReplacesOffers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	listing := seedListing(t, s, "seller-1")
	require.NoError(t, s.InsertOffers(ctx, listing.ID, []model.Offer{
		{MonthlyPrice: 3695, PeriodMonths: 36, MileagePerYear: 15000},
	}))

	listing.Variant = "Style Plus"
	listing.MonthlyPrice = 3795
	listing.Offers = []model.Offer{
		{MonthlyPrice: 3795, PeriodMonths: 36, MileagePerYear: 15000},
		{MonthlyPrice: 3995, PeriodMonths: 24, MileagePerYear: 10000},
	}
	require.NoError(t, s.UpdateListing(ctx, listing))

	got, err := s.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Style Plus", got.Variant)
	assert.Equal(t, 3795, got.MonthlyPrice)
	assert.Len(t, got.Offers, 2)

	missing := &model.ExistingListing{ID: uuid.New().String(), Make: "x", Model: "y", Variant: "z"}
	assert.ErrorIs(t, s.UpdateListing(ctx, missing), ErrNotFound)
}

func TestDeleteListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	listing := seedListing(t, s, "seller-1")
	require.NoError(t, s.InsertOffers(ctx, listing.ID, []model.Offer{
		{MonthlyPrice: 3695, PeriodMonths: 36, MileagePerYear: 15000},
	}))

	require.NoError(t, s.DeleteListingOffers(ctx, listing.ID))
	require.NoError(t, s.DeleteListingRow(ctx, listing.ID))

	_, err := s.GetListing(ctx, listing.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteListingRow(ctx, listing.ID), ErrNotFound)
}

func TestSeedAndKnownModels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pairs := [][2]string{
		{"Toyota", "AYGO X"},
		{"VW", "Golf"},
		{"VW", "Golf"}, // duplicate seeds are ignored
	}
	require.NoError(t, s.SeedModels(ctx, pairs))
	require.NoError(t, s.SeedModels(ctx, pairs))

	known, err := s.KnownModels(ctx)
	require.NoError(t, err)
	assert.Len(t, known, 2)
	assert.True(t, known[modelKey("toyota", "aygo x")], "lookup is case-insensitive")
	assert.True(t, known[modelKey("VW", "Golf")])
	assert.False(t, known[modelKey("Xpeng", "G6")])
}
