// Package store persists inventory listings, lease pricing, extraction
// sessions and their change sets, with Postgres and SQLite backends
// behind one interface.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/leasingborsen/reconcile-cli/internal/identity"
	"github.com/leasingborsen/reconcile-cli/internal/model"
)

// Sentinel errors the apply engine distinguishes between. Backends wrap
// them with context; callers match with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyApplied = errors.New("change already applied")
)

// Store defines the persistence interface for the reconciliation
// engine. The apply engine is the only component that calls the
// mutating inventory methods on the reconciliation path.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, sellerID string, counts model.SessionCounts) (*model.ExtractionSession, error)
	GetSession(ctx context.Context, sessionID string) (*model.ExtractionSession, error)
	ListSessions(ctx context.Context, sellerID string, limit int) ([]model.ExtractionSession, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error
	MarkSessionApplied(ctx context.Context, sessionID string, status model.SessionStatus, appliedBy string, appliedAt time.Time) error

	// Changes
	SaveChanges(ctx context.Context, sessionID string, changes []model.Change) error
	GetChange(ctx context.Context, changeID string) (*model.Change, error)
	ListChanges(ctx context.Context, sessionID string) ([]model.Change, error)
	// MarkChangeApplied transitions pending → applied. ErrNotFound if
	// the change does not exist, ErrAlreadyApplied if it already was —
	// there is no double-apply.
	MarkChangeApplied(ctx context.Context, changeID, appliedBy string, appliedAt time.Time) error
	MarkChangeRejected(ctx context.Context, changeID string) error
	// ClearChangeReferences nulls existing_listing_id on every change
	// row referencing the listing, across ALL sessions. Must run before
	// the listing row delete.
	ClearChangeReferences(ctx context.Context, listingID string) (int64, error)
	CountChangeReferences(ctx context.Context, listingID string) (int, error)

	// Inventory
	ListingsBySeller(ctx context.Context, sellerID string) ([]model.ExistingListing, error)
	GetListing(ctx context.Context, listingID string) (*model.ExistingListing, error)
	InsertListing(ctx context.Context, l *model.ExistingListing) error
	InsertOffers(ctx context.Context, listingID string, offers []model.Offer) error
	// UpdateListing writes the scalar fields and replaces the offer set
	// in a single transaction; readers never observe partial writes.
	UpdateListing(ctx context.Context, l *model.ExistingListing) error
	DeleteListingOffers(ctx context.Context, listingID string) error
	DeleteListingRow(ctx context.Context, listingID string) error

	// Reference models backing missing-model detection.
	SeedModels(ctx context.Context, pairs [][2]string) error
	KnownModels(ctx context.Context) (map[string]bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// modelKey is the lookup key for the reference model set; shared by
// both backends so KnownModels output lines up with the classifier.
func modelKey(mk, md string) string {
	return identity.ExactKey(mk, md, "")
}
