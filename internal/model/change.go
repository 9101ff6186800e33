package model

import "time"

// ChangeType classifies the verdict for one vehicle.
type ChangeType string

const (
	ChangeTypeCreate       ChangeType = "create"
	ChangeTypeUpdate       ChangeType = "update"
	ChangeTypeDelete       ChangeType = "delete"
	ChangeTypeUnchanged    ChangeType = "unchanged"
	ChangeTypeMissingModel ChangeType = "missing_model"
)

// ChangeStatus tracks the review/apply lifecycle of one change.
type ChangeStatus string

const (
	ChangeStatusPending  ChangeStatus = "pending"
	ChangeStatusApplied  ChangeStatus = "applied"
	ChangeStatusRejected ChangeStatus = "rejected"
)

// MatchMethod records how a pairing was established.
type MatchMethod string

const (
	MatchMethodExact     MatchMethod = "exact"
	MatchMethodFuzzy     MatchMethod = "fuzzy"
	MatchMethodUnmatched MatchMethod = "unmatched"
)

// FieldChange is one scalar field difference between the existing
// listing and the extracted vehicle.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// OfferDiff describes how two offer sets differ, keyed by
// (period_months, mileage_per_year).
type OfferDiff struct {
	Added        []Offer       `json:"added,omitempty"`
	Removed      []Offer       `json:"removed,omitempty"`
	PriceChanged []OfferChange `json:"price_changed,omitempty"`
}

// OfferChange is a price movement on an offer that exists on both sides.
type OfferChange struct {
	Old Offer `json:"old"`
	New Offer `json:"new"`
}

// ChangeDiff is the field-level diff attached to an update change.
// Nil on every other change type.
type ChangeDiff struct {
	Fields []FieldChange `json:"fields,omitempty"`
	Offers *OfferDiff    `json:"offers,omitempty"`
}

// Empty reports whether the diff contains no differences.
func (d *ChangeDiff) Empty() bool {
	if d == nil {
		return true
	}
	return len(d.Fields) == 0 && (d.Offers == nil ||
		(len(d.Offers.Added) == 0 && len(d.Offers.Removed) == 0 && len(d.Offers.PriceChanged) == 0))
}

// Change is one proposed create/update/delete/unchanged/missing_model
// verdict for a vehicle, persisted for operator review.
//
// Invariant: update and delete changes reference a valid existing
// listing id at creation time; create changes never do. A change is
// never mutated after being marked applied.
type Change struct {
	ID                string            `json:"id"`
	SessionID         string            `json:"session_id"`
	ChangeType        ChangeType        `json:"change_type"`
	ExistingListingID *string           `json:"existing_listing_id,omitempty"`
	ExtractedData     *ExtractedVehicle `json:"extracted_data,omitempty"`
	Diff              *ChangeDiff       `json:"diff,omitempty"`
	Confidence        float64           `json:"confidence"`
	MatchMethod       MatchMethod       `json:"match_method"`
	Status            ChangeStatus      `json:"status"`
	Error             string            `json:"error,omitempty"`
	AppliedAt         *time.Time        `json:"applied_at,omitempty"`
	AppliedBy         string            `json:"applied_by,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// SessionStatus tracks the outcome of one extraction session.
type SessionStatus string

const (
	SessionStatusPending          SessionStatus = "pending"
	SessionStatusCompleted        SessionStatus = "completed"
	SessionStatusPartiallyApplied SessionStatus = "partially_applied"
	SessionStatusFailed           SessionStatus = "failed"
)

// SessionCounts summarizes a session's change set by verdict.
type SessionCounts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// ExtractionSession groups the changes produced by one document upload.
type ExtractionSession struct {
	ID        string        `json:"id"`
	SellerID  string        `json:"seller_id"`
	Status    SessionStatus `json:"status"`
	Counts    SessionCounts `json:"counts"`
	CreatedAt time.Time     `json:"created_at"`
	AppliedAt *time.Time    `json:"applied_at,omitempty"`
	AppliedBy string        `json:"applied_by,omitempty"`
}
