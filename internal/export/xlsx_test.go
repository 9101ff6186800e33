package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/leasingborsen/reconcile-cli/internal/model"
)

func TestWriteSessionXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.xlsx")
	listingID := "lst-1"
	appliedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sess := &model.ExtractionSession{
		ID:        "sess-1",
		SellerID:  "seller-1",
		Status:    model.SessionStatusCompleted,
		Counts:    model.SessionCounts{Created: 1, Updated: 1},
		CreatedAt: appliedAt.Add(-time.Hour),
		AppliedAt: &appliedAt,
		AppliedBy: "admin",
	}
	changes := []model.Change{
		{
			ID: "chg-1", ChangeType: model.ChangeTypeCreate,
			Status: model.ChangeStatusApplied, MatchMethod: model.MatchMethodUnmatched,
			Confidence: 0.91,
			ExtractedData: &model.ExtractedVehicle{
				Make: "Toyota", Model: "AYGO X", Variant: "Pulse",
				Transmission: "automatic", MonthlyPrice: 2395,
			},
		},
		{
			ID: "chg-2", ChangeType: model.ChangeTypeUpdate,
			Status: model.ChangeStatusApplied, MatchMethod: model.MatchMethodExact,
			Confidence:        1.0,
			ExistingListingID: &listingID,
			ExtractedData:     &model.ExtractedVehicle{Make: "VW", Model: "Golf", Variant: "Style", MonthlyPrice: 3795},
			Diff: &model.ChangeDiff{
				Fields: []model.FieldChange{{Field: "monthly_price", Old: 3695, New: 3795}},
			},
		},
	}

	require.NoError(t, WriteSessionXLSX(path, sess, changes))

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, file.Sheets, 2)

	summary := file.Sheet["Summary"]
	require.NotNil(t, summary)
	assert.Equal(t, "Session", summary.Rows[0].Cells[0].Value)
	assert.Equal(t, "sess-1", summary.Rows[0].Cells[1].Value)

	sheet := file.Sheet["Changes"]
	require.NotNil(t, sheet)
	require.Len(t, sheet.Rows, 3) // header + 2 changes

	assert.Equal(t, "Change ID", sheet.Rows[0].Cells[0].Value)
	assert.Equal(t, "chg-1", sheet.Rows[1].Cells[0].Value)
	assert.Equal(t, "create", sheet.Rows[1].Cells[1].Value)
	assert.Equal(t, "Toyota", sheet.Rows[1].Cells[5].Value)

	assert.Equal(t, "chg-2", sheet.Rows[2].Cells[0].Value)
	assert.Equal(t, "lst-1", sheet.Rows[2].Cells[10].Value)
	assert.Contains(t, sheet.Rows[2].Cells[11].Value, "monthly_price: 3695 -> 3795")
}

func TestDiffSummaryEmpty(t *testing.T) {
	assert.Empty(t, diffSummary(nil))
	assert.Empty(t, diffSummary(&model.ChangeDiff{}))
}

func TestDiffSummaryOffers(t *testing.T) {
	d := &model.ChangeDiff{
		Offers: &model.OfferDiff{
			Added: []model.Offer{{MonthlyPrice: 3995, PeriodMonths: 24, MileagePerYear: 10000}},
			PriceChanged: []model.OfferChange{{
				Old: model.Offer{MonthlyPrice: 3695, PeriodMonths: 36, MileagePerYear: 15000},
				New: model.Offer{MonthlyPrice: 3795, PeriodMonths: 36, MileagePerYear: 15000},
			}},
		},
	}
	s := diffSummary(d)
	assert.Contains(t, s, "offers added: 1")
	assert.Contains(t, s, "offer 36m/15000km: 3695 -> 3795")
}
