// Package compare implements order-invariant comparison of offer sets
// and scalar field diffing between an existing listing and an extracted
// vehicle.
package compare

import (
	"sort"

	"github.com/leasingborsen/reconcile-cli/internal/model"
)

// termKey identifies an offer slot within a vehicle: the leasing term.
// Price fields deliberately excluded so a price movement on the same
// term is reported as a change, not as remove+add.
type termKey struct {
	PeriodMonths   int
	MileagePerYear int
}

// CompareOffers compares two offer collections as multisets. Input
// order never affects the result. Returns nil when the collections
// contain the same multiset of (monthly_price, first_payment,
// period_months, mileage_per_year) tuples; otherwise a diff naming
// added, removed and price-changed offers.
func CompareOffers(existing, extracted []model.Offer) *model.OfferDiff {
	exIdx := groupByTerm(existing)
	newIdx := groupByTerm(extracted)

	diff := &model.OfferDiff{}

	for _, key := range sortedKeys(exIdx, newIdx) {
		exOffers := exIdx[key]
		newOffers := newIdx[key]

		// Pair up offers on the same term; surplus on either side is a
		// removal or an addition. Within one term offers are sorted by
		// full tuple so duplicate terms compare deterministically.
		n := len(exOffers)
		if len(newOffers) < n {
			n = len(newOffers)
		}
		for i := 0; i < n; i++ {
			if exOffers[i] != newOffers[i] {
				diff.PriceChanged = append(diff.PriceChanged, model.OfferChange{
					Old: exOffers[i],
					New: newOffers[i],
				})
			}
		}
		diff.Removed = append(diff.Removed, exOffers[n:]...)
		diff.Added = append(diff.Added, newOffers[n:]...)
	}

	if len(diff.Added) == 0 && len(diff.Removed) == 0 && len(diff.PriceChanged) == 0 {
		return nil
	}
	return diff
}

func groupByTerm(offers []model.Offer) map[termKey][]model.Offer {
	idx := make(map[termKey][]model.Offer, len(offers))
	for _, o := range offers {
		key := termKey{PeriodMonths: o.PeriodMonths, MileagePerYear: o.MileagePerYear}
		idx[key] = append(idx[key], o)
	}
	for key := range idx {
		group := idx[key]
		sort.Slice(group, func(i, j int) bool {
			if group[i].MonthlyPrice != group[j].MonthlyPrice {
				return group[i].MonthlyPrice < group[j].MonthlyPrice
			}
			return group[i].FirstPayment < group[j].FirstPayment
		})
	}
	return idx
}

func sortedKeys(a, b map[termKey][]model.Offer) []termKey {
	seen := make(map[termKey]bool, len(a)+len(b))
	keys := make([]termKey, 0, len(a)+len(b))
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PeriodMonths != keys[j].PeriodMonths {
			return keys[i].PeriodMonths < keys[j].PeriodMonths
		}
		return keys[i].MileagePerYear < keys[j].MileagePerYear
	})
	return keys
}
