package compare

import "github.com/leasingborsen/reconcile-cli/internal/model"

// CompareScalars diffs the scalar attributes of two vehicle views; the
// existing side comes from ExistingListing.Extracted so both sides read
// uniformly. Only fields the extractor actually produced are compared:
// a zero/empty extracted value means "not in the document", not
// "changed to nothing".
func CompareScalars(existing, extracted model.ExtractedVehicle) []model.FieldChange {
	var changes []model.FieldChange

	addStr := func(field, old, new string) {
		if new != "" && old != new {
			changes = append(changes, model.FieldChange{Field: field, Old: old, New: new})
		}
	}
	addInt := func(field string, old, new int) {
		if new != 0 && old != new {
			changes = append(changes, model.FieldChange{Field: field, Old: old, New: new})
		}
	}

	addStr("variant", existing.Variant, extracted.Variant)
	addStr("transmission", existing.Transmission, extracted.Transmission)
	addStr("fuel_type", existing.FuelType, extracted.FuelType)
	addStr("body_type", existing.BodyType, extracted.BodyType)
	addInt("horsepower", existing.Horsepower, extracted.Horsepower)
	addInt("year", existing.Year, extracted.Year)
	addInt("wltp_range_km", existing.WLTPRangeKM, extracted.WLTPRangeKM)
	addInt("co2_emission", existing.CO2Emission, extracted.CO2Emission)
	addInt("monthly_price", existing.MonthlyPrice, extracted.MonthlyPrice)

	return changes
}
