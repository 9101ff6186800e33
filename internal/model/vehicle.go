package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Offer is one leasing term nested under a vehicle. Ordering within a
// vehicle's offer list carries no meaning: two offer sets are equal iff
// they are equal as multisets.
type Offer struct {
	MonthlyPrice   int `json:"monthly_price" yaml:"monthly_price"`
	FirstPayment   int `json:"first_payment" yaml:"first_payment"`
	PeriodMonths   int `json:"period_months" yaml:"period_months"`
	MileagePerYear int `json:"mileage_per_year" yaml:"mileage_per_year"`
}

// ExtractedVehicle is a candidate vehicle parsed from a dealer price
// list by the upstream extraction service. It lives only within one
// extraction session.
type ExtractedVehicle struct {
	Make         string  `json:"make" yaml:"make"`
	Model        string  `json:"model" yaml:"model"`
	Variant      string  `json:"variant" yaml:"variant"`
	Transmission string  `json:"transmission,omitempty" yaml:"transmission,omitempty"`
	FuelType     string  `json:"fuel_type,omitempty" yaml:"fuel_type,omitempty"`
	BodyType     string  `json:"body_type,omitempty" yaml:"body_type,omitempty"`
	Horsepower   int     `json:"horsepower,omitempty" yaml:"horsepower,omitempty"`
	Year         int     `json:"year,omitempty" yaml:"year,omitempty"`
	WLTPRangeKM  int     `json:"wltp_range_km,omitempty" yaml:"wltp_range_km,omitempty"`
	CO2Emission  int     `json:"co2_emission,omitempty" yaml:"co2_emission,omitempty"`
	MonthlyPrice int     `json:"monthly_price,omitempty" yaml:"monthly_price,omitempty"`
	Offers       []Offer `json:"offers,omitempty" yaml:"offers,omitempty"`
	Confidence   float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Validate checks the fields the reconciler cannot work without.
// Records failing validation are quarantined at the ingest boundary
// and never reach the matcher.
func (v *ExtractedVehicle) Validate() error {
	if v.Make == "" {
		return eris.New("extracted vehicle: make is required")
	}
	if v.Model == "" {
		return eris.New("extracted vehicle: model is required")
	}
	if v.Variant == "" {
		return eris.New("extracted vehicle: variant is required")
	}
	if v.MonthlyPrice <= 0 && len(v.Offers) == 0 {
		return eris.New("extracted vehicle: monthly price or at least one offer is required")
	}
	for i, o := range v.Offers {
		if o.MonthlyPrice <= 0 {
			return eris.Errorf("extracted vehicle: offer %d: monthly price must be positive", i)
		}
		if o.PeriodMonths <= 0 {
			return eris.Errorf("extracted vehicle: offer %d: period months must be positive", i)
		}
		if o.MileagePerYear < 0 {
			return eris.Errorf("extracted vehicle: offer %d: mileage per year must not be negative", i)
		}
	}
	return nil
}

// ExistingListing is a persisted vehicle record owned by the inventory
// store. It is mutated only through the apply engine on the
// reconciliation path.
type ExistingListing struct {
	ID           string    `json:"id"`
	SellerID     string    `json:"seller_id"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Variant      string    `json:"variant"`
	Transmission string    `json:"transmission,omitempty"`
	FuelType     string    `json:"fuel_type,omitempty"`
	BodyType     string    `json:"body_type,omitempty"`
	Horsepower   int       `json:"horsepower,omitempty"`
	Year         int       `json:"year,omitempty"`
	WLTPRangeKM  int       `json:"wltp_range_km,omitempty"`
	CO2Emission  int       `json:"co2_emission,omitempty"`
	MonthlyPrice int       `json:"monthly_price,omitempty"`
	Offers       []Offer   `json:"offers,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Extracted returns the listing's attributes as an ExtractedVehicle so
// matcher and comparator code can treat both sides uniformly.
func (l *ExistingListing) Extracted() ExtractedVehicle {
	return ExtractedVehicle{
		Make:         l.Make,
		Model:        l.Model,
		Variant:      l.Variant,
		Transmission: l.Transmission,
		FuelType:     l.FuelType,
		BodyType:     l.BodyType,
		Horsepower:   l.Horsepower,
		Year:         l.Year,
		WLTPRangeKM:  l.WLTPRangeKM,
		CO2Emission:  l.CO2Emission,
		MonthlyPrice: l.MonthlyPrice,
		Offers:       l.Offers,
	}
}
