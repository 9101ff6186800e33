// Package match pairs extracted vehicles against existing listings
// using an exact-key pass followed by a fuzzy pass, and classifies
// every leftover as a create or delete candidate.
package match

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"go.uber.org/zap"

	"github.com/leasingborsen/reconcile-cli/internal/identity"
	"github.com/leasingborsen/reconcile-cli/internal/model"
)

// Config holds the tunable fuzzy-matching parameters. Threshold and
// weights are configuration, not constants: they are validated against
// the scenario fixtures in this package's tests.
type Config struct {
	// SimilarityThreshold is the minimum combined score for a fuzzy
	// pairing to be accepted.
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	// VariantWeight scales the variant-text similarity component.
	VariantWeight float64 `yaml:"variant_weight" mapstructure:"variant_weight"`
	// AttrWeight scales the discriminating-attribute agreement component.
	AttrWeight float64 `yaml:"attr_weight" mapstructure:"attr_weight"`
	// HorsepowerTolerance is the absolute HP difference still counted
	// as agreement (rounding between documents).
	HorsepowerTolerance int `yaml:"horsepower_tolerance" mapstructure:"horsepower_tolerance"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.80,
		VariantWeight:       0.70,
		AttrWeight:          0.30,
		HorsepowerTolerance: 5,
	}
}

// Pairing is one matcher verdict: (existing, extracted) is a match,
// (existing, nil) a delete candidate, (nil, extracted) a create
// candidate.
type Pairing struct {
	Existing   *model.ExistingListing
	Extracted  *model.ExtractedVehicle
	Method     model.MatchMethod
	Confidence float64
}

// RowError records an extracted row the matcher had to set aside.
// The batch always proceeds past it.
type RowError struct {
	Index   int
	Vehicle model.ExtractedVehicle
	Reason  string
}

// Result is the full pairing output for one session.
type Result struct {
	Pairings []Pairing
	Errors   []RowError
}

// Matcher pairs extracted vehicles with existing listings. Matching is
// a pure read-only computation: it never errors and produces no side
// effects.
type Matcher struct {
	cfg Config
}

var levParams = levenshtein.NewParams()

// New creates a Matcher; zero-value config fields fall back to defaults.
func New(cfg Config) *Matcher {
	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.VariantWeight <= 0 {
		cfg.VariantWeight = def.VariantWeight
	}
	if cfg.AttrWeight <= 0 {
		cfg.AttrWeight = def.AttrWeight
	}
	if cfg.HorsepowerTolerance <= 0 {
		cfg.HorsepowerTolerance = def.HorsepowerTolerance
	}
	return &Matcher{cfg: cfg}
}

// Match reconciles one seller's existing listings against the vehicles
// extracted from one document.
//
// Existing listings left unconsumed become delete candidates — on a
// partial upload (a single-model price list) every listing outside the
// document's scope is proposed for deletion. That is intentional: a
// document represents the seller's full current offering for the scope
// extracted, and the operator reviews every proposed delete before it
// is applied.
func (m *Matcher) Match(existing []model.ExistingListing, extracted []model.ExtractedVehicle) Result {
	var res Result

	// Stable candidate order regardless of how the store returned rows.
	byID := make([]*model.ExistingListing, len(existing))
	for i := range existing {
		byID[i] = &existing[i]
	}
	sort.Slice(byID, func(i, j int) bool { return byID[i].ID < byID[j].ID })

	keyIndex := make(map[string][]*model.ExistingListing, len(byID))
	for _, l := range byID {
		key := identity.ExactKey(l.Make, l.Model, l.Variant)
		keyIndex[key] = append(keyIndex[key], l)
	}

	consumed := make(map[string]bool, len(byID))
	matched := make([]bool, len(extracted))

	// Duplicate extracted rows (same exact key and transmission) would
	// break the one-vehicle-per-identity invariant: first wins, the
	// rest are surfaced as row errors.
	seen := make(map[string]bool, len(extracted))
	for i := range extracted {
		dupKey := identity.ExactKey(extracted[i].Make, extracted[i].Model, extracted[i].Variant) +
			"|" + strings.ToLower(extracted[i].Transmission)
		if seen[dupKey] {
			matched[i] = true // excluded from further passes
			res.Errors = append(res.Errors, RowError{
				Index:   i,
				Vehicle: extracted[i],
				Reason:  "duplicate vehicle in extraction batch",
			})
			continue
		}
		seen[dupKey] = true
	}

	// Pass 1: exact key. Transmission is a hard discriminator here: a
	// key hit with a conflicting transmission is a different business
	// vehicle and must fall through to create+delete, never pair.
	for i := range extracted {
		if matched[i] {
			continue
		}
		key := identity.ExactKey(extracted[i].Make, extracted[i].Model, extracted[i].Variant)
		for _, cand := range keyIndex[key] {
			if consumed[cand.ID] {
				continue
			}
			if transmissionConflict(cand.Transmission, extracted[i].Transmission) {
				continue
			}
			consumed[cand.ID] = true
			matched[i] = true
			res.Pairings = append(res.Pairings, Pairing{
				Existing:   cand,
				Extracted:  &extracted[i],
				Method:     model.MatchMethodExact,
				Confidence: 1.0,
			})
			break
		}
	}

	// Pass 2: fuzzy, scoped to the same make and model.
	for i := range extracted {
		if matched[i] {
			continue
		}
		best, score := m.bestFuzzyCandidate(byID, consumed, &extracted[i])
		if best == nil {
			continue
		}
		consumed[best.ID] = true
		matched[i] = true
		zap.L().Debug("fuzzy match accepted",
			zap.String("existing_variant", best.Variant),
			zap.String("extracted_variant", extracted[i].Variant),
			zap.Float64("score", score),
		)
		res.Pairings = append(res.Pairings, Pairing{
			Existing:   best,
			Extracted:  &extracted[i],
			Method:     model.MatchMethodFuzzy,
			Confidence: score,
		})
	}

	// Leftover extracted rows are create candidates.
	for i := range extracted {
		if matched[i] {
			continue
		}
		res.Pairings = append(res.Pairings, Pairing{
			Extracted:  &extracted[i],
			Method:     model.MatchMethodUnmatched,
			Confidence: 0,
		})
	}

	// Leftover existing listings are delete candidates.
	for _, l := range byID {
		if consumed[l.ID] {
			continue
		}
		res.Pairings = append(res.Pairings, Pairing{
			Existing:   l,
			Method:     model.MatchMethodUnmatched,
			Confidence: 1.0,
		})
	}

	return res
}

// bestFuzzyCandidate scores all unconsumed same-make listings against
// one extracted vehicle and returns the best above threshold, or nil.
func (m *Matcher) bestFuzzyCandidate(existing []*model.ExistingListing, consumed map[string]bool, v *model.ExtractedVehicle) (*model.ExistingListing, float64) {
	var best *model.ExistingListing
	bestScore := 0.0

	for _, cand := range existing {
		if consumed[cand.ID] {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(cand.Make), strings.TrimSpace(v.Make)) {
			continue
		}
		// Model and transmission are hard gates: fuzzy matching only
		// reconciles cosmetic variant differences.
		if identity.NormalizeVariant(cand.Model) != identity.NormalizeVariant(v.Model) {
			continue
		}
		if transmissionConflict(cand.Transmission, v.Transmission) {
			continue
		}

		// Candidates arrive ID-sorted, so ties resolve to the lowest id.
		score := m.score(cand, v)
		if score > bestScore {
			best = cand
			bestScore = score
		}
	}

	if bestScore < m.cfg.SimilarityThreshold {
		return nil, 0
	}
	return best, bestScore
}

// score combines variant-text similarity with agreement on the
// discriminating attributes (horsepower, fuel type, body type).
func (m *Matcher) score(l *model.ExistingListing, v *model.ExtractedVehicle) float64 {
	a := identity.NormalizeVariant(l.Variant)
	b := identity.NormalizeVariant(v.Variant)

	variantSim := levenshtein.Similarity(a, b, levParams)
	if j := jaccard(a, b); j > variantSim {
		variantSim = j
	}

	total := m.cfg.VariantWeight*variantSim + m.cfg.AttrWeight*m.attrAgreement(l, v)
	weight := m.cfg.VariantWeight + m.cfg.AttrWeight
	if weight <= 0 {
		return 0
	}
	return total / weight
}

// attrAgreement returns the fraction of comparable discriminating
// attributes that agree. Attributes missing on either side are not
// comparable; with nothing comparable the component is neutral (0.5).
func (m *Matcher) attrAgreement(l *model.ExistingListing, v *model.ExtractedVehicle) float64 {
	comparable, agree := 0, 0

	if l.Horsepower > 0 && v.Horsepower > 0 {
		comparable++
		diff := l.Horsepower - v.Horsepower
		if diff < 0 {
			diff = -diff
		}
		if diff <= m.cfg.HorsepowerTolerance {
			agree++
		}
	}
	if l.FuelType != "" && v.FuelType != "" {
		comparable++
		if strings.EqualFold(l.FuelType, v.FuelType) {
			agree++
		}
	}
	if l.BodyType != "" && v.BodyType != "" {
		comparable++
		if strings.EqualFold(l.BodyType, v.BodyType) {
			agree++
		}
	}

	if comparable == 0 {
		return 0.5
	}
	return float64(agree) / float64(comparable)
}

// jaccard computes word-set similarity of two normalized strings.
func jaccard(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}
	intersection := 0
	setB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		if setB[w] {
			continue
		}
		setB[w] = true
		if setA[w] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// transmissionConflict reports whether two transmission values name
// different powertrains. A missing value on either side never
// conflicts.
func transmissionConflict(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return !strings.EqualFold(a, b)
}
