// Package identity derives stable, comparable keys from a vehicle's
// immutable attributes.
package identity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// ExactKey builds the normalized identity key for a vehicle:
// case-folded, NFKC-normalized, whitespace-collapsed make, model and
// variant joined with "|". Transmission and fuel type are deliberately
// excluded: the same nameplate/variant legitimately exists with
// multiple powertrain combinations, and discriminating between those is
// the matcher's job, not the key's.
//
// Cosmetically different variant strings ("xDrive30d M Sport" vs
// "xDrive 30d M-Sport") yield different exact keys; resolving those is
// the fuzzy pass's job.
func ExactKey(make, model, variant string) string {
	return normalize(make) + "|" + normalize(model) + "|" + normalize(variant)
}

// normalize case-folds and collapses whitespace. Danish inventory text
// (æ/ø/å, combining marks from PDF extraction) makes the Unicode folder
// the right tool rather than strings.ToLower.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeVariant prepares a variant string for fuzzy comparison only:
// on top of the exact-key normalization it folds hyphens, slashes and
// dots into spaces so "M-Sport" and "M Sport" compare close. Never used
// for exact keys.
func NormalizeVariant(variant string) string {
	s := normalize(variant)
	r := strings.NewReplacer("-", " ", "/", " ", ".", " ")
	return strings.Join(strings.Fields(r.Replace(s)), " ")
}
