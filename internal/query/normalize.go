// Package query turns a questionnaire profile into the parameter set
// the recommendation service expects: display labels become lowercase
// keywords and multi-valued answers become canonical comma-joined lists.
package query

import (
	"strconv"
	"strings"

	"github.com/veibelle/skinmatch/internal/quiz"
)

// Query parameter names on the recommendation endpoint.
const (
	ParamSkinType      = "skin_type"
	ParamProductType   = "product_type"
	ParamConcerns      = "concerns"
	ParamAllergensList = "allergens_list"
	ParamPregnancySafe = "pregnancy_safe"
	ParamTopN          = "top_n"
)

// concernKeywords maps every concern display label to the keyword the
// recommendation service matches on.
var concernKeywords = map[string]string{
	"Acne / Blackheads":               "acne",
	"Wrinkles / Fine Lines":           "wrinkle",
	"Dryness / Dehydration":           "dry",
	"Uneven Texture / Enlarged Pores": "uneven texture",
	"Redness / Irritation":            "sensitive",
	"Pigmentation / Dark Spots":       "pigmentation",
	"Impaired Skin Barrier":           "skin barrier",
	"Loss of Elasticity":              "elasticity",
	"Dullness / Lack of Radiance":     "dullness",
	"Dark Circles / Eye Bags":         "dark circles",
	"UV Protection":                   "uv protection",
	"Pregnancy-Safe":                  "pregnancy-safe",
}

// ConcernKeyword resolves a concern label to its search keyword.
// Labels outside the mapping fall back to their lowercase form, so
// vocabulary growth degrades gracefully instead of dropping answers.
func ConcernKeyword(label string) string {
	if kw, ok := concernKeywords[label]; ok {
		return kw
	}
	return strings.ToLower(label)
}

// NormalizeList canonicalizes a free-form list string: items are split
// on commas and slashes, trimmed, blanks dropped, and rejoined with a
// bare comma. Applying it to its own output changes nothing.
func NormalizeList(raw string) string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '/'
	})
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			items = append(items, p)
		}
	}
	return strings.Join(items, ",")
}

// Build assembles the recommendation query from a finalized profile.
// Concerns are translated to keywords; allergens are normalized; eye
// concerns stay local and are never sent. Empty answers are omitted
// entirely rather than sent as empty parameters, and top_n is included
// only when positive.
func Build(p quiz.Profile, topN int) map[string]string {
	q := make(map[string]string)

	if p.SkinType != "" {
		q[ParamSkinType] = p.SkinType
	}
	if p.ProductType != "" {
		q[ParamProductType] = p.ProductType
	}

	if len(p.Concerns) > 0 {
		keywords := make([]string, 0, len(p.Concerns))
		for _, c := range p.Concerns {
			keywords = append(keywords, ConcernKeyword(c))
		}
		q[ParamConcerns] = NormalizeList(strings.Join(keywords, ","))
	}

	if len(p.Allergens) > 0 {
		q[ParamAllergensList] = NormalizeList(strings.Join(p.Allergens, ","))
	}

	switch p.Pregnancy {
	case quiz.PregnancyYes:
		q[ParamPregnancySafe] = "yes"
	case quiz.PregnancyNo:
		q[ParamPregnancySafe] = "no"
	}

	if topN > 0 {
		q[ParamTopN] = strconv.Itoa(topN)
	}

	return q
}

// FromRaw assembles a query from loose string inputs, for the one-shot
// CLI and tool paths that bypass the questionnaire. List inputs accept
// the same free-form separators NormalizeList does; concern items are
// keyword-mapped individually.
func FromRaw(skinType, productType, concerns, allergens, pregnancySafe string, topN int) map[string]string {
	q := make(map[string]string)

	if skinType != "" {
		q[ParamSkinType] = skinType
	}
	if productType != "" {
		q[ParamProductType] = productType
	}

	if normalized := NormalizeList(concerns); normalized != "" {
		items := strings.Split(normalized, ",")
		for i, item := range items {
			items[i] = ConcernKeyword(item)
		}
		q[ParamConcerns] = strings.Join(items, ",")
	}

	if normalized := NormalizeList(allergens); normalized != "" {
		q[ParamAllergensList] = normalized
	}

	switch strings.ToLower(strings.TrimSpace(pregnancySafe)) {
	case "yes":
		q[ParamPregnancySafe] = "yes"
	case "no":
		q[ParamPregnancySafe] = "no"
	}

	if topN > 0 {
		q[ParamTopN] = strconv.Itoa(topN)
	}

	return q
}
