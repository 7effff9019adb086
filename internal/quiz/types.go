package quiz

import "time"

// Step identifies one screen of the six-step questionnaire.
type Step int

const (
	StepSkinType Step = iota + 1
	StepConcerns
	StepProductType
	StepAllergens
	StepEyeConcerns
	StepPregnancy
)

// TotalSteps is the number of questionnaire screens.
const TotalSteps = 6

// Event is a navigation action applied to the collector.
type Event int

const (
	EventNext Event = iota
	EventBack
	EventSubmit
	EventRetake
)

func (e Event) String() string {
	switch e {
	case EventNext:
		return "next"
	case EventBack:
		return "back"
	case EventSubmit:
		return "submit"
	case EventRetake:
		return "retake"
	}
	return "unknown"
}

// Pregnancy is the tri-state answer to the pregnancy/nursing question.
// The zero value means unanswered; submission is gated on it being set.
type Pregnancy string

const (
	PregnancyUnset Pregnancy = ""
	PregnancyYes   Pregnancy = "Yes"
	PregnancyNo    Pregnancy = "No"
)

// Profile is the accumulated questionnaire answer set. Multi-valued
// fields keep insertion order for display but carry set semantics:
// the collector never inserts a duplicate.
type Profile struct {
	SkinType    string    `json:"skinType"`
	Concerns    []string  `json:"concerns"`
	ProductType string    `json:"productType"`
	Allergens   []string  `json:"allergens"`
	EyeConcerns []string  `json:"eyeConcerns"`
	Pregnancy   Pregnancy `json:"pregnancy"`

	// Identity fields, assigned when the profile is frozen at submission.
	SessionID string    `json:"sessionId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SkinTypes is the fixed skin-type vocabulary (step 1, single-select).
var SkinTypes = []string{
	"Normal Skin",
	"Dry Skin",
	"Oily Skin",
	"Combination Skin",
	"Sensitive Skin",
}

// Concerns is the fixed concern vocabulary (step 2, multi-select).
var Concerns = []string{
	"Acne / Blackheads",
	"Wrinkles / Fine Lines",
	"Dryness / Dehydration",
	"Uneven Texture / Enlarged Pores",
	"Redness / Irritation",
	"Pigmentation / Dark Spots",
	"Impaired Skin Barrier",
	"Loss of Elasticity",
	"Dullness / Lack of Radiance",
	"Dark Circles / Eye Bags",
	"UV Protection",
	"Pregnancy-Safe",
}

// ProductTypes is the fixed product-type vocabulary (step 3, single-select).
var ProductTypes = []string{
	"Moisturizer",
	"Cleanser",
	"Treatment / Serum",
	"Face Mask",
	"Eye Cream",
	"Sun Protection",
}

// FixedAllergens is the fixed portion of the allergen vocabulary
// (step 4); users can extend it with free-text entries.
var FixedAllergens = []string{
	"Fragrance",
	"Alcohol",
	"Parabens",
	"Sulfates",
	"Essential Oils",
	"Silicones",
}

// EyeConcernNone is the explicit "no concern" sentinel of the
// eye-concern vocabulary.
const EyeConcernNone = "No Eye Concern"

// EyeConcerns is the fixed eye-area vocabulary (step 5, multi-select).
var EyeConcerns = []string{
	"Dark Circles",
	"Fine Lines / Wrinkles",
	"Puffiness",
	EyeConcernNone,
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ValidSkinType reports whether v belongs to the skin-type vocabulary.
func ValidSkinType(v string) bool { return contains(SkinTypes, v) }

// ValidConcern reports whether v belongs to the concern vocabulary.
func ValidConcern(v string) bool { return contains(Concerns, v) }

// ValidProductType reports whether v belongs to the product-type vocabulary.
func ValidProductType(v string) bool { return contains(ProductTypes, v) }

// ValidEyeConcern reports whether v belongs to the eye-concern vocabulary.
func ValidEyeConcern(v string) bool { return contains(EyeConcerns, v) }
