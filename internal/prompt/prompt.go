// Package prompt holds the stage templates fed to the generation service
// and interpolates ethnicity and skin-tone fragments into them. Prompts
// are always rebuilt from the template with the current values; nothing
// here caches a rendered string.
package prompt

import (
	"fmt"
	"strings"

	"babygen/internal/domain"
)

const (
	outlinePositive = "Photo of a sleeping newborn baby head based on the image. Head only, no body, matching the exact facial orientation as input image. Detailed face structure with prominent facial features."
	outlineNegative = "Open eyes, Ugly, Weird Mouth, Crooked Mouth, twisted limbs, bad skin, wrinkles, uneven face, open mouth, lowers, bad anatomy, bad hands, missing fingers, extra digits, cropped, worst quality, low quality, mutant"

	finalPositive = "Portrait of a sleeping beautiful newborn baby with %sNO HAT, natural hair, clearly visible hairline, wrapped in soft blanket, swaddled tightly with only face visible, white background. matching the exact facial orientation as input image."
	finalNegative = "different facial orientation, hat, cap, beanie, head covering, head wrap, headwear, Multiple eyebrows, Asymmetrical eyes, Open eyes, visible limbs, hands, arms, fingers, feet, legs, exposed body parts, ugly, weird mouth, cropped, bad anatomy, deformities, blurry, low quality, unrealistic skin texture, uneven face"

	skinPositive = "Portrait of the same sleeping newborn baby with %s skin tone and %snatural undertones, identical facial structure and orientation, wrapped in soft blanket, white background, photorealistic skin texture."
	skinNegative = finalNegative
)

// Ethnicities lists the selectable options in display order.
var Ethnicities = []string{
	"Asian", "Caucasian", "African", "Latino", "Middle Eastern", "South Asian", "Mixed",
}

// ethnicityFragments maps an ethnicity to the prompt fragment injected
// into stage templates. Mixed intentionally maps to the empty string.
var ethnicityFragments = map[string]string{
	"Asian":          "Asian baby features, ",
	"Caucasian":      "Caucasian baby features, ",
	"African":        "African baby features, ",
	"Latino":         "Latino baby features, ",
	"Middle Eastern": "Middle Eastern baby features, ",
	"South Asian":    "South Asian baby features, ",
	"Mixed":          "",
}

// SkinTones lists the selectable skin tone options for the final stage.
var SkinTones = []string{"Fair", "Light", "Medium", "Tan", "Dark"}

// DefaultSkinTone is used when stage 2 runs without a selection.
const DefaultSkinTone = "Medium"

// EthnicityFragment returns the template fragment for an ethnicity.
// Unknown values behave like Mixed.
func EthnicityFragment(ethnicity string) string {
	if f, ok := ethnicityFragments[strings.TrimSpace(ethnicity)]; ok {
		return f
	}
	return ""
}

// Build renders the positive and negative prompts for a stage from the
// current ethnicity and skin tone.
func Build(stage domain.GenerationStage, ethnicity, skinTone string) (positive, negative string) {
	switch stage {
	case domain.StageOutline:
		return outlinePositive, outlineNegative
	case domain.StageFinal:
		return fmt.Sprintf(finalPositive, EthnicityFragment(ethnicity)), finalNegative
	default:
		if strings.TrimSpace(skinTone) == "" {
			skinTone = DefaultSkinTone
		}
		return fmt.Sprintf(skinPositive, skinTone, EthnicityFragment(ethnicity)), skinNegative
	}
}
