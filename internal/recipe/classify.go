// Package recipe provides the recipe-text heuristics for the chat service:
// deciding whether an assistant response carries a recipe, pulling a dish
// name out of free text, deriving an image prompt, and converting recipe
// text into a structured form.
package recipe

import (
	"regexp"
	"strings"
)

// Classifier decides whether a response is recipe-bearing and extracts a
// display name from it. It is a pluggable strategy so the substring
// heuristic can later be swapped for a model-based classifier without
// touching the orchestrator.
type Classifier interface {
	// IsRecipe reports whether text contains an actual recipe rather than
	// conversational filler. Never fails; ambiguity degrades to false.
	IsRecipe(text string) bool

	// ExtractName returns a short dish name from text, or a fixed fallback
	// label when no line qualifies. Never fails.
	ExtractName(text string) string
}

// FallbackName is returned by ExtractName when no line of the response
// yields a usable dish name.
const FallbackName = "레시피"

// maxNameLen is the longest accepted dish name, in runes, after markup
// stripping. Longer lines are treated as prose, not names.
const maxNameLen = 50

// defaultKeywords are the cooking-domain markers that flag a response as
// recipe-bearing. Korean nouns/verb stems from the corpus plus their common
// English counterparts. Matching is a plain substring scan; false positives
// and negatives are accepted.
var defaultKeywords = []string{
	"재료",      // ingredients
	"만드는 방법", // how to make
	"조리",      // cooking
	"손질",      // prep/trimming
	"끓이",      // boil (stem)
	"볶",       // stir-fry (stem)
	"굽",       // bake/grill (stem)
	"찌",       // steam (stem)
	"boil",
	"stir-fry",
	"bake",
	"steam",
}

// markupChars strips markdown heading/emphasis markers and brackets that
// LLMs like to wrap dish names in.
var markupChars = regexp.MustCompile(`[#*\[\]()]`)

// Keywords implements Classifier with substring matching against a fixed
// keyword set. The zero value is not useful; use NewKeywords.
type Keywords struct {
	keywords []string
	fallback string
}

// NewKeywords creates the default keyword classifier.
func NewKeywords() *Keywords {
	return &Keywords{keywords: defaultKeywords, fallback: FallbackName}
}

// IsRecipe reports whether any keyword appears anywhere in text.
// English keywords match case-insensitively.
func (k *Keywords) IsRecipe(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range k.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ExtractName scans the first three lines of text for a plausible dish name.
//
// A line qualifies when, after whitespace trimming, it is non-empty, does
// not start with a list bullet ('-' or '*'), and once markup characters are
// stripped is at most 50 runes long. The first qualifying line wins.
// When nothing qualifies the fixed fallback label is returned.
//
// This is a best-effort heuristic over LLM-authored text, not a parser.
func (k *Keywords) ExtractName(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > 3 {
		lines = lines[:3]
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") {
			continue
		}
		name := strings.TrimSpace(markupChars.ReplaceAllString(line, ""))
		if name != "" && len([]rune(name)) <= maxNameLen {
			return name
		}
	}
	return k.fallback
}

// ImagePrompt derives the food-photography prompt for a finalized recipe.
func ImagePrompt(name string) string {
	return "A beautifully plated " + name + ", professional food photography, " +
		"warm lighting, appetizing presentation, high resolution, " +
		"top-down view, garnished elegantly"
}
