package imagegen

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// KeywordRule maps a set of keywords to a label.
type KeywordRule struct {
	Label    string
	Keywords []string
}

// KeywordTable is evaluated top to bottom; the first rule with any keyword
// present in the text wins. Keywords match whole words, so "man" does not match
// "mannequin" and "hand" does not match "handbag".
type KeywordTable []KeywordRule

// Match returns the label of the first matching rule.
func (t KeywordTable) Match(text string) (string, bool) {
	words := wordText(text)
	if strings.TrimSpace(words) == "" {
		return "", false
	}
	for _, rule := range t {
		for _, kw := range rule.Keywords {
			if strings.Contains(words, wordText(kw)) {
				return rule.Label, true
			}
		}
	}
	return "", false
}

// MatchOr is Match with a fallback label.
func (t KeywordTable) MatchOr(text, fallback string) string {
	if label, ok := t.Match(text); ok {
		return label
	}
	return fallback
}

// wordText case-folds s and reduces it to space-delimited words with a leading
// and trailing space. A Caser is stateful, so one is created per call.
func wordText(s string) string {
	folded := cases.Fold().String(norm.NFKC.String(s))
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(words, " ") + " "
}

// Variant identifies which stock model reference is attached.
type Variant string

const (
	VariantNone        Variant = "none"
	VariantFemale      Variant = "female"
	VariantFemaleHijab Variant = "female-hijab"
	VariantMale        Variant = "male"
)

const wearableLabel = "wearable"

// WearableKeywords signal that the product must be shown on a human model.
var WearableKeywords = KeywordTable{
	{Label: wearableLabel, Keywords: []string{
		"model", "models", "worn", "wear", "wearing", "lifestyle", "mannequin",
		"on-feet", "neck", "wrist", "hand", "hands", "try-on",
	}},
}

// ModelVariants picks the reference asset. Hijab outranks every other match.
var ModelVariants = KeywordTable{
	{Label: string(VariantFemaleHijab), Keywords: []string{"hijab", "hijabi", "jilbab", "headscarf", "muslimah"}},
	{Label: string(VariantFemale), Keywords: []string{"female", "woman", "women", "girl", "lady"}},
	{Label: string(VariantMale), Keywords: []string{"male", "man", "men", "boy"}},
}

// ProductTypes names the product in the rewritten model prompt.
var ProductTypes = KeywordTable{
	{Label: "shirt", Keywords: []string{"shirt", "shirts", "blouse", "tee"}},
	{Label: "dress", Keywords: []string{"dress", "dresses", "gown", "abaya"}},
	{Label: "jacket", Keywords: []string{"jacket", "jackets", "coat", "hoodie", "blazer"}},
	{Label: "pants", Keywords: []string{"pants", "trousers", "jeans", "shorts"}},
	{Label: "shoes", Keywords: []string{"shoe", "shoes", "sneakers", "sandals", "boots", "heels", "on-feet"}},
	{Label: "bag", Keywords: []string{"bag", "bags", "handbag", "purse", "backpack", "tote"}},
	{Label: "watch", Keywords: []string{"watch", "watches", "wrist"}},
	{Label: "necklace", Keywords: []string{"necklace", "pendant", "neck"}},
	{Label: "bracelet", Keywords: []string{"bracelet", "bangle"}},
}

const defaultProductType = "clothing"

// IsWearable reports whether titles ask for an on-body presentation.
func IsWearable(titles string) bool {
	_, ok := WearableKeywords.Match(titles)
	return ok
}

// SelectVariant applies ModelVariants with female as the default.
func SelectVariant(titles string) Variant {
	return Variant(ModelVariants.MatchOr(titles, string(VariantFemale)))
}

// InferProductType applies ProductTypes with "clothing" as the default.
func InferProductType(titles string) string {
	return ProductTypes.MatchOr(titles, defaultProductType)
}
