package imagegen

import (
	"fmt"
	"strings"

	"enhancer/internal/domain"
)

// ReferenceAssets holds the stock model photo URLs.
type ReferenceAssets struct {
	Female      string
	FemaleHijab string
	Male        string
}

// URL returns the asset for v, falling back to the female asset.
func (r ReferenceAssets) URL(v Variant) string {
	switch v {
	case VariantFemaleHijab:
		if r.FemaleHijab != "" {
			return r.FemaleHijab
		}
	case VariantMale:
		if r.Male != "" {
			return r.Male
		}
	}
	return r.Female
}

// Selection is the output of the reference selector. ImageURLs always starts
// with the source image and holds at most one model reference.
type Selection struct {
	Prompt      string
	ImageURLs   []string
	Variant     Variant
	ProductType string
}

// Selector decides whether a model reference is composited into the request.
// It performs no I/O.
type Selector struct {
	assets ReferenceAssets
}

// NewSelector constructs a Selector.
func NewSelector(assets ReferenceAssets) *Selector {
	return &Selector{assets: assets}
}

// Select finalizes the prompt and image list. titles is the lower-cased
// concatenation of enhancement titles.
func (s *Selector) Select(prompt, titles, sourceURL string, wm domain.Watermark) Selection {
	sel := Selection{
		Prompt:    prompt,
		ImageURLs: []string{sourceURL},
		Variant:   VariantNone,
	}

	if IsWearable(titles) {
		sel.Variant = SelectVariant(titles)
		sel.ProductType = InferProductType(titles)
		assetURL := s.assets.URL(sel.Variant)
		sel.ImageURLs = append(sel.ImageURLs, assetURL)
		sel.Prompt = modelPrompt(prompt, sel.ProductType, sel.Variant, assetURL)
	}

	sel.Prompt = sel.Prompt + "\n\n" + WatermarkInstruction(wm)
	return sel
}

func modelPrompt(assembled, productType string, v Variant, assetURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Take the %s product from file 1 and put it on the model from file 2 (%s model reference: %s). ", productType, v, assetURL)
	fmt.Fprintf(&b, "Preserve every text, logo and branding detail on the %s exactly as it appears in file 1. ", productType)
	b.WriteString("Keep the model's face, body and skin tone from file 2 unchanged. ")
	b.WriteString("Use a clean, well-lit studio setting.")
	if assembled = strings.TrimSpace(assembled); assembled != "" {
		b.WriteString("\n\n")
		b.WriteString(assembled)
	}
	return b.String()
}

// WatermarkInstruction is appended last to every prompt.
func WatermarkInstruction(wm domain.Watermark) string {
	wm = wm.Normalize()
	corner := strings.ReplaceAll(wm.Position, "-", " ")
	switch wm.Kind {
	case domain.WatermarkText:
		return fmt.Sprintf("Add the text %q as a watermark in the %s corner at about 30%% opacity.", wm.Text, corner)
	case domain.WatermarkLogo:
		return fmt.Sprintf("Add the logo from %s as a watermark in the %s corner at about 30%% opacity.", wm.LogoRef, corner)
	default:
		return "Remove any existing watermark, overlaid text or logo from the image and do not add a new one."
	}
}
