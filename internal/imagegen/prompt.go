package imagegen

import (
	"context"
	"fmt"
	"strings"

	"enhancer/internal/domain"
)

// AssembledPrompt is the prompt built from the selected enhancements before
// any reference or watermark handling.
type AssembledPrompt struct {
	Text   string
	Titles []string
}

// Label joins the enhancement titles for history and journal records.
func (p AssembledPrompt) Label() string {
	return strings.Join(p.Titles, ", ")
}

// KeywordText is the lower-cased title list fed to the reference selector.
func (p AssembledPrompt) KeywordText() string {
	return strings.ToLower(strings.Join(p.Titles, " "))
}

// Assembler turns enhancement ids into a single instruction using stored
// templates and category preambles.
type Assembler struct {
	templates domain.TemplateRepository
}

// NewAssembler constructs an Assembler.
func NewAssembler(templates domain.TemplateRepository) *Assembler {
	return &Assembler{templates: templates}
}

type customField struct {
	name        string
	placeholder string
	value       string
}

func customFields(c domain.Customizations) []customField {
	return []customField{
		{name: "pose", placeholder: "{pose}", value: strings.TrimSpace(c.Pose)},
		{name: "furniture", placeholder: "{furniture}", value: strings.TrimSpace(c.Furniture)},
		{name: "makeup", placeholder: "{makeup}", value: strings.TrimSpace(c.Makeup)},
		{name: "hair color", placeholder: "{hair_color}", value: strings.TrimSpace(c.HairColor)},
	}
}

// Assemble builds the prompt for ids in caller order. Missing templates fall
// back to a generic sentence; only data-store errors fail the call.
func (a *Assembler) Assemble(ctx context.Context, ids []string, category string, custom domain.Customizations) (AssembledPrompt, error) {
	if len(ids) == 0 {
		return AssembledPrompt{}, &domain.ValidationError{Field: "enhancementIds", Reason: "at least one enhancement is required"}
	}

	templates, err := a.templates.GetTemplates(ctx, ids)
	if err != nil {
		return AssembledPrompt{}, fmt.Errorf("load templates: %w", err)
	}

	var preamble string
	if category = strings.TrimSpace(category); category != "" {
		cp, err := a.templates.GetCategoryPrompt(ctx, category)
		if err != nil {
			return AssembledPrompt{}, fmt.Errorf("load category prompt: %w", err)
		}
		if cp != nil {
			preamble = strings.TrimSpace(cp.SystemPreamble)
		}
	}

	fields := customFields(custom)
	used := make([]bool, len(fields))

	bodies := make([]string, 0, len(ids))
	titles := make([]string, 0, len(ids))
	for _, id := range ids {
		tpl, ok := templates[id]
		title := strings.TrimSpace(tpl.Title)
		if title == "" {
			title = TitleFromID(id)
		}
		body := strings.TrimSpace(tpl.PromptTemplate)
		if !ok || body == "" {
			body = FallbackPrompt(title)
		}
		for i, f := range fields {
			if f.value == "" || !strings.Contains(body, f.placeholder) {
				continue
			}
			body = strings.ReplaceAll(body, f.placeholder, f.value)
			used[i] = true
		}
		bodies = append(bodies, body)
		titles = append(titles, title)
	}

	var b strings.Builder
	if preamble != "" {
		b.WriteString(preamble)
		b.WriteString("\n\n")
	}
	if len(bodies) == 1 {
		b.WriteString(bodies[0])
	} else {
		b.WriteString("Apply the following enhancements to this image:\n")
		for i, body := range bodies {
			fmt.Fprintf(&b, "%d. %s\n", i+1, body)
		}
		b.WriteString("\nEnsure all enhancements work together harmoniously.")
	}
	for i, f := range fields {
		if f.value == "" || used[i] {
			continue
		}
		fmt.Fprintf(&b, "\nCustom %s: %s.", f.name, strings.TrimRight(f.value, "."))
	}

	return AssembledPrompt{Text: b.String(), Titles: titles}, nil
}

// FallbackPrompt is used for enhancements without a stored template.
func FallbackPrompt(title string) string {
	return fmt.Sprintf("Enhance this image with %s for e-commerce product photography.", title)
}

// TitleFromID derives a readable title, e.g. "add_female_model" becomes
// "add female model".
func TitleFromID(id string) string {
	return strings.Join(strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}), " ")
}
