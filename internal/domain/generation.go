package domain

import (
	"strings"
	"time"
)

// WatermarkKind enumerates the supported watermark modes.
type WatermarkKind string

const (
	WatermarkNone WatermarkKind = "none"
	WatermarkText WatermarkKind = "text"
	WatermarkLogo WatermarkKind = "logo"
)

// DefaultWatermarkPosition is used when the caller does not name a corner.
const DefaultWatermarkPosition = "bottom-right"

var watermarkPositions = map[string]struct{}{
	"top-left":     {},
	"top-right":    {},
	"bottom-left":  {},
	"bottom-right": {},
}

// Watermark describes the optional branding overlay.
type Watermark struct {
	Kind     WatermarkKind
	Text     string
	LogoRef  string
	Position string
}

// Normalize resolves the kind from the populated fields and clamps the position.
func (w Watermark) Normalize() Watermark {
	w.Text = strings.TrimSpace(w.Text)
	w.LogoRef = strings.TrimSpace(w.LogoRef)
	switch WatermarkKind(strings.ToLower(strings.TrimSpace(string(w.Kind)))) {
	case WatermarkText:
		w.Kind = WatermarkText
	case WatermarkLogo:
		w.Kind = WatermarkLogo
	case WatermarkNone:
		w.Kind = WatermarkNone
	default:
		switch {
		case w.Text != "":
			w.Kind = WatermarkText
		case w.LogoRef != "":
			w.Kind = WatermarkLogo
		default:
			w.Kind = WatermarkNone
		}
	}
	if w.Kind == WatermarkText && w.Text == "" || w.Kind == WatermarkLogo && w.LogoRef == "" {
		w.Kind = WatermarkNone
	}
	pos := strings.ToLower(strings.TrimSpace(w.Position))
	if _, ok := watermarkPositions[pos]; !ok {
		pos = DefaultWatermarkPosition
	}
	w.Position = pos
	return w
}

// Customizations are the optional free-text fields offered by some enhancements.
type Customizations struct {
	Pose      string
	Furniture string
	Makeup    string
	HairColor string
}

// GenerationRequest is the canonical, immutable input of one generation.
type GenerationRequest struct {
	RequestID      string
	CallerID       string
	CallerEmail    string
	SourceImage    string
	EnhancementIDs []string
	CategoryLabel  string
	Watermark      Watermark
	Custom         Customizations
	Debug          bool
}

// Anonymous reports whether the request carries no resolvable identity.
func (r GenerationRequest) Anonymous() bool {
	return strings.TrimSpace(r.CallerID) == "" && strings.TrimSpace(r.CallerEmail) == ""
}

// Validate rejects requests that must never reach an external dependency.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.SourceImage) == "" {
		return &ValidationError{Field: "sourceImage", Reason: "source image is required"}
	}
	if len(r.EnhancementIDs) == 0 {
		return &ValidationError{Field: "enhancementIds", Reason: "at least one enhancement is required"}
	}
	for _, id := range r.EnhancementIDs {
		if strings.TrimSpace(id) == "" {
			return &ValidationError{Field: "enhancementIds", Reason: "enhancement ids must not be blank"}
		}
	}
	return nil
}

// EnhancementTemplate is a stored per-enhancement prompt.
type EnhancementTemplate struct {
	EnhancementID  string
	Title          string
	PromptTemplate string
	Category       string
	IsActive       bool
}

// CategoryPrompt is an optional per-category system preamble.
type CategoryPrompt struct {
	CategoryLabel  string
	SystemPreamble string
}

// HistoryRecord is written once per persisted result.
type HistoryRecord struct {
	ID               string
	UserID           string
	UserEmail        string
	SourceImagePath  string
	ResultImagePath  string
	EnhancementLabel string
	CategoryLabel    string
	PromptUsed       string
	CreatedAt        time.Time
}

// QuotaStatus is the monthly usage snapshot for one account email.
type QuotaStatus struct {
	Email  string
	Period string
	Used   int
	Limit  int
}

// Remaining never goes negative.
func (q QuotaStatus) Remaining() int {
	if q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}

// QuotaPeriod returns the monthly bucket key for t, e.g. "2026-10".
func QuotaPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}
