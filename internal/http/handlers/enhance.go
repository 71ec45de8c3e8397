package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"enhancer/internal/domain"
	"enhancer/internal/middleware"
	"enhancer/internal/providers/kie"

	"github.com/go-chi/chi/v5"
)

// maxGenerateBody bounds the request body; data URIs make it larger than a
// typical JSON payload.
const maxGenerateBody = 16 << 20

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

type watermarkBody struct {
	Kind     string `json:"kind"`
	Type     string `json:"type"`
	Text     string `json:"text"`
	LogoRef  string `json:"logoRef"`
	LogoURL  string `json:"logoUrl"`
	Position string `json:"position"`
}

// generateRequestBody is the loose wire shape; clients in the field send
// several spellings of the same fields.
type generateRequestBody struct {
	SourceImage    string         `json:"sourceImage"`
	ImageURL       string         `json:"imageUrl"`
	ImageURLSnake  string         `json:"image_url"`
	StoragePath    string         `json:"storagePath"`
	EnhancementIDs stringList     `json:"enhancementIds"`
	Enhancements   stringList     `json:"enhancements"`
	Enhancement    string         `json:"enhancement"`
	CategoryLabel  string         `json:"categoryLabel"`
	Category       string         `json:"category"`
	Watermark      *watermarkBody `json:"watermark"`
	WatermarkText  string         `json:"watermarkText"`
	WatermarkLogo  string         `json:"watermarkLogo"`
	WatermarkPos   string         `json:"watermarkPosition"`
	CustomPose     string         `json:"customPose"`
	CustomFurnit   string         `json:"customFurniture"`
	CustomMakeup   string         `json:"customMakeup"`
	CustomHair     string         `json:"customHairColor"`
	Debug          bool           `json:"debug"`
}

// normalize folds the accepted spellings into one canonical request.
func (b generateRequestBody) normalize(caller middleware.Caller, requestID string) domain.GenerationRequest {
	ids := make([]string, 0, len(b.EnhancementIDs)+len(b.Enhancements)+1)
	ids = append(ids, b.EnhancementIDs...)
	ids = append(ids, b.Enhancements...)
	ids = append(ids, b.Enhancement)

	wm := domain.Watermark{
		Text:     b.WatermarkText,
		LogoRef:  b.WatermarkLogo,
		Position: b.WatermarkPos,
	}
	if b.Watermark != nil {
		wm = domain.Watermark{
			Kind:     domain.WatermarkKind(firstNonEmpty(b.Watermark.Kind, b.Watermark.Type)),
			Text:     b.Watermark.Text,
			LogoRef:  firstNonEmpty(b.Watermark.LogoRef, b.Watermark.LogoURL),
			Position: firstNonEmpty(b.Watermark.Position, b.WatermarkPos),
		}
	}

	return domain.GenerationRequest{
		RequestID:      requestID,
		CallerID:       caller.ID,
		CallerEmail:    caller.Email,
		SourceImage:    firstNonEmpty(b.SourceImage, b.ImageURL, b.ImageURLSnake, b.StoragePath),
		EnhancementIDs: orderedSet(ids),
		CategoryLabel:  firstNonEmpty(b.CategoryLabel, b.Category),
		Watermark:      wm.Normalize(),
		Custom: domain.Customizations{
			Pose:      strings.TrimSpace(b.CustomPose),
			Furniture: strings.TrimSpace(b.CustomFurnit),
			Makeup:    strings.TrimSpace(b.CustomMakeup),
			HairColor: strings.TrimSpace(b.CustomHair),
		},
		Debug: b.Debug,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// orderedSet trims ids, drops blanks and keeps the first occurrence of each.
func orderedSet(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type generateResponse struct {
	GeneratedImageURL string   `json:"generatedImageUrl"`
	PromptUsed        string   `json:"promptUsed"`
	TaskID            string   `json:"taskId"`
	Variant           string   `json:"variant"`
	Warnings          []string `json:"warnings,omitempty"`
}

type debugResponse struct {
	Debug      bool         `json:"debug"`
	PromptUsed string       `json:"promptUsed"`
	ImageURLs  []string     `json:"imageUrls"`
	Variant    string       `json:"variant"`
	Payload    *kie.Payload `json:"payload"`
}

// Generate runs one enhancement end to end and answers with the stored image.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var body generateRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGenerateBody)).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, domain.ErrValidation.Error(), "request body too large")
			return
		}
		a.error(w, http.StatusBadRequest, domain.ErrValidation.Error(), "invalid JSON payload")
		return
	}
	if debug, err := strconv.ParseBool(r.URL.Query().Get("debug")); err == nil && debug {
		body.Debug = true
	}

	req := body.normalize(a.currentCaller(r), requestID(r))
	res, err := a.Generator.Generate(r.Context(), req)
	if err != nil {
		a.writeGenerationError(w, r, err)
		return
	}

	if res.Debug {
		a.json(w, http.StatusOK, debugResponse{
			Debug:      true,
			PromptUsed: res.PromptUsed,
			ImageURLs:  res.ImageURLs,
			Variant:    string(res.Variant),
			Payload:    res.Payload,
		})
		return
	}

	resp := generateResponse{
		GeneratedImageURL: res.GeneratedURL,
		PromptUsed:        res.PromptUsed,
		TaskID:            res.TaskID,
		Variant:           string(res.Variant),
	}
	for _, warning := range res.Warnings {
		resp.Warnings = append(resp.Warnings, warning.Stage)
	}
	a.json(w, http.StatusOK, resp)
}

type enhancementItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
}

// EnhancementMenu lists the active templates, optionally for one category.
func (a *App) EnhancementMenu(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	templates, err := a.Templates.ListActive(r.Context(), category)
	if err != nil {
		a.log().Error().Err(err).Msg("handlers: list enhancements")
		a.error(w, http.StatusInternalServerError, "internal error", "failed to load enhancements")
		return
	}
	items := make([]enhancementItem, 0, len(templates))
	for _, t := range templates {
		items = append(items, enhancementItem{ID: t.EnhancementID, Title: t.Title, Category: t.Category})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

type taskStatusResponse struct {
	TaskID    string    `json:"taskId"`
	State     string    `json:"state"`
	ResultURL string    `json:"resultUrl,omitempty"`
	Failure   string    `json:"failure,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TaskStatus reports the journal entry of one of the caller's tasks, e.g.
// after a gateway timeout cut the generate call short.
func (a *App) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "task_id"))
	caller := a.currentCaller(r)
	job, err := a.Jobs.GetByTaskID(r.Context(), taskID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not found", "task not found")
		return
	case err != nil:
		a.log().Error().Err(err).Str("task_id", taskID).Msg("handlers: load task")
		a.error(w, http.StatusInternalServerError, "internal error", "failed to load task")
		return
	}
	if job.UserID != caller.ID {
		a.error(w, http.StatusNotFound, "not found", "task not found")
		return
	}

	resp := taskStatusResponse{
		TaskID:    job.TaskID,
		State:     string(job.State),
		Failure:   job.Failure,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.State == domain.JobStateSucceeded {
		resp.ResultURL = a.publicURL(job.ResultURL)
	}
	a.json(w, http.StatusOK, resp)
}

func requestID(r *http.Request) string {
	return middleware.RequestIDFromContext(r.Context())
}
