package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"enhancer/internal/storage"
	"enhancer/pkg/zip"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type historyItem struct {
	ID               string    `json:"id"`
	SourceImageURL   string    `json:"sourceImageUrl"`
	ResultImageURL   string    `json:"resultImageUrl"`
	EnhancementLabel string    `json:"enhancementLabel"`
	CategoryLabel    string    `json:"categoryLabel,omitempty"`
	PromptUsed       string    `json:"promptUsed"`
	CreatedAt        time.Time `json:"createdAt"`
}

func historyLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// ListHistory lists the caller's recent generations with freshly signed URLs.
func (a *App) ListHistory(w http.ResponseWriter, r *http.Request) {
	caller := a.currentCaller(r)
	records, err := a.History.ListByUser(r.Context(), caller.ID, historyLimit(r))
	if err != nil {
		a.log().Error().Err(err).Str("user_id", caller.ID).Msg("handlers: list history")
		a.error(w, http.StatusInternalServerError, "internal error", "failed to load history")
		return
	}
	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		items = append(items, historyItem{
			ID:               rec.ID,
			SourceImageURL:   a.publicURL(rec.SourceImagePath),
			ResultImageURL:   a.publicURL(rec.ResultImagePath),
			EnhancementLabel: rec.EnhancementLabel,
			CategoryLabel:    rec.CategoryLabel,
			PromptUsed:       rec.PromptUsed,
			CreatedAt:        rec.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// HistoryArchive zips the caller's stored results. Results that only exist
// at the provider are skipped.
func (a *App) HistoryArchive(w http.ResponseWriter, r *http.Request) {
	caller := a.currentCaller(r)
	records, err := a.History.ListByUser(r.Context(), caller.ID, maxHistoryLimit)
	if err != nil {
		a.log().Error().Err(err).Str("user_id", caller.ID).Msg("handlers: list history")
		a.error(w, http.StatusInternalServerError, "internal error", "failed to load history")
		return
	}

	var assets []zip.Asset
	for _, rec := range records {
		key := rec.ResultImagePath
		if key == "" || strings.Contains(key, "://") {
			continue
		}
		data, err := a.Store.Read(r.Context(), key)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				a.log().Warn().Err(err).Str("key", key).Msg("handlers: read archived result")
			}
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: path.Base(key),
			Modified: rec.CreatedAt,
			Data:     data,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not found", "no stored results to archive")
		return
	}

	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.log().Error().Err(err).Str("user_id", caller.ID).Msg("handlers: build archive")
		a.error(w, http.StatusInternalServerError, "internal error", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "enhanced-images.zip"))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
