package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"enhancer/internal/domain"
	"enhancer/internal/imagegen"
	"enhancer/internal/infra"
	"enhancer/internal/middleware"
	"enhancer/internal/storage"
)

// Generator is satisfied by *imagegen.Orchestrator.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*imagegen.Result, error)
}

// App holds the dependencies shared by all handlers.
type App struct {
	Generator Generator
	Quota     *imagegen.QuotaGuard
	Templates domain.TemplateRepository
	History   domain.HistoryRepository
	Jobs      domain.JobRepository
	Store     *storage.FileStore
	Signer    *storage.Signer
	Logger    *infra.Logger
	// Ready reports dependency health for /v1/healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: code, Message: message})
}

func (a *App) log() *infra.Logger {
	if a.Logger == nil {
		return infra.NopLogger()
	}
	return a.Logger
}

func (a *App) currentCaller(r *http.Request) middleware.Caller {
	return middleware.CallerFromContext(r.Context())
}

// publicURL turns a stored reference into something a browser can open.
// Remote URLs pass through; storage keys get a fresh signature.
func (a *App) publicURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.Contains(ref, "://") || strings.HasPrefix(strings.ToLower(ref), "data:") || a.Signer == nil {
		return ref
	}
	signed, err := a.Signer.SignedURL(ref)
	if err != nil {
		a.log().Warn().Err(err).Str("key", ref).Msg("handlers: sign stored reference")
		return ""
	}
	return signed
}
