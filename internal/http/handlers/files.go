package handlers

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"enhancer/internal/storage"

	"github.com/go-chi/chi/v5"
)

// publicPrefix holds the model reference photos the provider fetches without
// a signature.
const publicPrefix = "references/"

// ServeFile serves a stored object behind a signed URL.
func (a *App) ServeFile(w http.ResponseWriter, r *http.Request) {
	key, err := storage.SanitizeKey(chi.URLParam(r, "*"))
	if err != nil {
		a.error(w, http.StatusNotFound, "not found", "")
		return
	}
	if !strings.HasPrefix(key, publicPrefix) {
		q := r.URL.Query()
		switch err := a.Signer.Verify(key, q.Get("expires"), q.Get("sig")); {
		case errors.Is(err, storage.ErrSignatureExpired):
			a.error(w, http.StatusForbidden, "forbidden", "link expired")
			return
		case err != nil:
			a.error(w, http.StatusForbidden, "forbidden", "invalid signature")
			return
		}
	}

	data, err := a.Store.Read(r.Context(), key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		a.error(w, http.StatusNotFound, "not found", "")
		return
	case err != nil:
		a.log().Error().Err(err).Str("key", key).Msg("handlers: read file")
		a.error(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	ctype := mime.TypeByExtension(path.Ext(key))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
