package handlers

import (
	"net/http"

	"enhancer/internal/imagegen"
)

type quotaResponse struct {
	Email     string `json:"email,omitempty"`
	Period    string `json:"period"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

func (a *App) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	caller := a.currentCaller(r)
	key := imagegen.QuotaKey(caller.ID, caller.Email)
	if key == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "quota is tracked per account")
		return
	}
	status, err := a.Quota.Status(r.Context(), key)
	if err != nil {
		a.log().Error().Err(err).Str("user_id", caller.ID).Msg("handlers: load quota")
		a.error(w, http.StatusInternalServerError, "internal error", "failed to load quota")
		return
	}
	a.json(w, http.StatusOK, quotaResponse{
		Email:     imagegen.NormalizeEmail(caller.Email),
		Period:    status.Period,
		Used:      status.Used,
		Limit:     status.Limit,
		Remaining: status.Remaining(),
	})
}
