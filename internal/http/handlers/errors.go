package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"enhancer/internal/domain"
)

// upstreamRetryAfter is advertised when the provider rate limits us.
const upstreamRetryAfter = 30

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Current *int   `json:"current,omitempty"`
	Limit   *int   `json:"limit,omitempty"`
	Details string `json:"details,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
}

// writeGenerationError renders a pipeline error with the status the taxonomy
// assigns to it.
func (a *App) writeGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		quotaErr *domain.QuotaError
		valErr   *domain.ValidationError
		upErr    *domain.UpstreamError
	)
	switch {
	case errors.As(err, &valErr):
		a.json(w, http.StatusBadRequest, errorBody{Error: domain.ErrValidation.Error(), Message: valErr.Error()})
		return
	case errors.As(err, &quotaErr):
		current, limit := quotaErr.Current, quotaErr.Limit
		a.json(w, http.StatusForbidden, errorBody{
			Error:   domain.ErrQuotaExceeded.Error(),
			Message: "monthly generation limit reached",
			Current: &current,
			Limit:   &limit,
		})
		return
	case errors.As(err, &upErr):
		body := errorBody{Error: upErr.Kind.Error(), Details: upErr.Details(), TaskID: upErr.TaskID}
		status := upstreamStatus(upErr.Kind)
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", strconv.Itoa(upstreamRetryAfter))
			body.Message = "the image provider is busy, retry later"
		}
		a.json(w, status, body)
		return
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		return
	}

	a.log().Error().Err(err).
		Str("request_id", requestID(r)).
		Msg("handlers: generation failed")
	a.error(w, http.StatusInternalServerError, "internal error", "")
}

func upstreamStatus(kind error) int {
	switch {
	case errors.Is(kind, domain.ErrUpstreamRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(kind, domain.ErrUpstreamQuotaExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(kind, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
