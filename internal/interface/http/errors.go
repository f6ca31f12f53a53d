package http

import (
	"errors"
	"net/http"

	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/pkg/logger"
)

// mappedError is the HTTP rendition of an application error.
type mappedError struct {
	status  int
	code    string
	message string
	refresh bool
	fields  map[string]string
}

// errorStatus maps an error to its HTTP status and API code. Order matters:
// a timeout is also an outage, and the most specific kind wins.
func errorStatus(err error) mappedError {
	m := mappedError{refresh: shared.RequiresNewCaptcha(err)}

	var verr *validationError
	switch {
	case errors.As(err, &verr):
		m.status, m.code, m.message = http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed"
		m.fields = verr.fields
		return m
	case errors.Is(err, errBodyTooLarge):
		m.status, m.code, m.message = http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large"
		return m
	case errors.Is(err, shared.ErrSessionRequired):
		m.status, m.code = http.StatusPreconditionRequired, "SESSION_REQUIRED"
	case errors.Is(err, shared.ErrInvalidCaptcha):
		m.status, m.code = http.StatusUnprocessableEntity, "INVALID_CAPTCHA"
	case errors.Is(err, shared.ErrInvalidCredentials):
		m.status, m.code = http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, shared.ErrNoResultsFound):
		m.status, m.code = http.StatusNotFound, "NO_RESULTS_FOUND"
	case errors.Is(err, shared.ErrMalformedUpstreamData):
		m.status, m.code = http.StatusBadGateway, "MALFORMED_UPSTREAM_DATA"
	case errors.Is(err, shared.ErrUpstreamTimeout):
		m.status, m.code = http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
	case errors.Is(err, shared.ErrRateLimited):
		m.status, m.code = http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, shared.ErrUpstreamUnavailable):
		m.status, m.code = http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"
	case shared.IsValidation(err):
		m.status, m.code = http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, shared.ErrUnauthorized):
		m.status, m.code = http.StatusUnauthorized, "UNAUTHORIZED"
	case shared.IsNotFound(err):
		m.status, m.code = http.StatusNotFound, "NOT_FOUND"
	default:
		m.status, m.code, m.message = http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"
		return m
	}

	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		m.message = de.Message
	} else {
		m.message = http.StatusText(m.status)
	}
	return m
}

// writeError renders err. forceRefresh marks errors raised after a captcha
// was submitted, since that captcha can no longer be used.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, forceRefresh bool) {
	m := errorStatus(err)
	if m.status >= http.StatusInternalServerError {
		s.logger.WarnContext(r.Context(), "request failed",
			logger.String("route", r.Pattern),
			logger.Int("status", m.status),
			logger.Err(err),
		)
	}
	switch {
	case m.status == http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "60")
	case shared.IsRetryable(err):
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, m.status, ErrorResponse{
		Error:          APIError{Code: m.code, Message: m.message, Fields: m.fields},
		RefreshCaptcha: m.refresh || forceRefresh,
		RequestID:      getRequestID(r.Context()),
	})
}
