package http

import (
	"context"
	"net/http"
	"time"

	"github.com/ipu-results/result-engine/internal/application/command"
	"github.com/ipu-results/result-engine/internal/infrastructure/external/portal"
	"github.com/ipu-results/result-engine/internal/infrastructure/metrics"
	"github.com/ipu-results/result-engine/internal/interface/http/handlers"
	"github.com/ipu-results/result-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// HealthResponse represents health check response.
type HealthResponse struct {
	Status    string                           `json:"status"`
	Version   string                           `json:"version"`
	Uptime    string                           `json:"uptime"`
	Timestamp string                           `json:"timestamp"`
	Checks    map[string]handlers.CheckResult `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Version:   s.config.Version,
		Uptime:    s.Uptime().Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if s.deps.HealthChecker != nil {
		result := s.deps.HealthChecker.Check(r.Context())
		response.Checks = result.Checks
		switch {
		case !result.Ready:
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		case !result.Healthy:
			response.Status = "degraded"
		}
	}

	writeJSON(w, status, response)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if result := s.deps.HealthChecker.Check(r.Context()); !result.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ready":   false,
				"message": result.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"alive": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTAL PROXY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCaptcha proxies the portal captcha image and hands the portal
// session back as cookies.
func (s *Server) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	captcha, err := s.deps.FetchCaptcha.Handle(r.Context(), command.FetchCaptchaCommand{
		Session: sessionFromRequest(r),
	})
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}

	s.setSessionCookies(w, captcha.Session)

	contentType := captcha.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(captcha.Image)
}

// handleLogin submits the login form. Once the portal has been contacted the
// captcha is spent and the session cookie is expired whatever the outcome. A
// login refused before reaching the portal leaves the cookie usable.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, false)
		return
	}
	if err := validateStruct(req); err != nil {
		s.writeError(w, r, err, false)
		return
	}

	include := getQueryParam(r, "include", "") == "record"
	if include && !s.config.RecordOnLogin {
		include = false
	}

	session := sessionFromRequest(r)
	res, err := s.deps.Login.Handle(r.Context(), command.LoginCommand{
		Session:          session,
		EnrollmentNumber: req.EnrollmentNumber,
		Password:         req.Password,
		Captcha:          req.Captcha,
		IncludeRecord:    include,
	})
	spent := res != nil && res.Session.State.Spent()
	if spent {
		s.expireSessionCookies(w, r)
	}
	metrics.LoginOutcome(err)

	if err != nil {
		logger.FromContext(r.Context()).InfoContext(r.Context(), "login rejected",
			logger.Enrollment(req.EnrollmentNumber),
			logger.String("outcome", metrics.Outcome(err)),
		)
		s.writeError(w, r, err, spent)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// CREDITS AND RECORDS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	var req CreditsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, false)
		return
	}
	if err := validateStruct(req); err != nil {
		s.writeError(w, r, err, false)
		return
	}

	result, err := s.deps.LookupCredits.Handle(r.Context(), req.Query())
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	var req RecordsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, false)
		return
	}
	if err := validateStruct(req); err != nil {
		s.writeError(w, r, err, false)
		return
	}

	rec, err := s.deps.BuildRecord.Handle(r.Context(), req.Query())
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCalculateCGPA(w http.ResponseWriter, r *http.Request) {
	var req CalculateCGPARequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, false)
		return
	}
	if err := validateStruct(req); err != nil {
		s.writeError(w, r, err, false)
		return
	}

	result, err := s.deps.CalculateCGPA.Handle(r.Context(), req.Query())
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleUpsertCredits(w http.ResponseWriter, r *http.Request) {
	var req UpsertCreditsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, false)
		return
	}
	if err := validateStruct(req); err != nil {
		s.writeError(w, r, err, false)
		return
	}
	items, err := req.Items()
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	n, err := s.deps.Catalog.Upsert(ctx, items)
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}

	s.logger.InfoContext(r.Context(), "catalog entries upserted", logger.Count("items", n))
	writeJSON(w, http.StatusOK, UpsertCreditsResponse{Upserted: n})
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION COOKIES
// ══════════════════════════════════════════════════════════════════════════════

// sessionFromRequest rebuilds the portal session from the caller's cookies.
func sessionFromRequest(r *http.Request) portal.Session {
	return portal.SessionFromCookies(r.Cookies())
}

// setSessionCookies hands the portal session cookies to the caller.
func (s *Server) setSessionCookies(w http.ResponseWriter, session portal.Session) {
	maxAge := int(s.config.SessionMaxAge / time.Second)
	for _, c := range session.Cookies() {
		http.SetCookie(w, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: true,
			Secure:   s.config.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// expireSessionCookies clears every portal session cookie the caller sent.
func (s *Server) expireSessionCookies(w http.ResponseWriter, r *http.Request) {
	for _, c := range r.Cookies() {
		if !portal.IsSessionCookie(c.Name) {
			continue
		}
		http.SetCookie(w, &http.Cookie{
			Name:     c.Name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.config.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
