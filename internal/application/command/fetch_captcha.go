// Package command contains write operations (CQRS - Commands).
// Commands drive the examination portal handshake; each one advances a
// caller-held portal session.
package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ipu-results/result-engine/internal/infrastructure/external/portal"
	"github.com/ipu-results/result-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// Portal is the part of the examination portal client commands use.
type Portal interface {
	FetchCaptcha(ctx context.Context, session portal.Session) (portal.Captcha, error)
	Login(ctx context.Context, session portal.Session, creds portal.Credentials) (portal.LoginResult, error)
}

var _ Portal = (*portal.Client)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// FETCH CAPTCHA COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// FetchCaptchaCommand carries the session the caller already holds, if any.
type FetchCaptchaCommand struct {
	Session portal.Session
}

// FetchCaptchaHandler issues captchas.
type FetchCaptchaHandler struct {
	portal Portal
	logger *slog.Logger
}

// NewFetchCaptchaHandler creates a new handler.
func NewFetchCaptchaHandler(p Portal, log *slog.Logger) *FetchCaptchaHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &FetchCaptchaHandler{portal: p, logger: log}
}

// Handle fetches a captcha. A spent session is discarded so the portal
// issues a fresh cookie with the new captcha.
func (h *FetchCaptchaHandler) Handle(ctx context.Context, cmd FetchCaptchaCommand) (portal.Captcha, error) {
	session := cmd.Session
	if session.State.Spent() {
		session = portal.Session{}
	}

	captcha, err := h.portal.FetchCaptcha(ctx, session)
	if err != nil {
		return portal.Captcha{}, fmt.Errorf("fetch captcha: %w", err)
	}

	h.logger.DebugContext(ctx, "captcha issued",
		logger.Bool("new_session", session.Empty()),
		logger.Count("bytes", len(captcha.Image)),
	)
	return captcha, nil
}
