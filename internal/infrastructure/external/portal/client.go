// Package portal implements the university examination portal client: the
// captcha and login handshake that yields a student's result rows, and the
// subject credits endpoint used as a catalog source.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/record"
	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/internal/infrastructure/metrics"
	"github.com/ipu-results/result-engine/pkg/circuitbreaker"
	"github.com/ipu-results/result-engine/pkg/logger"
	"github.com/ipu-results/result-engine/pkg/retry"
)

// maxBodyBytes caps any portal response read into memory.
const maxBodyBytes = 8 << 20

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the portal client.
type ClientConfig struct {
	BaseURL string

	// LoginPagePath is fetched first when a captcha is requested without a
	// session, so the portal issues its session cookie.
	LoginPagePath string
	CaptchaPath   string
	LoginPath     string
	CreditsPath   string

	// Timeout bounds each outbound call.
	Timeout   time.Duration
	UserAgent string

	RateLimiterConfig RateLimiterConfig

	BreakerThreshold int
	BreakerCoolDown  time.Duration

	// HTTPClient overrides the default transport. Its Timeout is ignored in
	// favour of Timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           strings.TrimRight(baseURL, "/"),
		LoginPagePath:     "/",
		CaptchaPath:       "/api/public/result/captcha",
		LoginPath:         "/api/public/result/login",
		CreditsPath:       "/api/public/subjects/credits",
		Timeout:           12 * time.Second,
		UserAgent:         "result-engine/1.0",
		RateLimiterConfig: DefaultRateLimiterConfig(),
		BreakerThreshold:  5,
		BreakerCoolDown:   30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Captcha is a captcha image bound to the session that must submit it.
type Captcha struct {
	Image       []byte
	ContentType string
	Session     Session
}

// Credentials are the values a student types on the login form.
type Credentials struct {
	EnrollmentNumber string
	Password         string
	Captcha          string
}

// LoginResult carries the portal's raw rows and the spent session.
type LoginResult struct {
	Rows    []record.RawRow
	Session Session
}

// Client is the examination portal client. It holds no per-user state.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *RateLimiter
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	sessions   *keyedMutex
}

var _ credit.Source = (*Client)(nil)

// NewClient creates a new portal client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 12 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	// Redirects are followed but cookies are handled per session, never jarred.
	httpClient = &http.Client{
		Transport:     httpClient.Transport,
		CheckRedirect: httpClient.CheckRedirect,
	}

	log := config.Logger.With(logger.Component("portal"))
	breaker := circuitbreaker.PortalBreaker(
		config.BreakerThreshold,
		config.BreakerCoolDown,
		isOutage,
		func(name string, from, to circuitbreaker.State) {
			metrics.SetCircuitState(name, int(to))
			log.Warn("portal circuit state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	)

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     log,
		limiter:    NewRateLimiter(config.RateLimiterConfig),
		breaker:    breaker,
		retrier:    retry.PortalRetrier(isRetryableRead),
		sessions:   newKeyedMutex(),
	}
}

// isOutage reports errors that say something about the portal's health.
func isOutage(err error) bool {
	return errors.Is(err, shared.ErrUpstreamUnavailable)
}

// isRetryableRead reports read failures worth another attempt. A timeout has
// already spent the whole call budget and a local refusal would only repeat.
func isRetryableRead(err error) bool {
	return isOutage(err) && !errors.Is(err, shared.ErrUpstreamTimeout) && reachedPortal(err)
}

// localRefusal marks a call that was refused before any request left the
// client: the rate limiter, an open circuit or a cancelled session lock wait.
type localRefusal struct{ err error }

func (e *localRefusal) Error() string { return e.err.Error() }
func (e *localRefusal) Unwrap() error { return e.err }

func refused(err error) error {
	return &localRefusal{err: err}
}

// reachedPortal reports whether a failed call got as far as the portal.
func reachedPortal(err error) bool {
	var lr *localRefusal
	return !errors.As(err, &lr)
}

// ══════════════════════════════════════════════════════════════════════════════
// CAPTCHA AND LOGIN
// ══════════════════════════════════════════════════════════════════════════════

// FetchCaptcha returns a fresh captcha. Without a session cookie the login
// page is requested first so the portal issues one.
func (c *Client) FetchCaptcha(ctx context.Context, session Session) (Captcha, error) {
	start := time.Now()
	captcha, err := c.fetchCaptcha(ctx, session)
	metrics.ObservePortal("captcha", start, err)
	if err != nil {
		c.logger.Warn("captcha fetch failed", logger.Err(err), logger.Latency(time.Since(start)))
		return Captcha{}, err
	}
	return captcha, nil
}

func (c *Client) fetchCaptcha(ctx context.Context, session Session) (Captcha, error) {
	unlock, err := c.sessions.Lock(ctx, session.Key())
	if err != nil {
		return Captcha{}, refused(transportError("Captcha", err))
	}
	defer unlock()

	if session.Empty() {
		resp, err := c.send(ctx, "LoginPage", http.MethodGet, c.config.LoginPagePath, session, nil, "text/html")
		if err != nil {
			return Captcha{}, err
		}
		session = session.Merge(resp.response)
		if !resp.ok() {
			return Captcha{}, statusError("LoginPage", resp.status, resp.body)
		}
	}

	var out Captcha
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		resp, err := c.send(ctx, "Captcha", http.MethodGet, c.config.CaptchaPath, session, nil, "image/*")
		if err != nil {
			return err
		}
		if !resp.ok() {
			return statusError("Captcha", resp.status, resp.body)
		}
		if len(resp.body) == 0 {
			return retry.Permanent(shared.WrapError("portal", "Captcha", shared.ErrPortalBadResponse, "captcha image is empty", nil))
		}
		contentType := resp.response.Header.Get("Content-Type")
		if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
			contentType = "image/png"
		}
		out = Captcha{
			Image:       resp.body,
			ContentType: contentType,
			Session:     session.Merge(resp.response).withState(StateCaptchaIssued),
		}
		return nil
	})
	if err != nil {
		return Captcha{}, err
	}
	if out.Session.Empty() {
		return Captcha{}, shared.WrapError("portal", "Captcha", shared.ErrPortalBadResponse, "portal issued no session cookie", nil)
	}
	return out, nil
}

// Login submits the credentials with the session's captcha. It is attempted
// exactly once: the captcha answer is single use, so once the request reaches
// the portal the returned session is spent whatever the outcome. A call
// refused locally returns the session unchanged.
func (c *Client) Login(ctx context.Context, session Session, creds Credentials) (LoginResult, error) {
	start := time.Now()
	result, err := c.login(ctx, session, creds)
	metrics.ObservePortal("login", start, err)

	attrs := []any{logger.Enrollment(creds.EnrollmentNumber), logger.Latency(time.Since(start))}
	if err != nil {
		if shared.IsUpstream(err) {
			c.logger.Warn("portal login failed", append(attrs, logger.Err(err))...)
		} else {
			c.logger.Info("portal login failed", append(attrs, logger.Err(err))...)
		}
		result.Session = session
		if reachedPortal(err) {
			result.Session = session.withState(StateLoginFailed)
		}
		return result, err
	}
	c.logger.Info("portal login succeeded", append(attrs, logger.Count("rows", len(result.Rows)))...)
	return result, nil
}

func (c *Client) login(ctx context.Context, session Session, creds Credentials) (LoginResult, error) {
	if session.Empty() || session.State.Spent() {
		return LoginResult{}, refused(shared.ErrPortalNoSession)
	}

	unlock, err := c.sessions.Lock(ctx, session.Key())
	if err != nil {
		return LoginResult{}, refused(transportError("Login", err))
	}
	defer unlock()

	body := LoginRequestDTO{
		EnrollmentNumber: strings.TrimSpace(creds.EnrollmentNumber),
		Password:         creds.Password,
		Captcha:          strings.TrimSpace(creds.Captcha),
	}
	resp, err := c.send(ctx, "Login", http.MethodPost, c.config.LoginPath, session, body, "application/json")
	if err != nil {
		return LoginResult{}, err
	}
	if !resp.ok() {
		return LoginResult{}, loginRejection(resp.status, resp.body)
	}

	rows, err := decodeLogin(resp.body)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Rows:    rows,
		Session: session.Merge(resp.response).withState(StateLoginSucceeded),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CREDITS
// ══════════════════════════════════════════════════════════════════════════════

// Lookup asks the portal's credits endpoint for the given codes.
func (c *Client) Lookup(ctx context.Context, codes []shared.PaperCode) (credit.Catalog, error) {
	if len(codes) == 0 {
		return credit.Catalog{}, nil
	}

	start := time.Now()
	req := CreditsRequestDTO{PaperCodes: make([]string, len(codes))}
	for i, code := range codes {
		req.PaperCodes[i] = code.String()
	}

	catalog, err := retry.Value(ctx, c.retrier, func(ctx context.Context) (credit.Catalog, error) {
		resp, err := c.send(ctx, "Credits", http.MethodPost, c.config.CreditsPath, Session{}, req, "application/json")
		if err != nil {
			return nil, err
		}
		if !resp.ok() {
			return nil, statusError("Credits", resp.status, resp.body)
		}
		var dto CreditsResponseDTO
		if err := json.Unmarshal(resp.body, &dto); err != nil {
			return nil, retry.Permanent(shared.WrapError("portal", "Credits", shared.ErrPortalBadResponse, "credits response could not be decoded", err))
		}
		return toCatalog(dto), nil
	})
	metrics.ObservePortal("credits", start, err)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("portal credits fetched",
		logger.Count("requested", len(codes)),
		logger.Count("found", len(catalog)),
		logger.Latency(time.Since(start)))
	return catalog, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Ping fails while the circuit breaker is open.
func (c *Client) Ping(ctx context.Context) error {
	snap := c.breaker.Snapshot()
	if snap.State == circuitbreaker.StateOpen.String() {
		return fmt.Errorf("portal: %w since %s after %d consecutive failures",
			circuitbreaker.ErrCircuitOpen, snap.OpenedAt.Format(time.RFC3339), snap.ConsecutiveFailures)
	}
	return ctx.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type response struct {
	response *http.Response
	status   int
	body     []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// send performs one outbound call under the rate limiter, circuit breaker
// and per-call timeout. Only transport failures and 5xx replies count
// against the breaker; the caller classifies everything else.
func (c *Client) send(ctx context.Context, op, method, path string, session Session, body any, accept string) (response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return response{}, refused(transportError(op, err))
		}
		return response{}, refused(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	out, err := circuitbreaker.Call(ctx, c.breaker, func(ctx context.Context) (response, error) {
		resp, err := c.do(ctx, op, method, path, session, body, accept)
		if err == nil && resp.status >= 500 {
			return resp, statusError(op, resp.status, resp.body)
		}
		return resp, err
	})

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyProbes):
		return response{}, refused(shared.WrapError("portal", op, shared.ErrPortalUnavailable, "examination portal is temporarily disabled after repeated failures", err))
	case err != nil && out.status >= 500:
		// Hand 5xx replies back so the caller can classify the body.
		return out, nil
	case err != nil:
		return response{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, session Session, body any, accept string) (response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return response{}, fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return response{}, fmt.Errorf("create %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	session.apply(req)

	c.logger.Debug("portal request", logger.Operation(op), logger.String("method", method), logger.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, transportError(op, err)
	}
	return response{response: resp, status: resp.StatusCode, body: data}, nil
}
