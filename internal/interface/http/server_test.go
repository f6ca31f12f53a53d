package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ipu-results/result-engine/internal/application/command"
	"github.com/ipu-results/result-engine/internal/application/query"
	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/grading"
	"github.com/ipu-results/result-engine/internal/domain/record"
	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/internal/infrastructure/external/portal"
	"github.com/ipu-results/result-engine/internal/interface/http/handlers"
	"github.com/ipu-results/result-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeCaptcha struct {
	captcha portal.Captcha
	err     error
	got     command.FetchCaptchaCommand
}

func (f *fakeCaptcha) Handle(_ context.Context, cmd command.FetchCaptchaCommand) (portal.Captcha, error) {
	f.got = cmd
	return f.captcha, f.err
}

type fakeLogin struct {
	result *command.LoginResult
	err    error
	got    command.LoginCommand
	calls  int
}

func (f *fakeLogin) Handle(_ context.Context, cmd command.LoginCommand) (*command.LoginResult, error) {
	f.calls++
	f.got = cmd
	return f.result, f.err
}

type fakeRecords struct {
	got query.BuildRecordQuery
	err error
}

func (f *fakeRecords) Handle(_ context.Context, q query.BuildRecordQuery) (*record.ProcessedRecord, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	cgpa := 7.67
	return &record.ProcessedRecord{CGPA: &cgpa, HasCompleteCredits: true}, nil
}

type fakeCatalog struct {
	items []credit.Item
}

func (f *fakeCatalog) Upsert(_ context.Context, items []credit.Item) (int, error) {
	f.items = items
	return len(items), nil
}

type stubSource map[shared.PaperCode]credit.Entry

func (s stubSource) Lookup(_ context.Context, codes []shared.PaperCode) (credit.Catalog, error) {
	out := credit.Catalog{}
	for _, c := range codes {
		if e, ok := s[c]; ok {
			out[c] = e
		}
	}
	return out, nil
}

type fixture struct {
	captcha *fakeCaptcha
	login   *fakeLogin
	records *fakeRecords
	catalog *fakeCatalog
	server  *Server
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.EnableMetrics = false
	cfg.AdminKeyHash = string(hash)
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		captcha: &fakeCaptcha{},
		login:   &fakeLogin{},
		records: &fakeRecords{},
		catalog: &fakeCatalog{},
	}
	source := stubSource{"HS-101": credit.NewEntry(4, nil)}
	f.server = NewServer(cfg, Dependencies{
		FetchCaptcha:  f.captcha,
		Login:         f.login,
		BuildRecord:   f.records,
		LookupCredits: query.NewLookupCreditsHandler(source, nil),
		CalculateCGPA: query.NewCalculateCGPAHandler(),
		Catalog:       f.catalog,
		Logger:        logger.Discard(),
	})
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func withSession(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "JSESSIONID", Value: "abc123"})
	return req
}

// ══════════════════════════════════════════════════════════════════════════════
// CAPTCHA
// ══════════════════════════════════════════════════════════════════════════════

func TestCaptcha_SetsSessionCookie(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SecureCookies = true })
	f.captcha.captcha = portal.Captcha{
		Image:   []byte{0x89, 'P', 'N', 'G'},
		Session: portal.SessionFromCookies([]*http.Cookie{{Name: "JSESSIONID", Value: "fresh"}}),
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/captcha", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	c := cookieNamed(rec, "JSESSIONID")
	require.NotNil(t, c)
	assert.Equal(t, "fresh", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 600, c.MaxAge)
}

func TestCaptcha_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unavailable", shared.ErrPortalUnavailable, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{"timeout", shared.ErrPortalTimeout, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.captcha.err = tt.err

			rec := f.do(httptest.NewRequest(http.MethodGet, "/captcha", nil))

			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN
// ══════════════════════════════════════════════════════════════════════════════

const loginBody = `{"enrollmentNumber":"01234567890","password":"secret","captcha":"x7k2"}`

func TestLogin_Success(t *testing.T) {
	f := newFixture(t, nil)
	f.login.result = &command.LoginResult{
		Results:     []record.RawRow{{PaperCode: "ES-101"}},
		SkippedRows: 1,
		Session:     portal.Session{State: portal.StateLoginSucceeded},
	}

	req := withSession(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(loginBody)))
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["results"], 1)
	assert.EqualValues(t, 1, body["skippedRows"])
	assert.NotContains(t, body, "record")

	assert.Equal(t, "01234567890", f.login.got.EnrollmentNumber)
	assert.False(t, f.login.got.Session.Empty())
	assert.False(t, f.login.got.IncludeRecord)

	c := cookieNamed(rec, "JSESSIONID")
	require.NotNil(t, c)
	assert.Less(t, c.MaxAge, 0)
}

func TestLogin_IncludeRecord(t *testing.T) {
	f := newFixture(t, nil)
	f.login.result = &command.LoginResult{Results: []record.RawRow{}}

	req := withSession(httptest.NewRequest(http.MethodPost, "/login?include=record", strings.NewReader(loginBody)))
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.login.got.IncludeRecord)
}

func TestLogin_IncludeRecordDisabled(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RecordOnLogin = false })
	f.login.result = &command.LoginResult{}

	req := withSession(httptest.NewRequest(http.MethodPost, "/login?include=record", strings.NewReader(loginBody)))
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.login.got.IncludeRecord)
	assert.Contains(t, rec.Body.String(), `"results":[]`)
}

func TestLogin_RecordErrorKeepsRows(t *testing.T) {
	f := newFixture(t, nil)
	f.login.result = &command.LoginResult{
		Results:     []record.RawRow{{PaperCode: "ES-101"}},
		RecordError: shared.ErrPortalUnavailable,
	}

	rec := f.do(withSession(httptest.NewRequest(http.MethodPost, "/login?include=record", strings.NewReader(loginBody))))

	require.Equal(t, http.StatusOK, rec.Code)
	var body LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.RecordError)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", body.RecordError.Code)
	assert.Len(t, body.Results, 1)
}

func TestLogin_ValidationDoesNotReachPortal(t *testing.T) {
	f := newFixture(t, nil)

	req := withSession(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"enrollmentNumber":"0123"}`)))
	rec := f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Contains(t, body.Error.Fields, "password")
	assert.Contains(t, body.Error.Fields, "captcha")
	assert.False(t, body.RefreshCaptcha)
	assert.Zero(t, f.login.calls)
	assert.Nil(t, cookieNamed(rec, "JSESSIONID"))
}

func TestLogin_PortalErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no session", shared.ErrPortalNoSession, http.StatusPreconditionRequired, "SESSION_REQUIRED"},
		{"captcha", shared.NewDomainError("portal", "Login", shared.ErrInvalidCaptcha, "wrong captcha"), http.StatusUnprocessableEntity, "INVALID_CAPTCHA"},
		{"credentials", shared.NewDomainError("portal", "Login", shared.ErrInvalidCredentials, "bad password"), http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"no results", shared.ErrPortalEmptyResults, http.StatusNotFound, "NO_RESULTS_FOUND"},
		{"malformed", shared.ErrPortalBadResponse, http.StatusBadGateway, "MALFORMED_UPSTREAM_DATA"},
		{"timeout", shared.ErrPortalTimeout, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"},
		{"unavailable", shared.ErrPortalUnavailable, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.login.err = tt.err
			f.login.result = &command.LoginResult{Session: portal.Session{State: portal.StateLoginFailed}}

			rec := f.do(withSession(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(loginBody))))

			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.True(t, body.RefreshCaptcha)
			if tt.code == "UPSTREAM_UNAVAILABLE" || tt.code == "UPSTREAM_TIMEOUT" {
				assert.Equal(t, "30", rec.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, rec.Header().Get("Retry-After"))
			}

			c := cookieNamed(rec, "JSESSIONID")
			require.NotNil(t, c)
			assert.Less(t, c.MaxAge, 0)
		})
	}
}

func TestLogin_LocalRefusalKeepsSessionCookie(t *testing.T) {
	f := newFixture(t, nil)
	f.login.err = shared.ErrPortalRateLimited
	f.login.result = &command.LoginResult{Session: portal.Session{State: portal.StateCaptchaIssued}}

	rec := f.do(withSession(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(loginBody))))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)
	assert.False(t, body.RefreshCaptcha)
	assert.Nil(t, cookieNamed(rec, "JSESSIONID"))
}

// ══════════════════════════════════════════════════════════════════════════════
// CREDITS, RECORDS, CGPA
// ══════════════════════════════════════════════════════════════════════════════

func TestCredits_Lookup(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/credits",
		strings.NewReader(`{"paperCodes":["hs101"," HS-101 ","CS999"]}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body query.LookupCreditsResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Requested)
	assert.Equal(t, 1, body.Found)
	assert.Equal(t, 4.0, body.Credits["HS-101"].Total)
}

func TestCredits_BareArray(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/credits", strings.NewReader(`["HS-101"]`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"found":1`)
}

func TestCredits_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty body", ``, http.StatusBadRequest},
		{"not json", `{paperCodes`, http.StatusBadRequest},
		{"missing codes", `{}`, http.StatusBadRequest},
		{"blank codes", `{"paperCodes":["  "]}`, http.StatusBadRequest},
		{"too many", `{"paperCodes":[` + strings.TrimSuffix(strings.Repeat(`"A1",`, query.MaxPaperCodes+1), ",") + `]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.do(httptest.NewRequest(http.MethodPost, "/credits", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Error.Code)
		})
	}
}

func TestRecords_PassesOverrides(t *testing.T) {
	f := newFixture(t, nil)

	body := `{"results":[{"papercode":"HS101","euno":1}],"manualCredits":{"type":"semester","semesterCredits":{"1":20}}}`
	rec := f.do(httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.records.got.Rows, 1)
	require.NotNil(t, f.records.got.Overrides)
	assert.Equal(t, record.OverrideSemester, f.records.got.Overrides.Mode)
	assert.Equal(t, 20.0, f.records.got.Overrides.SemesterCredits[1])
	assert.Contains(t, rec.Body.String(), `"cgpa":7.67`)
}

func TestRecords_Validation(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/records",
		strings.NewReader(`{"results":[{}],"manualCredits":{"type":"bogus"}}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Contains(t, body.Error.Fields, "manualCredits.type")
}

func TestRecords_NoValidRows(t *testing.T) {
	f := newFixture(t, nil)
	f.records.err = shared.ErrNoValidRows

	rec := f.do(httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(`{"results":[{}]}`)))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "MALFORMED_UPSTREAM_DATA", decodeError(t, rec).Error.Code)
}

func TestCalculateCGPA(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/cgpa/calculate",
		strings.NewReader(`{"courses":[{"credits":4,"marks":92},{"credits":2,"marks":68}]}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body grading.CalculationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 9.33, body.CGPA)
	assert.Equal(t, 6.0, body.TotalCredits)
}

func TestCalculateCGPA_NoCredits(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/cgpa/calculate",
		strings.NewReader(`{"courses":[{"credits":0,"marks":92}]}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func TestAdminCredits(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"credits":[{"paperCode":"hs101","theory":3,"practical":1},{"paperCode":"cs-202","total":4}]}`

	t.Run("requires key", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodPut, "/admin/credits", strings.NewReader(body)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, f.catalog.items)
	})

	t.Run("upserts normalized items", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/admin/credits", strings.NewReader(body))
		req.Header.Set("X-API-Key", "admin-secret")
		rec := f.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"upserted":2}`, rec.Body.String())
		require.Len(t, f.catalog.items, 2)
		assert.Equal(t, shared.PaperCode("HS-101"), f.catalog.items[0].PaperCode)
		assert.Equal(t, 3.0, f.catalog.items[0].Theory)
		assert.Equal(t, shared.PaperCode("CS-202"), f.catalog.items[1].PaperCode)
		assert.Equal(t, 4.0, f.catalog.items[1].Theory)
	})
}

func TestAdminCredits_DisabledWithoutKey(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.AdminKeyHash = "" })

	req := httptest.NewRequest(http.MethodPut, "/admin/credits", strings.NewReader(`{}`))
	req.Header.Set("X-API-Key", "admin-secret")
	rec := f.do(req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE AND HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RateLimitPerMinute = 2 })
	t.Cleanup(f.server.rateLimiter.Stop)

	for i := 0; i < 2; i++ {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/live", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestCORS_ReflectsOrigin(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.AllowedOrigins = []string{"https://results.example"} })

	req := httptest.NewRequest(http.MethodOptions, "/login", nil)
	req.Header.Set("Origin", "https://results.example")
	rec := f.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://results.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestID_Propagated(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/captcha", nil)
	req.Header.Set("X-Request-ID", "req-42")
	f.captcha.err = shared.ErrPortalUnavailable
	rec := f.do(req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-42", decodeError(t, rec).RequestID)
}

func TestRecovery(t *testing.T) {
	f := newFixture(t, nil)
	f.server.router.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := f.do(httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Error.Code)
}

func TestHealth_Degraded(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil })
	checker.AddOptionalCheck("portal", func(context.Context) error { return shared.ErrPortalUnavailable })

	s := NewServer(DefaultConfig(), Dependencies{Logger: logger.Discard(), HealthChecker: checker})
	t.Cleanup(s.rateLimiter.Stop)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorStatus_TimeoutBeforeUnavailable(t *testing.T) {
	m := errorStatus(shared.ErrPortalTimeout)
	assert.Equal(t, http.StatusGatewayTimeout, m.status)
	assert.False(t, m.refresh)

	m = errorStatus(shared.ErrPortalNoSession)
	assert.True(t, m.refresh)
	assert.Equal(t, "no portal session, fetch a captcha first", m.message)
}
