package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/pkg/circuitbreaker"
	"github.com/ipu-results/result-engine/pkg/logger"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type fakePortal struct {
	pageHits    atomic.Int32
	captchaHits atomic.Int32
	loginHits   atomic.Int32

	loginStatus int
	loginBody   string
	captchaFail atomic.Int32
	lastLogin   LoginRequestDTO
	lastCookie  string
}

func (f *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		f.pageHits.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "tracking", Value: "nope", Path: "/"})
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("GET /api/public/result/captcha", func(w http.ResponseWriter, r *http.Request) {
		f.captchaHits.Add(1)
		if f.captchaFail.Load() > 0 {
			f.captchaFail.Add(-1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if c, err := r.Cookie("JSESSIONID"); err == nil {
			f.lastCookie = c.Value
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})
	mux.HandleFunc("POST /api/public/result/login", func(w http.ResponseWriter, r *http.Request) {
		f.loginHits.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&f.lastLogin)
		if c, err := r.Cookie("JSESSIONID"); err == nil {
			f.lastCookie = c.Value
		}
		status := f.loginStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(f.loginBody))
	})
	mux.HandleFunc("POST /api/public/subjects/credits", func(w http.ResponseWriter, r *http.Request) {
		var req CreditsRequestDTO
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := CreditsResponseDTO{Credits: map[string]CreditDTO{}, Requested: len(req.PaperCodes)}
		for _, code := range req.PaperCodes {
			if code == "ES-101" {
				theory, practical := 3.0, 1.0
				resp.Credits[code] = CreditDTO{Theory: &theory, Practical: &practical}
			}
			if code == "HS-101" {
				total := 2.0
				resp.Credits["hs101"] = CreditDTO{Credits: &total}
			}
		}
		resp.Found = len(resp.Credits)
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newTestClient(t *testing.T, portal *fakePortal) *Client {
	return newTestClientWith(t, portal, nil)
}

func newTestClientWith(t *testing.T, portal *fakePortal, configure func(*ClientConfig)) *Client {
	t.Helper()
	srv := httptest.NewServer(portal.handler())
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL)
	cfg.Logger = logger.Discard()
	cfg.Timeout = 2 * time.Second
	if configure != nil {
		configure(&cfg)
	}
	return NewClient(cfg)
}

func issuedSession() Session {
	return SessionFromCookies([]*http.Cookie{{Name: "JSESSIONID", Value: "abc123"}})
}

func TestFetchCaptcha_PrefetchesLoginPageWithoutSession(t *testing.T) {
	portal := &fakePortal{}
	client := newTestClient(t, portal)

	captcha, err := client.FetchCaptcha(context.Background(), Session{})

	require.NoError(t, err)
	assert.Equal(t, pngBytes, captcha.Image)
	assert.Equal(t, "image/png", captcha.ContentType)
	assert.Equal(t, StateCaptchaIssued, captcha.Session.State)
	assert.Equal(t, int32(1), portal.pageHits.Load())
	assert.Equal(t, "abc123", portal.lastCookie)

	cookies := captcha.Session.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "JSESSIONID", cookies[0].Name)
}

func TestFetchCaptcha_ReusesExistingSession(t *testing.T) {
	portal := &fakePortal{}
	client := newTestClient(t, portal)

	_, err := client.FetchCaptcha(context.Background(), issuedSession())

	require.NoError(t, err)
	assert.Equal(t, int32(0), portal.pageHits.Load())
}

func TestFetchCaptcha_RetriesOnceOnBadGateway(t *testing.T) {
	portal := &fakePortal{}
	portal.captchaFail.Store(1)
	client := newTestClient(t, portal)

	_, err := client.FetchCaptcha(context.Background(), issuedSession())

	require.NoError(t, err)
	assert.Equal(t, int32(2), portal.captchaHits.Load())
}

func TestFetchCaptcha_Unavailable(t *testing.T) {
	portal := &fakePortal{}
	portal.captchaFail.Store(10)
	client := newTestClient(t, portal)

	_, err := client.FetchCaptcha(context.Background(), issuedSession())

	assert.ErrorIs(t, err, shared.ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, shared.ErrUpstreamTimeout)
}

func TestFetchCaptcha_Timeout(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL)
	cfg.Logger = logger.Discard()
	cfg.Timeout = 50 * time.Millisecond
	client := NewClient(cfg)

	_, err := client.FetchCaptcha(context.Background(), issuedSession())

	assert.ErrorIs(t, err, shared.ErrUpstreamTimeout)
	assert.ErrorIs(t, err, shared.ErrPortalTimeout)
	assert.Equal(t, int32(1), hits.Load(), "a timed out captcha read is not repeated")
}

func TestLogin_Success(t *testing.T) {
	portal := &fakePortal{loginBody: `{"results":[{"nrollno":"01234567890","euno":1,"papercode":"ES101","moderatedprint":"80","rmonth":6,"ryear":2023,"eugpa":8.2}]}`}
	client := newTestClient(t, portal)

	result, err := client.Login(context.Background(), issuedSession(), Credentials{
		EnrollmentNumber: " 01234567890 ",
		Password:         "secret",
		Captcha:          "x7k2",
	})

	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, StateLoginSucceeded, result.Session.State)
	assert.Equal(t, "01234567890", portal.lastLogin.EnrollmentNumber)
	assert.Equal(t, "x7k2", portal.lastLogin.Captcha)
	assert.Equal(t, "abc123", portal.lastCookie)
}

func TestLogin_Classification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"wrong captcha", http.StatusBadRequest, `{"error":"Invalid Captcha"}`, shared.ErrInvalidCaptcha},
		{"wrong password", http.StatusUnauthorized, `{"message":"Invalid credentials"}`, shared.ErrInvalidCredentials},
		{"rejection in 200", http.StatusOK, `{"error":"Captcha expired"}`, shared.ErrInvalidCaptcha},
		{"server error", http.StatusInternalServerError, `oops`, shared.ErrPortalUnavailable},
		{"throttled", http.StatusTooManyRequests, `slow down`, shared.ErrUpstreamUnavailable},
		{"empty results", http.StatusOK, `{"results":[]}`, shared.ErrNoResultsFound},
		{"bare empty array", http.StatusOK, `[]`, shared.ErrNoResultsFound},
		{"garbage", http.StatusOK, `<html>`, shared.ErrPortalBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			portal := &fakePortal{loginStatus: tt.status, loginBody: tt.body}
			client := newTestClient(t, portal)

			result, err := client.Login(context.Background(), issuedSession(), Credentials{
				EnrollmentNumber: "01234567890", Password: "p", Captcha: "c",
			})

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, StateLoginFailed, result.Session.State)
			assert.Equal(t, int32(1), portal.loginHits.Load(), "login must never be retried")
		})
	}
}

func TestLogin_RequiresSession(t *testing.T) {
	portal := &fakePortal{}
	client := newTestClient(t, portal)

	_, err := client.Login(context.Background(), Session{}, Credentials{})
	assert.ErrorIs(t, err, shared.ErrSessionRequired)

	spent := issuedSession().withState(StateLoginFailed)
	result, err := client.Login(context.Background(), spent, Credentials{})
	assert.ErrorIs(t, err, shared.ErrSessionRequired)
	assert.Equal(t, StateLoginFailed, result.Session.State)
	assert.Equal(t, int32(0), portal.loginHits.Load())
}

func TestLogin_RateLimitedKeepsCaptchaUsable(t *testing.T) {
	portal := &fakePortal{}
	client := newTestClientWith(t, portal, func(cfg *ClientConfig) {
		cfg.RateLimiterConfig = RateLimiterConfig{RequestsPerSecond: 0.01, Burst: 1, MaxWait: 10 * time.Millisecond}
	})

	captcha, err := client.FetchCaptcha(context.Background(), issuedSession())
	require.NoError(t, err)

	result, err := client.Login(context.Background(), captcha.Session, Credentials{
		EnrollmentNumber: "01234567890", Password: "p", Captcha: "c",
	})

	assert.ErrorIs(t, err, shared.ErrRateLimited)
	assert.Equal(t, StateCaptchaIssued, result.Session.State)
	assert.False(t, result.Session.State.Spent())
	assert.Equal(t, int32(0), portal.loginHits.Load())
}

func TestLogin_OpenCircuitKeepsCaptchaUsable(t *testing.T) {
	portal := &fakePortal{}
	portal.captchaFail.Store(10)
	client := newTestClientWith(t, portal, func(cfg *ClientConfig) {
		cfg.BreakerThreshold = 1
		cfg.BreakerCoolDown = time.Hour
	})

	_, err := client.FetchCaptcha(context.Background(), issuedSession())
	require.ErrorIs(t, err, shared.ErrUpstreamUnavailable)
	assert.Equal(t, int32(1), portal.captchaHits.Load(), "an open circuit is not retried")
	assert.ErrorIs(t, client.Ping(context.Background()), circuitbreaker.ErrCircuitOpen)

	session := issuedSession().withState(StateCaptchaIssued)
	result, err := client.Login(context.Background(), session, Credentials{
		EnrollmentNumber: "01234567890", Password: "p", Captcha: "c",
	})

	assert.ErrorIs(t, err, shared.ErrUpstreamUnavailable)
	assert.Equal(t, StateCaptchaIssued, result.Session.State)
	assert.Equal(t, int32(0), portal.loginHits.Load())
}

func TestLookup_MapsCatalog(t *testing.T) {
	client := newTestClient(t, &fakePortal{})

	catalog, err := client.Lookup(context.Background(), []shared.PaperCode{"ES-101", "HS-101", "XX-999"})

	require.NoError(t, err)
	require.Len(t, catalog, 2)
	assert.Equal(t, 4.0, catalog["ES-101"].Total)
	assert.Equal(t, 3.0, catalog["ES-101"].Theory)
	assert.Equal(t, 2.0, catalog["HS-101"].Total)
	assert.False(t, catalog["HS-101"].IsFallback)
}

func TestSession_FiltersCookies(t *testing.T) {
	s := SessionFromCookies([]*http.Cookie{
		{Name: "JSESSIONID", Value: "a"},
		{Name: "JSESSION_ROUTE", Value: "b"},
		{Name: "theme", Value: "dark"},
		{Name: "JSESSIONX", Value: ""},
	})

	assert.Equal(t, "JSESSIONID=a; JSESSION_ROUTE=b", s.Key())
	assert.Equal(t, StateCaptchaIssued, s.State)
	assert.True(t, SessionFromCookies(nil).Empty())
	assert.True(t, StateExpired.Spent())
	assert.False(t, StateCaptchaIssued.Spent())
}

func TestKeyedMutex_SerialisesSameKey(t *testing.T) {
	k := newKeyedMutex()
	ctx := context.Background()

	unlock, err := k.Lock(ctx, "s1")
	require.NoError(t, err)

	other, err := k.Lock(ctx, "s2")
	require.NoError(t, err)
	other()

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(short, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	again, err := k.Lock(ctx, "s1")
	require.NoError(t, err)
	again()
	assert.Empty(t, k.locks)
}

func TestRateLimiter(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 2, MaxWait: 10 * time.Millisecond})
	rl.now = func() time.Time { return now }
	rl.updated = now

	ctx := context.Background()
	require.NoError(t, rl.Wait(ctx))
	require.NoError(t, rl.Wait(ctx))
	assert.ErrorIs(t, rl.Wait(ctx), shared.ErrRateLimited)

	now = now.Add(time.Second)
	assert.NoError(t, rl.Wait(ctx))
}
