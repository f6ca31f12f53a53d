package portal

import (
	"net/http"
	"sort"
	"strings"
)

// SessionState tracks where a portal session is in the captcha/login handshake.
type SessionState int

const (
	StateNoSession SessionState = iota
	StateCaptchaIssued
	StateLoginSucceeded
	StateLoginFailed
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateCaptchaIssued:
		return "captcha_issued"
	case StateLoginSucceeded:
		return "login_succeeded"
	case StateLoginFailed:
		return "login_failed"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Spent reports whether the session can no longer be used for a login.
func (s SessionState) Spent() bool {
	return s == StateLoginSucceeded || s == StateLoginFailed || s == StateExpired
}

// Session is the portal's session cookie set, carried by the caller between
// the captcha fetch and the single login attempt it authorises. The client
// never stores sessions.
type Session struct {
	cookies map[string]string
	State   SessionState
}

// IsSessionCookie reports whether the portal cookie name is forwarded.
func IsSessionCookie(name string) bool {
	return strings.HasPrefix(name, "JSESSION")
}

// SessionFromCookies builds a session from incoming cookies, keeping only the
// portal's session cookies. A session with at least one cookie is treated as
// having an issued captcha.
func SessionFromCookies(cookies []*http.Cookie) Session {
	s := Session{}
	for _, c := range cookies {
		s = s.with(c.Name, c.Value)
	}
	if !s.Empty() {
		s.State = StateCaptchaIssued
	}
	return s
}

func (s Session) with(name, value string) Session {
	if !IsSessionCookie(name) || value == "" {
		return s
	}
	next := make(map[string]string, len(s.cookies)+1)
	for k, v := range s.cookies {
		next[k] = v
	}
	next[name] = value
	s.cookies = next
	return s
}

// Merge returns the session updated with any session cookies set by resp.
func (s Session) Merge(resp *http.Response) Session {
	for _, c := range resp.Cookies() {
		s = s.with(c.Name, c.Value)
	}
	return s
}

// Empty reports whether the session holds no portal cookie.
func (s Session) Empty() bool {
	return len(s.cookies) == 0
}

// Cookies returns the session cookies sorted by name.
func (s Session) Cookies() []*http.Cookie {
	names := make([]string, 0, len(s.cookies))
	for name := range s.cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, &http.Cookie{Name: name, Value: s.cookies[name]})
	}
	return out
}

// Key identifies the session for per-session serialisation.
func (s Session) Key() string {
	var b strings.Builder
	for i, c := range s.Cookies() {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	return b.String()
}

func (s Session) apply(req *http.Request) {
	for _, c := range s.Cookies() {
		req.AddCookie(c)
	}
}

func (s Session) withState(state SessionState) Session {
	s.State = state
	return s
}
