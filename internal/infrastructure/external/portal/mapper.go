package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/record"
	"github.com/ipu-results/result-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// transportError classifies a failure to get any response at all.
func transportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return shared.WrapError("portal", op, shared.ErrPortalTimeout, "examination portal did not respond in time", err)
	}
	return shared.WrapError("portal", op, shared.ErrPortalUnavailable, "examination portal is unreachable", err)
}

// statusError classifies a non-2xx reply to a read (captcha or credits).
func statusError(op string, status int, body []byte) error {
	return shared.WrapError("portal", op, shared.ErrPortalUnavailable,
		fmt.Sprintf("examination portal answered %d", status),
		errors.New(decodeErrorText(body)))
}

// loginRejection classifies a non-2xx reply to a login attempt. Server errors
// and throttling are the portal's problem; any other 4xx is a rejection of
// what the student typed, told apart by whether the portal mentions the
// captcha.
func loginRejection(status int, body []byte) error {
	reason := decodeErrorText(body)
	switch {
	case status >= 500 || status == http.StatusTooManyRequests:
		return shared.WrapError("portal", "Login", shared.ErrPortalUnavailable,
			fmt.Sprintf("examination portal answered %d", status), errors.New(reason))
	default:
		return rejection(reason)
	}
}

func rejection(reason string) error {
	if strings.Contains(strings.ToLower(reason), "captcha") {
		return shared.NewDomainError("portal", "Login", shared.ErrInvalidCaptcha, nonEmpty(reason, "captcha was not accepted"))
	}
	return shared.NewDomainError("portal", "Login", shared.ErrInvalidCredentials, nonEmpty(reason, "enrollment number or password was not accepted"))
}

func nonEmpty(s, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// decodeLogin maps a 2xx login body to result rows.
func decodeLogin(body []byte) ([]record.RawRow, error) {
	var dto LoginResponseDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		// Some portal versions answer with the bare row array.
		var rows []record.RawRow
		if arrErr := json.Unmarshal(body, &rows); arrErr != nil {
			return nil, shared.WrapError("portal", "Login", shared.ErrPortalBadResponse, "login response could not be decoded", err)
		}
		dto.Results = rows
	}

	if len(dto.Results) == 0 {
		if reason := dto.Reason(); reason != "" {
			return nil, rejection(reason)
		}
		return nil, shared.ErrPortalEmptyResults
	}
	return dto.Results, nil
}

// toCatalog maps the credits endpoint reply to a catalog keyed by normalized
// paper code. Entries without any credit figure are dropped.
func toCatalog(dto CreditsResponseDTO) credit.Catalog {
	out := make(credit.Catalog, len(dto.Credits))
	for rawCode, c := range dto.Credits {
		code := shared.NormalizePaperCode(rawCode)
		if code.IsEmpty() {
			continue
		}
		entry, ok := c.entry()
		if !ok {
			continue
		}
		out[code] = entry
	}
	return out
}

func (c CreditDTO) entry() (credit.Entry, bool) {
	switch {
	case c.Theory != nil:
		e := credit.NewEntry(*c.Theory, c.Practical)
		if total := c.total(); total != nil {
			e.Total = *total
		}
		return e, true
	case c.total() != nil:
		return credit.Entry{Total: *c.total(), Theory: *c.total(), Practical: c.Practical}, true
	default:
		return credit.Entry{}, false
	}
}

func (c CreditDTO) total() *float64 {
	if c.Total != nil {
		return c.Total
	}
	return c.Credits
}
