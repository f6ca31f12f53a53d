package portal

import (
	"encoding/json"

	"github.com/ipu-results/result-engine/internal/domain/record"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN
// ══════════════════════════════════════════════════════════════════════════════

// LoginRequestDTO is the body posted to the portal login endpoint.
type LoginRequestDTO struct {
	EnrollmentNumber string `json:"enrollmentNumber"`
	Password         string `json:"password"`
	Captcha          string `json:"captcha"`
}

// LoginResponseDTO is the portal's login reply. A rejection carries error or
// message and no results.
type LoginResponseDTO struct {
	Results []record.RawRow `json:"results"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Reason returns the rejection text, if any.
func (d LoginResponseDTO) Reason() string {
	if d.Error != "" {
		return d.Error
	}
	return d.Message
}

// ══════════════════════════════════════════════════════════════════════════════
// CREDITS
// ══════════════════════════════════════════════════════════════════════════════

// CreditsRequestDTO asks the catalog endpoint for a set of paper codes.
type CreditsRequestDTO struct {
	PaperCodes []string `json:"paperCodes"`
}

// CreditDTO is one catalog entry. Older deployments send the total as
// "credits" instead of "total".
type CreditDTO struct {
	Total     *float64 `json:"total"`
	Credits   *float64 `json:"credits"`
	Theory    *float64 `json:"theory"`
	Practical *float64 `json:"practical"`
	PaperName string   `json:"paperName,omitempty"`
}

// CreditsResponseDTO is the catalog endpoint reply.
type CreditsResponseDTO struct {
	Credits   map[string]CreditDTO `json:"credits"`
	Found     int                  `json:"found"`
	Requested int                  `json:"requested"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ErrorDTO is a generic portal error body.
type ErrorDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func decodeErrorText(body []byte) string {
	var e ErrorDTO
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
