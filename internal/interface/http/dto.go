package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ipu-results/result-engine/internal/application/command"
	"github.com/ipu-results/result-engine/internal/application/query"
	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/grading"
	"github.com/ipu-results/result-engine/internal/domain/record"
	"github.com/ipu-results/result-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errBodyTooLarge is returned by decodeJSON when the size limit was hit.
var errBodyTooLarge = errors.New("request body too large")

// validationError carries per-field validation failures.
type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string {
	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}
	return "invalid fields: " + strings.Join(names, ", ")
}

func (e *validationError) Is(target error) bool {
	return target == shared.ErrInvalidInput
}

// validateStruct runs struct tags and flattens the failures.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.WrapError("http", "Validate", shared.ErrInvalidInput, "request is invalid", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = describeTag(fe)
	}
	return &validationError{fields: fields}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "max":
		return "must not exceed " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// decodeJSON reads a JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return shared.WrapError("http", "Decode", shared.ErrInvalidFormat, "request body could not be read", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return shared.NewDomainError("http", "Decode", shared.ErrInvalidInput, "request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return shared.WrapError("http", "Decode", shared.ErrInvalidFormat, "request body is not valid JSON", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN
// ══════════════════════════════════════════════════════════════════════════════

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	EnrollmentNumber string `json:"enrollmentNumber" validate:"required,max=32"`
	Password         string `json:"password" validate:"required,max=128"`
	Captcha          string `json:"captcha" validate:"required,max=16"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Results     []record.RawRow         `json:"results"`
	SkippedRows int                     `json:"skippedRows"`
	Record      *record.ProcessedRecord `json:"record,omitempty"`
	RecordError *APIError               `json:"recordError,omitempty"`
}

func loginResponse(res *command.LoginResult) LoginResponse {
	out := LoginResponse{
		Results:     res.Results,
		SkippedRows: res.SkippedRows,
		Record:      res.Record,
	}
	if out.Results == nil {
		out.Results = []record.RawRow{}
	}
	if res.RecordError != nil {
		mapped := errorStatus(res.RecordError)
		out.RecordError = &APIError{Code: mapped.code, Message: mapped.message}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// CREDITS
// ══════════════════════════════════════════════════════════════════════════════

// CreditsRequest is the body of POST /credits. A bare JSON array of codes is
// accepted as well.
type CreditsRequest struct {
	PaperCodes []string `json:"paperCodes" validate:"required,min=1"`
}

// UnmarshalJSON accepts both {"paperCodes": [...]} and [...].
func (c *CreditsRequest) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &c.PaperCodes)
	}
	type plain CreditsRequest
	return json.Unmarshal(trimmed, (*plain)(c))
}

// Query converts the request.
func (c CreditsRequest) Query() query.LookupCreditsQuery {
	return query.LookupCreditsQuery{PaperCodes: c.PaperCodes}
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// RecordsRequest is the body of POST /records.
type RecordsRequest struct {
	Results       []record.RawRow         `json:"results" validate:"required,min=1"`
	ManualCredits *record.CreditOverrides `json:"manualCredits,omitempty"`
}

// Query converts the request.
func (r RecordsRequest) Query() query.BuildRecordQuery {
	return query.BuildRecordQuery{Rows: r.Results, Overrides: r.ManualCredits}
}

// ══════════════════════════════════════════════════════════════════════════════
// CGPA CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// CalculateCGPARequest is the body of POST /cgpa/calculate.
type CalculateCGPARequest struct {
	Courses []grading.CourseEntry `json:"courses" validate:"required,min=1"`
}

// Query converts the request.
func (c CalculateCGPARequest) Query() query.CalculateCGPAQuery {
	return query.CalculateCGPAQuery{Entries: c.Courses}
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG ADMINISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// MaxUpsertItems caps one PUT /admin/credits request.
const MaxUpsertItems = 1000

// CreditItemDTO is one catalog entry. Either theory/practical or a single
// total (alias "credits") may be given; a total alone is stored as theory.
type CreditItemDTO struct {
	PaperCode string   `json:"paperCode" validate:"required,max=32"`
	PaperName string   `json:"paperName" validate:"max=256"`
	Theory    *float64 `json:"theory" validate:"omitempty,gte=0"`
	Practical *float64 `json:"practical" validate:"omitempty,gte=0"`
	Total     *float64 `json:"total" validate:"omitempty,gt=0"`
	Credits   *float64 `json:"credits" validate:"omitempty,gt=0"`
}

// Item converts the DTO into a catalog item with a normalized code.
func (d CreditItemDTO) Item() credit.Item {
	item := credit.Item{
		PaperCode: shared.NormalizePaperCode(d.PaperCode),
		PaperName: strings.TrimSpace(d.PaperName),
		Practical: d.Practical,
	}
	switch {
	case d.Theory != nil:
		item.Theory = *d.Theory
	case d.Total != nil:
		item.Theory = *d.Total
	case d.Credits != nil:
		item.Theory = *d.Credits
	}
	return item
}

// UpsertCreditsRequest is the body of PUT /admin/credits.
type UpsertCreditsRequest struct {
	Credits []CreditItemDTO `json:"credits" validate:"required,min=1,dive"`
}

// Items validates and converts every entry.
func (u UpsertCreditsRequest) Items() ([]credit.Item, error) {
	if len(u.Credits) > MaxUpsertItems {
		return nil, shared.NewDomainError("http", "UpsertCredits", shared.ErrValueOutOfRange,
			fmt.Sprintf("at most %d credits per request", MaxUpsertItems))
	}
	items := make([]credit.Item, 0, len(u.Credits))
	for i, d := range u.Credits {
		item := d.Item()
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("credits[%d]: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// UpsertCreditsResponse reports how many entries were written.
type UpsertCreditsResponse struct {
	Upserted int `json:"upserted"`
}
