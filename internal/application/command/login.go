package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ipu-results/result-engine/internal/application/query"
	"github.com/ipu-results/result-engine/internal/domain/record"
	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/internal/infrastructure/external/portal"
	"github.com/ipu-results/result-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN COMMAND
// Submits the student's credentials and captcha answer to the portal and
// returns the raw result rows, optionally with the processed record.
// ══════════════════════════════════════════════════════════════════════════════

// LoginCommand contains the login form and the session that fetched the
// captcha.
type LoginCommand struct {
	Session          portal.Session
	EnrollmentNumber string
	Password         string
	Captcha          string

	// IncludeRecord also builds the processed record from the rows.
	IncludeRecord bool
}

// Validate checks the form fields. The session is checked by the portal
// client so an absent session maps to its own error.
func (c LoginCommand) Validate() error {
	var missing []string
	if strings.TrimSpace(c.EnrollmentNumber) == "" {
		missing = append(missing, "enrollmentNumber")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(c.Captcha) == "" {
		missing = append(missing, "captcha")
	}
	if len(missing) > 0 {
		return shared.NewDomainError("command", "Login", shared.ErrInvalidInput,
			"missing required fields: "+strings.Join(missing, ", "))
	}
	return nil
}

// LoginResult is what a successful login returns to the caller.
type LoginResult struct {
	Results     []record.RawRow
	SkippedRows int
	Record      *record.ProcessedRecord

	// RecordError is set when the rows were fetched but the record could
	// not be built. The rows are still returned.
	RecordError error

	Session portal.Session
}

// RecordBuilder builds processed records from raw rows.
type RecordBuilder interface {
	Handle(ctx context.Context, q query.BuildRecordQuery) (*record.ProcessedRecord, error)
}

// LoginHandler runs the login command.
type LoginHandler struct {
	portal  Portal
	records RecordBuilder
	logger  *slog.Logger
}

// NewLoginHandler creates a new handler. records may be nil, in which case
// IncludeRecord is ignored.
func NewLoginHandler(p Portal, records RecordBuilder, log *slog.Logger) *LoginHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &LoginHandler{portal: p, records: records, logger: log}
}

// Handle performs the login. The returned session is always spent, whether
// or not an error is returned.
func (h *LoginHandler) Handle(ctx context.Context, cmd LoginCommand) (*LoginResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	res, err := h.portal.Login(ctx, cmd.Session, portal.Credentials{
		EnrollmentNumber: cmd.EnrollmentNumber,
		Password:         cmd.Password,
		Captcha:          cmd.Captcha,
	})
	if err != nil {
		return &LoginResult{Session: res.Session}, fmt.Errorf("portal login: %w", err)
	}

	batch := record.ParseRows(res.Rows)
	out := &LoginResult{
		Results:     record.NormalizeRaw(res.Rows),
		SkippedRows: len(batch.Skipped),
		Session:     res.Session,
	}

	if cmd.IncludeRecord && h.records != nil {
		rec, err := h.records.Handle(ctx, query.BuildRecordQuery{Rows: res.Rows})
		if err != nil {
			h.logger.WarnContext(ctx, "record build after login failed",
				logger.Enrollment(cmd.EnrollmentNumber),
				logger.Err(err),
			)
			out.RecordError = err
		} else {
			out.Record = rec
		}
	}
	return out, nil
}
