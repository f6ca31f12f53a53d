package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/record"
	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/internal/infrastructure/metrics"
	"github.com/ipu-results/result-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BUILD RECORD QUERY
// Turns a student's raw portal rows into the processed academic record.
// The rows stay with the caller; nothing is stored.
// ══════════════════════════════════════════════════════════════════════════════

// MaxResultRows caps the rows accepted for one record.
const MaxResultRows = 2000

// BuildRecordQuery holds raw rows and optional manual credits.
type BuildRecordQuery struct {
	Rows      []record.RawRow
	Overrides *record.CreditOverrides
}

// Validate checks the query.
func (q BuildRecordQuery) Validate() error {
	if len(q.Rows) == 0 {
		return shared.ErrNoRows
	}
	if len(q.Rows) > MaxResultRows {
		return shared.NewDomainError("query", "BuildRecord", shared.ErrValueOutOfRange, "too many result rows")
	}
	if q.Overrides != nil {
		if err := q.Overrides.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// BuildRecordHandler builds processed records.
type BuildRecordHandler struct {
	catalog credit.Source
	policy  credit.Policy
	logger  *slog.Logger
}

// NewBuildRecordHandler creates a new handler. The policy decides which
// programmes may fall back to a uniform credit for uncatalogued subjects.
func NewBuildRecordHandler(catalog credit.Source, policy credit.Policy, log *slog.Logger) *BuildRecordHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &BuildRecordHandler{catalog: catalog, policy: policy, logger: log}
}

// Handle parses the rows, looks up credits for their paper codes and builds
// the record. Malformed rows are skipped and counted; a batch with no usable
// row fails. A catalog that cannot be reached at all fails the build.
func (h *BuildRecordHandler) Handle(ctx context.Context, q BuildRecordQuery) (*record.ProcessedRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	batch := record.ParseRows(q.Rows)
	for _, s := range batch.Skipped {
		h.logger.DebugContext(ctx, "result row skipped",
			logger.Int("index", s.Index),
			logger.PaperCode(s.PaperCode),
			logger.String("reason", s.Reason),
		)
	}
	if batch.Empty() {
		return nil, shared.ErrNoValidRows
	}

	catalog, err := h.catalog.Lookup(ctx, record.PaperCodes(batch.Rows))
	if err != nil {
		return nil, fmt.Errorf("build record: %w", err)
	}

	rec := record.Build(batch.Rows, record.BuildOptions{
		Catalog:   catalog,
		Policy:    h.policy,
		Overrides: q.Overrides,
		Skipped:   len(batch.Skipped),
	})
	metrics.RecordBuilt(rec.HasCompleteCredits)

	h.logger.InfoContext(ctx, "record built",
		logger.Count("rows", len(batch.Rows)),
		logger.Count("skipped", len(batch.Skipped)),
		logger.Count("semesters", len(rec.Semesters)),
		logger.Bool("complete_credits", rec.HasCompleteCredits),
		logger.Latency(time.Since(start)),
	)
	return &rec, nil
}
