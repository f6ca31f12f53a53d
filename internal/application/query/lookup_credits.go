package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOOKUP CREDITS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// MaxPaperCodes caps one credits lookup.
const MaxPaperCodes = 500

// LookupCreditsQuery holds raw, possibly un-normalized paper codes.
type LookupCreditsQuery struct {
	PaperCodes []string
}

// LookupCreditsResult maps canonical codes to their credits.
type LookupCreditsResult struct {
	Credits   map[string]credit.Entry `json:"credits"`
	Found     int                     `json:"found"`
	Requested int                     `json:"requested"`
}

// LookupCreditsHandler answers credits lookups from the catalog.
type LookupCreditsHandler struct {
	catalog credit.Source
	logger  *slog.Logger
}

// NewLookupCreditsHandler creates a new handler.
func NewLookupCreditsHandler(catalog credit.Source, log *slog.Logger) *LookupCreditsHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &LookupCreditsHandler{catalog: catalog, logger: log}
}

// Handle normalizes and de-duplicates the codes, then returns the entries the
// catalog knows. Requested counts distinct normalized codes.
func (h *LookupCreditsHandler) Handle(ctx context.Context, q LookupCreditsQuery) (*LookupCreditsResult, error) {
	if len(q.PaperCodes) == 0 {
		return nil, shared.ErrNoPaperCodes
	}
	if len(q.PaperCodes) > MaxPaperCodes {
		return nil, shared.ErrTooManyCodes
	}

	codes := shared.NormalizePaperCodes(q.PaperCodes)
	if len(codes) == 0 {
		return nil, shared.ErrNoPaperCodes
	}

	catalog, err := h.catalog.Lookup(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("lookup credits: %w", err)
	}

	result := &LookupCreditsResult{
		Credits:   make(map[string]credit.Entry, len(codes)),
		Requested: len(codes),
	}
	for _, code := range codes {
		if e, ok := catalog.Lookup(code); ok {
			result.Credits[code.String()] = e
		}
	}
	result.Found = len(result.Credits)

	h.logger.DebugContext(ctx, "credits looked up",
		logger.Count("requested", result.Requested),
		logger.Count("found", result.Found),
	)
	return result, nil
}
