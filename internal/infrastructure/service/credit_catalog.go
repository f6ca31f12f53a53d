// Package service composes infrastructure pieces into the lookups the
// application layer depends on.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/internal/infrastructure/metrics"
	"github.com/ipu-results/result-engine/pkg/logger"
)

// CreditCache is the cache consulted before any credit source.
type CreditCache interface {
	Get(ctx context.Context, codes []shared.PaperCode) (found credit.Catalog, missing []shared.PaperCode, err error)
	Put(ctx context.Context, found credit.Catalog, missing []shared.PaperCode) error
}

// DefaultFlightTimeout bounds one shared trip to the sources.
const DefaultFlightTimeout = 15 * time.Second

// NamedSource is a credit source with a label for logs and metrics.
type NamedSource struct {
	Name   string
	Source credit.Source
}

// CreditCatalog resolves paper codes against the cache and then each source
// in order, asking later sources only for codes still missing. Concurrent
// lookups of the same missing set share one trip to the sources.
type CreditCatalog struct {
	cache   CreditCache
	sources []NamedSource
	group   singleflight.Group
	logger  *slog.Logger

	flightTimeout time.Duration
}

var _ credit.Source = (*CreditCatalog)(nil)

// NewCreditCatalog creates a CreditCatalog. cache may be nil.
func NewCreditCatalog(cache CreditCache, log *slog.Logger, sources ...NamedSource) *CreditCatalog {
	if log == nil {
		log = logger.Discard()
	}
	return &CreditCatalog{
		cache:   cache,
		sources: sources,
		logger:  log.With(logger.Component("credit_catalog")),

		flightTimeout: DefaultFlightTimeout,
	}
}

// Sources returns the configured source names in lookup order.
func (c *CreditCatalog) Sources() []string {
	out := make([]string, len(c.sources))
	for i, s := range c.sources {
		out[i] = s.Name
	}
	return out
}

// Lookup returns entries for every code any tier knows. Codes nobody knows
// are absent from the result. It fails only when codes remain unresolved and
// every source that was asked returned an error.
func (c *CreditCatalog) Lookup(ctx context.Context, codes []shared.PaperCode) (credit.Catalog, error) {
	codes = dedupe(codes)
	out := make(credit.Catalog, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	pending := codes
	if c.cache != nil {
		found, known, err := c.cache.Get(ctx, codes)
		if err != nil {
			c.logger.WarnContext(ctx, "credit cache read failed", logger.Err(err))
			metrics.CreditLookups("cache", "error", len(codes))
		} else {
			out.Merge(found)
			pending = without(found.Missing(codes), known)
			metrics.CreditLookups("cache", "hit", len(found)+len(known))
			metrics.CreditLookups("cache", "miss", len(pending))
		}
	}
	if len(pending) == 0 || len(c.sources) == 0 {
		return out, nil
	}

	// The shared trip outlives any single caller; a caller that gives up
	// stops waiting without cancelling the others.
	flight := c.group.DoChan(flightKey(pending), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		found, err := c.fromSources(fctx, pending)
		if err != nil {
			return nil, err
		}
		return found, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("credit lookup: %w", ctx.Err())
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		out.Merge(res.Val.(credit.Catalog))
		return out, nil
	}
}

func (c *CreditCatalog) fromSources(ctx context.Context, codes []shared.PaperCode) (credit.Catalog, error) {
	found := make(credit.Catalog, len(codes))
	pending := codes
	var errs []error
	answered := 0

	for _, src := range c.sources {
		if len(pending) == 0 {
			break
		}
		got, err := src.Source.Lookup(ctx, pending)
		if err != nil {
			c.logger.WarnContext(ctx, "credit source failed",
				logger.String("source", src.Name),
				logger.Count("codes", len(pending)),
				logger.Err(err),
			)
			metrics.CreditLookups(src.Name, "error", len(pending))
			errs = append(errs, err)
			continue
		}
		answered++

		hits := 0
		for _, code := range pending {
			if e, ok := got[code]; ok {
				found[code] = e
				hits++
			}
		}
		metrics.CreditLookups(src.Name, "hit", hits)
		metrics.CreditLookups(src.Name, "miss", len(pending)-hits)
		pending = found.Missing(pending)
	}

	if answered == 0 {
		return nil, shared.WrapError("credit", "Lookup", shared.ErrUpstreamUnavailable,
			"no credit source could be reached", errors.Join(errs...))
	}

	if c.cache != nil {
		// Negative entries are only trusted when every source answered.
		var missing []shared.PaperCode
		if len(errs) == 0 {
			missing = pending
		}
		if err := c.cache.Put(ctx, found, missing); err != nil {
			c.logger.WarnContext(ctx, "credit cache write failed", logger.Err(err))
		}
	}

	if len(pending) > 0 {
		c.logger.DebugContext(ctx, "paper codes without credits", logger.Count("codes", len(pending)))
	}
	return found, nil
}

func dedupe(codes []shared.PaperCode) []shared.PaperCode {
	seen := make(map[shared.PaperCode]struct{}, len(codes))
	out := make([]shared.PaperCode, 0, len(codes))
	for _, code := range codes {
		if code.IsEmpty() {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

func without(codes, drop []shared.PaperCode) []shared.PaperCode {
	if len(drop) == 0 {
		return codes
	}
	skip := make(map[shared.PaperCode]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	var out []shared.PaperCode
	for _, code := range codes {
		if _, ok := skip[code]; !ok {
			out = append(out, code)
		}
	}
	return out
}

func flightKey(codes []shared.PaperCode) string {
	var b strings.Builder
	for i, code := range codes {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(code.String())
	}
	return b.String()
}
