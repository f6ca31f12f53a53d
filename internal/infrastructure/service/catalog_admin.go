package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/pkg/logger"
)

// CatalogStore is the writable side of the catalog.
type CatalogStore interface {
	Upsert(ctx context.Context, items []credit.Item) (int, error)
}

// CacheInvalidator drops cached credit entries.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, codes []shared.PaperCode) error
}

// CatalogAdmin writes catalog entries and keeps the credit cache coherent,
// so a code cached as unknown is found right after it is added.
type CatalogAdmin struct {
	store  CatalogStore
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewCatalogAdmin creates a CatalogAdmin. cache may be nil.
func NewCatalogAdmin(store CatalogStore, cache CacheInvalidator, log *slog.Logger) *CatalogAdmin {
	if log == nil {
		log = logger.Discard()
	}
	return &CatalogAdmin{store: store, cache: cache, logger: log.With(logger.Component("catalog_admin"))}
}

// Upsert validates and stores items, then invalidates their cache entries.
// A cache failure is logged; stale entries expire with their TTL.
func (a *CatalogAdmin) Upsert(ctx context.Context, items []credit.Item) (int, error) {
	codes := make([]shared.PaperCode, 0, len(items))
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return 0, fmt.Errorf("item %d: %w", i, err)
		}
		codes = append(codes, item.PaperCode)
	}

	n, err := a.store.Upsert(ctx, items)
	if err != nil {
		return 0, fmt.Errorf("upsert catalog: %w", err)
	}

	if a.cache != nil {
		if err := a.cache.Invalidate(ctx, codes); err != nil {
			a.logger.WarnContext(ctx, "credit cache invalidation failed",
				logger.Count("codes", len(codes)),
				logger.Err(err),
			)
		}
	}
	return n, nil
}
