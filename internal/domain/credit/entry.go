// Package credit models per-subject credit weights and the policy that decides
// when a missing catalog entry may be replaced by a uniform fallback credit.
package credit

import (
	"context"

	"github.com/ipu-results/result-engine/internal/domain/shared"
)

// Entry is the credit weight of one subject.
type Entry struct {
	Total      float64  `json:"total"`
	Theory     float64  `json:"theory"`
	Practical  *float64 `json:"practical"`
	IsFallback bool     `json:"isFallback"`
}

// FallbackEntry is the synthetic single credit used for eligible programmes.
func FallbackEntry() Entry {
	return Entry{Total: 1, Theory: 1, Practical: nil, IsFallback: true}
}

// NewEntry builds a catalog entry from theory and optional practical credits.
func NewEntry(theory float64, practical *float64) Entry {
	total := theory
	if practical != nil {
		total += *practical
	}
	return Entry{Total: total, Theory: theory, Practical: practical}
}

// Item is a catalog row as stored and administered.
type Item struct {
	PaperCode shared.PaperCode `json:"paperCode" yaml:"paperCode"`
	PaperName string           `json:"paperName,omitempty" yaml:"paperName,omitempty"`
	Theory    float64          `json:"theory" yaml:"theory"`
	Practical *float64         `json:"practical,omitempty" yaml:"practical,omitempty"`
}

// Entry converts the item into a non-fallback entry.
func (i Item) Entry() Entry {
	return NewEntry(i.Theory, i.Practical)
}

// Validate checks that the item can be stored.
func (i Item) Validate() error {
	if i.PaperCode.IsEmpty() {
		return shared.NewDomainError("credit", "Validate", shared.ErrInvalidInput, "paper code is required")
	}
	if i.Theory < 0 || (i.Practical != nil && *i.Practical < 0) {
		return shared.NewDomainError("credit", "Validate", shared.ErrValueOutOfRange, "credits cannot be negative")
	}
	if i.Entry().Total <= 0 {
		return shared.NewDomainError("credit", "Validate", shared.ErrValueOutOfRange, "total credits must be positive")
	}
	return nil
}

// Catalog maps normalized paper codes to their credits.
type Catalog map[shared.PaperCode]Entry

// Lookup returns the entry for a code.
func (c Catalog) Lookup(code shared.PaperCode) (Entry, bool) {
	e, ok := c[code]
	return e, ok
}

// Merge copies entries from other that are not already present.
func (c Catalog) Merge(other Catalog) {
	for code, e := range other {
		if _, ok := c[code]; !ok {
			c[code] = e
		}
	}
}

// Missing returns the codes that the catalog has no entry for, in input order.
func (c Catalog) Missing(codes []shared.PaperCode) []shared.PaperCode {
	var out []shared.PaperCode
	for _, code := range codes {
		if _, ok := c[code]; !ok {
			out = append(out, code)
		}
	}
	return out
}

// Source returns credit entries for a set of normalized codes. A missing code
// is simply absent from the returned catalog; an error means the source
// itself could not be consulted.
type Source interface {
	Lookup(ctx context.Context, codes []shared.PaperCode) (Catalog, error)
}

// StaticSource serves a fixed, in-memory catalog.
type StaticSource Catalog

// Lookup returns the entries of s for codes.
func (s StaticSource) Lookup(_ context.Context, codes []shared.PaperCode) (Catalog, error) {
	out := make(Catalog, len(codes))
	for _, code := range codes {
		if e, ok := s[code]; ok {
			out[code] = e
		}
	}
	return out, nil
}

// CatalogOf builds a catalog from items. Later items win on duplicate codes.
func CatalogOf(items []Item) Catalog {
	out := make(Catalog, len(items))
	for _, it := range items {
		out[it.PaperCode] = it.Entry()
	}
	return out
}

// Repository is the writable catalog store.
type Repository interface {
	Source
	Upsert(ctx context.Context, items []Item) (int, error)
	List(ctx context.Context, limit, offset int) ([]Item, error)
	Count(ctx context.Context) (int, error)
}
