package credit

import "github.com/ipu-results/result-engine/internal/domain/shared"

// Resolver resolves subject credits for one student's programme.
type Resolver struct {
	catalog  Catalog
	eligible bool
}

// NewResolver binds a catalog and policy to a programme name.
func NewResolver(catalog Catalog, policy Policy, programName string) Resolver {
	return Resolver{
		catalog:  catalog,
		eligible: policy.Eligible(ParseProgram(programName)),
	}
}

// FallbackEligible reports whether missing subjects get a fallback credit.
func (r Resolver) FallbackEligible() bool {
	return r.eligible
}

// Resolve returns the subject's credits. The second result is false when the
// catalog has no entry and the programme is not eligible for fallback; the
// caller must then treat the record's credits as incomplete.
func (r Resolver) Resolve(code shared.PaperCode) (Entry, bool) {
	if e, ok := r.catalog.Lookup(code); ok && e.Total > 0 {
		e.IsFallback = false
		return e, true
	}
	if r.eligible {
		return FallbackEntry(), true
	}
	return Entry{}, false
}
