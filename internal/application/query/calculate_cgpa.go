// Package query contains read operations (CQRS - Queries).
// Queries never change stored state; they compute views over caller-supplied
// data and the credit catalog.
package query

import (
	"context"

	"github.com/ipu-results/result-engine/internal/domain/grading"
	"github.com/ipu-results/result-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATE CGPA QUERY
// Standalone calculator over subjects typed in by hand.
// ══════════════════════════════════════════════════════════════════════════════

// MaxCourseEntries caps one calculator request.
const MaxCourseEntries = 200

// CalculateCGPAQuery holds the typed-in subjects.
type CalculateCGPAQuery struct {
	Entries []grading.CourseEntry
}

// Validate checks the query bounds.
func (q CalculateCGPAQuery) Validate() error {
	if len(q.Entries) == 0 {
		return shared.NewDomainError("query", "CalculateCGPA", shared.ErrInvalidInput, "at least one subject is required")
	}
	if len(q.Entries) > MaxCourseEntries {
		return shared.NewDomainError("query", "CalculateCGPA", shared.ErrValueOutOfRange, "too many subjects")
	}
	return nil
}

// CalculateCGPAHandler runs the calculator.
type CalculateCGPAHandler struct{}

// NewCalculateCGPAHandler creates a new handler.
func NewCalculateCGPAHandler() *CalculateCGPAHandler {
	return &CalculateCGPAHandler{}
}

// Handle computes the weighted CGPA. It fails with a validation error when no
// entry has positive credits and marks inside 0-100.
func (h *CalculateCGPAHandler) Handle(_ context.Context, q CalculateCGPAQuery) (grading.CalculationResult, error) {
	if err := q.Validate(); err != nil {
		return grading.CalculationResult{}, err
	}
	result, ok := grading.Calculate(q.Entries)
	if !ok {
		return result, shared.NewDomainError("query", "CalculateCGPA", shared.ErrInvalidInput,
			"no subject has positive credits and marks between 0 and 100")
	}
	return result, nil
}
