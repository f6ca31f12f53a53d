package record

import (
	"fmt"

	"github.com/ipu-results/result-engine/internal/domain/shared"
)

// OverrideMode selects how manually entered credits are keyed.
type OverrideMode string

const (
	// OverrideSemester keys credits by semester index.
	OverrideSemester OverrideMode = "semester"
	// OverrideSubject keys credits by "{euno}-{papercode}".
	OverrideSubject OverrideMode = "subject"
)

// CreditOverrides are credits typed in by the student when the catalog is
// missing or wrong. They only affect breakdowns and ManualCGPA; the record's
// own CGPA always uses resolved credits.
type CreditOverrides struct {
	Mode            OverrideMode       `json:"type" validate:"required,oneof=semester subject"`
	SemesterCredits map[int]float64    `json:"semesterCredits,omitempty"`
	SubjectCredits  map[string]float64 `json:"subjectCredits,omitempty"`
}

// Validate rejects negative credits and unknown modes.
func (o *CreditOverrides) Validate() error {
	if o == nil {
		return nil
	}
	switch o.Mode {
	case OverrideSemester:
		for sem, c := range o.SemesterCredits {
			if c < 0 {
				return shared.NewDomainError("record", "Overrides", shared.ErrValueOutOfRange,
					fmt.Sprintf("semester %d credits cannot be negative", sem))
			}
		}
	case OverrideSubject:
		for key, c := range o.SubjectCredits {
			if c < 0 {
				return shared.NewDomainError("record", "Overrides", shared.ErrValueOutOfRange,
					fmt.Sprintf("subject %s credits cannot be negative", key))
			}
		}
	default:
		return shared.NewDomainError("record", "Overrides", shared.ErrInvalidInput,
			fmt.Sprintf("unknown override type %q", o.Mode))
	}
	return nil
}

// CreditsFor returns the credits used for a semester in breakdowns. A nil
// receiver, or semester mode without a positive value, keeps the resolved
// credits. Subject mode sums the semester's latest-attempt subjects, treating
// missing keys as zero.
func (o *CreditOverrides) CreditsFor(s Semester) float64 {
	if o == nil {
		return s.Credits
	}
	switch o.Mode {
	case OverrideSemester:
		if c := o.SemesterCredits[int(s.Index)]; c > 0 {
			return c
		}
	case OverrideSubject:
		if o.SubjectCredits != nil {
			var total float64
			for _, r := range s.Latest {
				total += o.SubjectCredits[shared.SubjectKey(s.Index, r.PaperCode)]
			}
			return total
		}
	}
	return s.Credits
}

// ManualCGPA computes a CGPA from overrides alone. Every semester (semester
// mode) or every latest-attempt subject (subject mode) needs positive credits,
// otherwise the result is nil.
func ManualCGPA(semesters []Semester, o *CreditOverrides) *float64 {
	if o == nil || len(semesters) == 0 {
		return nil
	}

	var credits, points float64
	switch o.Mode {
	case OverrideSemester:
		for _, s := range semesters {
			c := o.SemesterCredits[int(s.Index)]
			if c <= 0 {
				return nil
			}
			credits += c
			points += s.SGPA * c
		}
	case OverrideSubject:
		for _, s := range semesters {
			for _, r := range s.Latest {
				c := o.SubjectCredits[shared.SubjectKey(s.Index, r.PaperCode)]
				if c <= 0 {
					return nil
				}
				credits += c
				points += s.SGPA * c
			}
		}
	default:
		return nil
	}

	if credits == 0 {
		return nil
	}
	v := points / credits
	return &v
}
