package record

import (
	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/grading"
)

// StudentInfo identifies the student the rows belong to.
type StudentInfo struct {
	Name             string `json:"name"`
	EnrollmentNumber string `json:"enrollmentNumber"`
	Institute        string `json:"institute"`
	InstituteCode    string `json:"instituteCode"`
	Program          string `json:"program"`
	ProgramCode      string `json:"programCode"`
	YearOfAdmission  int    `json:"yearOfAdmission"`
}

// Standing is the division derived from a defined CGPA.
type Standing struct {
	Division   string  `json:"division"`
	Percentage float64 `json:"percentage"`
}

// ProcessedRecord is the complete academic record built from one set of rows.
// It is never updated in place; rebuild it when rows or credits change.
type ProcessedRecord struct {
	Student            StudentInfo       `json:"studentInfo"`
	Semesters          []Semester        `json:"semesters"`
	GradeDistribution  GradeDistribution `json:"gradeDistribution"`
	GPATrend           []TrendPoint      `json:"gpaTrend"`
	CGPA               *float64          `json:"cgpa"`
	HasCompleteCredits bool              `json:"hasCompleteCredits"`
	FallbackEligible   bool              `json:"fallbackEligible"`
	Standing           *Standing         `json:"standing,omitempty"`
	SemesterWise       []CumulativeRow   `json:"semesterWise"`
	YearWise           []CumulativeRow   `json:"yearWise"`
	Years              []YearRow         `json:"years"`
	ManualCGPA         *float64          `json:"manualCgpa,omitempty"`
	SkippedRows        int               `json:"skippedRows"`
	Rows               []Row             `json:"allResults"`
}

// BuildOptions carries everything Build needs besides the rows.
type BuildOptions struct {
	Catalog   credit.Catalog
	Policy    credit.Policy
	Overrides *CreditOverrides
	// Skipped is the number of malformed rows dropped while parsing.
	Skipped int
}

// Build assembles the record. An empty row set yields an empty record with an
// undefined CGPA.
func Build(rows []Row, opts BuildOptions) ProcessedRecord {
	rec := ProcessedRecord{
		Rows:               rows,
		SkippedRows:        opts.Skipped,
		HasCompleteCredits: true,
		Semesters:          []Semester{},
		GradeDistribution:  GradeDistribution{},
		GPATrend:           []TrendPoint{},
	}
	if len(rows) == 0 {
		return rec
	}

	first := rows[0]
	rec.Student = studentInfo(first)

	resolver := credit.NewResolver(opts.Catalog, opts.Policy, first.ProgramName)
	rec.FallbackEligible = resolver.FallbackEligible()

	rec.Semesters, rec.HasCompleteCredits = Aggregate(rows, resolver)
	rec.CGPA = ComputeCGPA(rec.Semesters, rec.HasCompleteCredits)
	if rec.CGPA != nil {
		rec.Standing = &Standing{
			Division:   grading.Division(*rec.CGPA),
			Percentage: grading.EquivalentPercentage(*rec.CGPA),
		}
	}

	rec.GradeDistribution = Distribution(rows)
	rec.GPATrend = Trend(rec.Semesters)
	rec.SemesterWise = SemesterWise(rec.Semesters, opts.Overrides)
	rec.YearWise = YearWise(rec.Semesters, opts.Overrides)
	rec.Years = Yearly(rec.Semesters, opts.Overrides)
	rec.ManualCGPA = ManualCGPA(rec.Semesters, opts.Overrides)
	return rec
}

func studentInfo(r Row) StudentInfo {
	year := r.YearOfAdmission
	if year == 0 {
		year = r.BatchYearOfAdmission
	}
	return StudentInfo{
		Name:             r.StudentName,
		EnrollmentNumber: r.EnrollmentNumber,
		Institute:        r.InstituteName,
		InstituteCode:    r.InstituteCode,
		Program:          r.ProgramName,
		ProgramCode:      r.ProgramCode,
		YearOfAdmission:  year,
	}
}
