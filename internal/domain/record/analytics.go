package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ipu-results/result-engine/internal/domain/grading"
	"github.com/ipu-results/result-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADE DISTRIBUTION
// ══════════════════════════════════════════════════════════════════════════════

// GradeCount is one histogram bucket.
type GradeCount struct {
	Grade grading.Grade `json:"grade"`
	Count int           `json:"count"`
}

// GradeDistribution lists the grades that occur, best grade first.
type GradeDistribution []GradeCount

// Count returns the number of subjects with the given grade.
func (d GradeDistribution) Count(g grading.Grade) int {
	for _, gc := range d {
		if gc.Grade == g {
			return gc.Count
		}
	}
	return 0
}

// Total returns the number of subjects counted.
func (d GradeDistribution) Total() int {
	n := 0
	for _, gc := range d {
		n += gc.Count
	}
	return n
}

// Distribution tallies grades over the latest attempt of every subject across
// all rows, so a subject repeated in a later semester is counted once.
func Distribution(rows []Row) GradeDistribution {
	counts := make(map[grading.Grade]int)
	for _, r := range LatestAttempts(rows) {
		counts[r.Grade()]++
	}

	out := make(GradeDistribution, 0, len(counts))
	for g, n := range counts {
		out = append(out, GradeCount{Grade: g, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Grade.Rank() < out[j].Grade.Rank() })
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// GPA TREND
// ══════════════════════════════════════════════════════════════════════════════

// TrendPoint is one semester on the SGPA trend line.
type TrendPoint struct {
	Label    string               `json:"semester"`
	Semester shared.SemesterIndex `json:"euno"`
	SGPA     float64              `json:"sgpa"`
}

// Trend returns one point per semester, in semester order.
func Trend(semesters []Semester) []TrendPoint {
	sorted := sortedSemesters(semesters)
	out := make([]TrendPoint, 0, len(sorted))
	for _, s := range sorted {
		out = append(out, TrendPoint{Label: s.Index.Label(), Semester: s.Index, SGPA: s.SGPA})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// CUMULATIVE BREAKDOWNS
// ══════════════════════════════════════════════════════════════════════════════

// CumulativeRow is a running total after a number of semesters or years.
type CumulativeRow struct {
	Label       string                 `json:"label"`
	Semesters   []shared.SemesterIndex `json:"semesters"`
	Marks       float64                `json:"marks"`
	MaxMarks    float64                `json:"maxMarks"`
	Percentage  float64                `json:"percentage"`
	Credits     float64                `json:"credits"`
	GradePoints float64                `json:"gradePoints"`
	GPA         float64                `json:"gpa"`
}

// YearRow is one academic year (two consecutive semesters), not cumulative.
type YearRow struct {
	Year       int                    `json:"year"`
	Semesters  []shared.SemesterIndex `json:"semesters"`
	Marks      float64                `json:"marks"`
	MaxMarks   float64                `json:"maxMarks"`
	Percentage float64                `json:"percentage"`
	Credits    float64                `json:"credits"`
	GPA        float64                `json:"gpa"`
}

// accumulator keeps running totals over latest-attempt marks and credits.
type accumulator struct {
	marks       LatestAttemptMarksTotal
	credits     float64
	gradePoints float64
	semesters   []shared.SemesterIndex
}

func (a *accumulator) add(s Semester, o *CreditOverrides) {
	c := o.CreditsFor(s)
	a.marks = a.marks.Add(s.LatestMarks)
	a.credits += c
	a.gradePoints += s.SGPA * c
	a.semesters = append(a.semesters, s.Index)
}

func (a *accumulator) gpa() float64 {
	if a.credits <= 0 {
		return 0
	}
	return a.gradePoints / a.credits
}

func (a *accumulator) row(label string) CumulativeRow {
	return CumulativeRow{
		Label:       label,
		Semesters:   append([]shared.SemesterIndex(nil), a.semesters...),
		Marks:       a.marks.Marks,
		MaxMarks:    a.marks.MaxMarks,
		Percentage:  a.marks.Percentage,
		Credits:     a.credits,
		GradePoints: a.gradePoints,
		GPA:         a.gpa(),
	}
}

// SemesterWise returns a running total after each semester, labelled
// "Sem 1", "Sem 1+2", "Sem 1+2+3" and so on.
func SemesterWise(semesters []Semester, o *CreditOverrides) []CumulativeRow {
	sorted := sortedSemesters(semesters)
	out := make([]CumulativeRow, 0, len(sorted))

	var acc accumulator
	for _, s := range sorted {
		acc.add(s, o)
		out = append(out, acc.row("Sem "+joinIndexes(acc.semesters)))
	}
	return out
}

// YearWise returns a running total after each complete year. Semesters are
// paired in order; a trailing odd semester is left out.
func YearWise(semesters []Semester, o *CreditOverrides) []CumulativeRow {
	sorted := sortedSemesters(semesters)
	out := make([]CumulativeRow, 0, len(sorted)/2)

	var acc accumulator
	years := make([]int, 0, len(sorted)/2)
	for i := 0; i+1 < len(sorted); i += 2 {
		acc.add(sorted[i], o)
		acc.add(sorted[i+1], o)
		years = append(years, len(years)+1)
		out = append(out, acc.row("Year "+joinInts(years)))
	}
	return out
}

// Yearly returns per-year figures for every complete year.
func Yearly(semesters []Semester, o *CreditOverrides) []YearRow {
	sorted := sortedSemesters(semesters)
	out := make([]YearRow, 0, len(sorted)/2)

	for i := 0; i+1 < len(sorted); i += 2 {
		var acc accumulator
		acc.add(sorted[i], o)
		acc.add(sorted[i+1], o)
		out = append(out, YearRow{
			Year:       i/2 + 1,
			Semesters:  acc.semesters,
			Marks:      acc.marks.Marks,
			MaxMarks:   acc.marks.MaxMarks,
			Percentage: acc.marks.Percentage,
			Credits:    acc.credits,
			GPA:        acc.gpa(),
		})
	}
	return out
}

func sortedSemesters(semesters []Semester) []Semester {
	out := append([]Semester(nil), semesters...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func joinIndexes(idx []shared.SemesterIndex) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = fmt.Sprint(int(v))
	}
	return strings.Join(parts, "+")
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "+")
}
