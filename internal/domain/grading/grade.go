// Package grading maps marks onto letter grades and grade points and
// converts a CGPA into the university's division labels.
package grading

import "math"

// Grade is a letter grade awarded for a single subject.
type Grade string

// Letter grades in descending order.
const (
	GradeO     Grade = "O"
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeP     Grade = "P"
	GradeF     Grade = "F"
)

// Band is a half-open marks interval [Min, next band's Min) awarding a grade.
type Band struct {
	Grade Grade
	Min   float64
	Point int
}

// bands is ordered from the highest grade down. Lower bounds are inclusive
// and each band extends up to the next one, so fractional marks never fall
// into a gap (89.9 is A+, 39.9 is F).
var bands = []Band{
	{Grade: GradeO, Min: 90, Point: 10},
	{Grade: GradeAPlus, Min: 75, Point: 9},
	{Grade: GradeA, Min: 65, Point: 8},
	{Grade: GradeBPlus, Min: 55, Point: 7},
	{Grade: GradeB, Min: 50, Point: 6},
	{Grade: GradeC, Min: 45, Point: 5},
	{Grade: GradeP, Min: 40, Point: 4},
}

// Bands returns every grade in display order, F last.
func Bands() []Band {
	out := make([]Band, 0, len(bands)+1)
	out = append(out, bands...)
	return append(out, Band{Grade: GradeF, Min: math.Inf(-1), Point: 0})
}

// FromMarks returns the grade for a subject's moderated marks.
func FromMarks(marks float64) Grade {
	for _, b := range bands {
		if marks >= b.Min {
			return b.Grade
		}
	}
	return GradeF
}

// Point returns the grade point for the grade (O=10 ... P=4, F=0).
func (g Grade) Point() int {
	for _, b := range bands {
		if b.Grade == g {
			return b.Point
		}
	}
	return 0
}

// Rank is the position of the grade in display order, 0 for O.
func (g Grade) Rank() int {
	for i, b := range Bands() {
		if b.Grade == g {
			return i
		}
	}
	return len(bands)
}

// String returns the grade label.
func (g Grade) String() string {
	return string(g)
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
