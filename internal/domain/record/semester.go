package record

import (
	"sort"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/shared"
)

// MaxMarksPerSubject is the ceiling of a subject's moderated marks.
const MaxMarksPerSubject = 100

// RawMarksTotal sums moderated marks over every attempt in a semester,
// repeats included. It is a legacy display figure, not a basis for percentages.
type RawMarksTotal struct {
	Marks    float64 `json:"marks"`
	Attempts int     `json:"attempts"`
}

// LatestAttemptMarksTotal sums moderated marks over the latest attempt of each
// subject, against 100 marks per subject.
type LatestAttemptMarksTotal struct {
	Marks      float64 `json:"marks"`
	MaxMarks   float64 `json:"maxMarks"`
	Subjects   int     `json:"subjects"`
	Percentage float64 `json:"percentage"`
}

func newRawMarksTotal(rows []Row) RawMarksTotal {
	t := RawMarksTotal{Attempts: len(rows)}
	for _, r := range rows {
		t.Marks += r.Marks
	}
	return t
}

func newLatestAttemptMarksTotal(latest []Row) LatestAttemptMarksTotal {
	t := LatestAttemptMarksTotal{
		Subjects: len(latest),
		MaxMarks: float64(MaxMarksPerSubject * len(latest)),
	}
	for _, r := range latest {
		t.Marks += r.Marks
	}
	t.Percentage = percentage(t.Marks, t.MaxMarks)
	return t
}

// Add accumulates another total, recomputing the percentage.
func (t LatestAttemptMarksTotal) Add(other LatestAttemptMarksTotal) LatestAttemptMarksTotal {
	sum := LatestAttemptMarksTotal{
		Marks:    t.Marks + other.Marks,
		MaxMarks: t.MaxMarks + other.MaxMarks,
		Subjects: t.Subjects + other.Subjects,
	}
	sum.Percentage = percentage(sum.Marks, sum.MaxMarks)
	return sum
}

func percentage(marks, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return marks / max * 100
}

// SubjectCredit is the credit resolution of one latest-attempt subject.
type SubjectCredit struct {
	PaperCode shared.PaperCode `json:"paperCode"`
	PaperName string           `json:"paperName"`
	Credits   *credit.Entry    `json:"credits"`
}

// Semester aggregates one examination unit.
type Semester struct {
	Index          shared.SemesterIndex    `json:"euno"`
	Rows           []Row                   `json:"subjects"`
	Latest         []Row                   `json:"latestSubjects"`
	RawMarks       RawMarksTotal           `json:"rawMarks"`
	LatestMarks    LatestAttemptMarksTotal `json:"latestMarks"`
	SGPA           float64                 `json:"sgpa"`
	Credits        float64                 `json:"credits"`
	SubjectCredits []SubjectCredit         `json:"subjectCredits"`
	MissingCredits []shared.PaperCode      `json:"missingCredits,omitempty"`
}

// CreditsComplete reports whether every latest-attempt subject has known credits.
func (s Semester) CreditsComplete() bool {
	return len(s.MissingCredits) == 0
}

// GradePoints is SGPA weighted by the semester's credits.
func (s Semester) GradePoints() float64 {
	return s.SGPA * s.Credits
}

// Aggregate groups rows by semester and sorts the result by semester index.
// complete is false when any latest-attempt subject has unknown credits; the
// resolved subset is still summed into each semester's credits.
func Aggregate(rows []Row, resolver credit.Resolver) (semesters []Semester, complete bool) {
	groups := make(map[shared.SemesterIndex][]Row)
	for _, r := range rows {
		groups[r.Semester] = append(groups[r.Semester], r)
	}

	complete = true
	semesters = make([]Semester, 0, len(groups))
	for idx, group := range groups {
		sem := buildSemester(idx, group, resolver)
		if !sem.CreditsComplete() {
			complete = false
		}
		semesters = append(semesters, sem)
	}

	sort.Slice(semesters, func(i, j int) bool { return semesters[i].Index < semesters[j].Index })
	return semesters, complete
}

func buildSemester(idx shared.SemesterIndex, rows []Row, resolver credit.Resolver) Semester {
	latest := LatestAttempts(rows)
	sem := Semester{
		Index:          idx,
		Rows:           rows,
		Latest:         latest,
		RawMarks:       newRawMarksTotal(rows),
		LatestMarks:    newLatestAttemptMarksTotal(latest),
		SGPA:           rows[0].SGPA,
		SubjectCredits: make([]SubjectCredit, 0, len(latest)),
	}

	for _, r := range latest {
		sc := SubjectCredit{PaperCode: r.PaperCode, PaperName: r.PaperName}
		if e, ok := resolver.Resolve(r.PaperCode); ok {
			e := e
			sc.Credits = &e
			sem.Credits += e.Total
		} else {
			sem.MissingCredits = append(sem.MissingCredits, r.PaperCode)
		}
		sem.SubjectCredits = append(sem.SubjectCredits, sc)
	}
	return sem
}
