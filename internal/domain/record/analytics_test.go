package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipu-results/result-engine/internal/domain/grading"
	"github.com/ipu-results/result-engine/internal/domain/shared"
)

func semester(idx int, sgpa, credits, marks float64, subjects int) Semester {
	latest := make([]Row, subjects)
	for i := range latest {
		latest[i] = row(idx, "P"+string(rune('A'+i))+"1", marks/float64(subjects), 2023, 1, sgpa)
	}
	return Semester{
		Index:       shared.SemesterIndex(idx),
		Latest:      latest,
		LatestMarks: newLatestAttemptMarksTotal(latest),
		SGPA:        sgpa,
		Credits:     credits,
	}
}

func TestDistribution_UsesLatestAttemptsAcrossSemesters(t *testing.T) {
	rows := []Row{
		row(1, "HS101", 30, 2022, 12, 5),
		row(1, "ES102", 91, 2022, 12, 5),
		row(2, "HS101", 76, 2023, 6, 6),
	}

	d := Distribution(rows)

	assert.Equal(t, GradeDistribution{
		{Grade: grading.GradeO, Count: 1},
		{Grade: grading.GradeAPlus, Count: 1},
	}, d)
	assert.Equal(t, 0, d.Count(grading.GradeF))
	assert.Equal(t, 2, d.Total())
}

func TestTrend(t *testing.T) {
	semesters := []Semester{semester(2, 8.0, 20, 150, 2), semester(1, 7.0, 20, 150, 2)}
	trend := Trend(semesters)

	require.Len(t, trend, 2)
	assert.Equal(t, TrendPoint{Label: "Sem 1", Semester: 1, SGPA: 7.0}, trend[0])
	assert.Equal(t, "Sem 2", trend[1].Label)
}

func TestSemesterWise(t *testing.T) {
	semesters := []Semester{
		semester(1, 7.0, 20, 300, 4),
		semester(2, 8.0, 20, 340, 4),
		semester(3, 9.0, 10, 180, 2),
	}

	rows := SemesterWise(semesters, nil)

	require.Len(t, rows, 3)
	assert.Equal(t, "Sem 1", rows[0].Label)
	assert.Equal(t, "Sem 1+2", rows[1].Label)
	assert.Equal(t, "Sem 1+2+3", rows[2].Label)

	assert.InDelta(t, 640.0, rows[1].Marks, 1e-9)
	assert.Equal(t, 800.0, rows[1].MaxMarks)
	assert.InDelta(t, 80.0, rows[1].Percentage, 1e-9)
	assert.Equal(t, 40.0, rows[1].Credits)
	assert.InDelta(t, 7.5, rows[1].GPA, 1e-9)
	assert.InDelta(t, (140.0+160+90)/50, rows[2].GPA, 1e-9)
}

func TestYearWise_OnlyCompleteYears(t *testing.T) {
	var semesters []Semester
	for i := 1; i <= 5; i++ {
		semesters = append(semesters, semester(i, 7.0, 20, 160, 2))
	}

	years := YearWise(semesters, nil)
	require.Len(t, years, 2)
	assert.Equal(t, "Year 1", years[0].Label)
	assert.Equal(t, "Year 1+2", years[1].Label)
	assert.Equal(t, []shared.SemesterIndex{1, 2, 3, 4}, years[1].Semesters)
	assert.Equal(t, 80.0, years[1].Credits)

	per := Yearly(semesters, nil)
	require.Len(t, per, 2)
	assert.Equal(t, 2, per[1].Year)
	assert.Equal(t, []shared.SemesterIndex{3, 4}, per[1].Semesters)
	assert.Equal(t, 40.0, per[1].Credits)
	assert.InDelta(t, 80.0, per[1].Percentage, 1e-9)

	assert.Empty(t, YearWise(semesters[:1], nil))
	assert.Len(t, SemesterWise(semesters, nil), 5)
}

func TestBreakdownZeroCreditsGPA(t *testing.T) {
	rows := SemesterWise([]Semester{semester(1, 7.0, 0, 100, 2)}, nil)
	assert.Equal(t, 0.0, rows[0].GPA)
}
