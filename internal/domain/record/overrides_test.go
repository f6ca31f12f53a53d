package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditsFor(t *testing.T) {
	sem := semester(1, 7.0, 20, 160, 2)

	var none *CreditOverrides
	assert.Equal(t, 20.0, none.CreditsFor(sem))

	bySemester := &CreditOverrides{Mode: OverrideSemester, SemesterCredits: map[int]float64{1: 24}}
	assert.Equal(t, 24.0, bySemester.CreditsFor(sem))
	assert.Equal(t, 20.0, bySemester.CreditsFor(semester(2, 7.0, 20, 160, 2)))

	key := "1-" + sem.Latest[0].PaperCode.String()
	bySubject := &CreditOverrides{Mode: OverrideSubject, SubjectCredits: map[string]float64{key: 4}}
	assert.Equal(t, 4.0, bySubject.CreditsFor(sem))
}

func TestManualCGPA_SemesterMode(t *testing.T) {
	semesters := []Semester{semester(1, 7.0, 0, 160, 2), semester(2, 8.0, 0, 160, 2)}

	o := &CreditOverrides{Mode: OverrideSemester, SemesterCredits: map[int]float64{1: 20, 2: 22}}
	cgpa := ManualCGPA(semesters, o)
	require.NotNil(t, cgpa)
	assert.InDelta(t, 7.5238, *cgpa, 0.0001)

	o.SemesterCredits[2] = 0
	assert.Nil(t, ManualCGPA(semesters, o))
}

func TestManualCGPA_SubjectMode(t *testing.T) {
	s1 := semester(1, 6.0, 0, 160, 2)
	s2 := semester(2, 9.0, 0, 160, 1)
	o := &CreditOverrides{Mode: OverrideSubject, SubjectCredits: map[string]float64{
		"1-" + s1.Latest[0].PaperCode.String(): 3,
		"1-" + s1.Latest[1].PaperCode.String(): 1,
		"2-" + s2.Latest[0].PaperCode.String(): 4,
	}}

	cgpa := ManualCGPA([]Semester{s1, s2}, o)
	require.NotNil(t, cgpa)
	assert.InDelta(t, (6.0*4+9.0*4)/8, *cgpa, 1e-9)

	delete(o.SubjectCredits, "2-"+s2.Latest[0].PaperCode.String())
	assert.Nil(t, ManualCGPA([]Semester{s1, s2}, o))
}

func TestOverridesValidate(t *testing.T) {
	assert.NoError(t, (*CreditOverrides)(nil).Validate())
	assert.NoError(t, (&CreditOverrides{Mode: OverrideSemester}).Validate())
	assert.Error(t, (&CreditOverrides{Mode: "weekly"}).Validate())
	assert.Error(t, (&CreditOverrides{Mode: OverrideSubject, SubjectCredits: map[string]float64{"1-A": -1}}).Validate())
}
