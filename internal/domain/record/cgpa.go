package record

// ComputeCGPA returns the cumulative GPA, or nil when it is undefined.
//
//   - one semester: its SGPA, whatever the credits;
//   - complete credits: credit-weighted mean of SGPAs (0 when no credits);
//   - several semesters with incomplete credits: nil.
func ComputeCGPA(semesters []Semester, complete bool) *float64 {
	switch {
	case len(semesters) == 0:
		return nil
	case len(semesters) == 1:
		v := semesters[0].SGPA
		return &v
	case !complete:
		return nil
	}

	var credits, points float64
	for _, s := range semesters {
		credits += s.Credits
		points += s.GradePoints()
	}

	v := 0.0
	if credits > 0 {
		v = points / credits
	}
	return &v
}
