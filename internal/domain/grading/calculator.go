package grading

// CourseEntry is one subject typed into the standalone CGPA calculator.
type CourseEntry struct {
	Credits float64 `json:"credits"`
	Marks   float64 `json:"marks"`
}

// CalculationResult is the outcome of a standalone calculation.
type CalculationResult struct {
	CGPA         float64 `json:"cgpa"`
	TotalCredits float64 `json:"totalCredits"`
	Counted      int     `json:"counted"`
	Ignored      int     `json:"ignored"`
	Division     string  `json:"division"`
	Percentage   float64 `json:"percentage"`
}

// Calculate computes sum(credits x gradePoint) / sum(credits) over the entries,
// rounded to two decimals. Entries with marks outside [0,100] or without
// positive credits are ignored. ok is false when nothing could be counted.
func Calculate(entries []CourseEntry) (result CalculationResult, ok bool) {
	var weighted float64
	for _, e := range entries {
		if e.Marks < 0 || e.Marks > 100 || e.Credits <= 0 {
			result.Ignored++
			continue
		}
		weighted += e.Credits * float64(FromMarks(e.Marks).Point())
		result.TotalCredits += e.Credits
		result.Counted++
	}

	if result.TotalCredits == 0 {
		return result, false
	}

	result.CGPA = Round(weighted/result.TotalCredits, 2)
	result.Division = Division(result.CGPA)
	result.Percentage = Round(EquivalentPercentage(result.CGPA), 2)
	return result, true
}
