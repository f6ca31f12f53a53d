package grading

// Division labels awarded on a CGPA.
const (
	DivisionExemplary = "Exemplary Performance"
	DivisionFirst     = "First Division"
	DivisionSecond    = "Second Division"
	DivisionThird     = "Third Division"
	DivisionBelowPass = "Below Pass Grade"
)

// Division classifies a CGPA on the 10-point scale.
func Division(cgpa float64) string {
	switch {
	case cgpa >= 10:
		return DivisionExemplary
	case cgpa >= 6.5:
		return DivisionFirst
	case cgpa >= 5.0:
		return DivisionSecond
	case cgpa >= 4.0:
		return DivisionThird
	default:
		return DivisionBelowPass
	}
}

// EquivalentPercentage converts a CGPA to the university's percentage equivalent.
func EquivalentPercentage(cgpa float64) float64 {
	return cgpa * 10
}
