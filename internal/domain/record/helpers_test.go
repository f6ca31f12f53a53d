package record

import (
	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/pkg/timeutil"
)

const btechCSE = "BACHELOR OF TECHNOLOGY (COMPUTER SCIENCE ENGINEERING)"

func row(sem int, code string, marks float64, year, month int, sgpa float64) Row {
	return Row{
		EnrollmentNumber: "01234567890",
		StudentName:      "TEST STUDENT",
		ProgramName:      btechCSE,
		Semester:         shared.SemesterIndex(sem),
		PaperCode:        shared.NormalizePaperCode(code),
		PaperName:        "Paper " + code,
		Marks:            marks,
		Declared:         timeutil.YearMonth{Year: year, Month: month},
		SGPA:             sgpa,
	}
}

func withProgram(rows []Row, program string) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		r.ProgramName = program
		out[i] = r
	}
	return out
}
