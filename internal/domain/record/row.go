package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ipu-results/result-engine/internal/domain/grading"
	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Number is a lenient numeric field. The portal sends numbers, numeric
// strings, "-" or null for the same field depending on the record.
type Number struct {
	Value float64
	Valid bool
}

// NumberOf returns a valid Number.
func NumberOf(v float64) Number {
	return Number{Value: v, Valid: true}
}

// UnmarshalJSON accepts numbers, numeric strings and null. Blank, "-",
// non-numeric and non-finite strings ("NaN", "Inf") decode as absent rather
// than failing the whole payload.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			*n = Number{}
			return nil
		}
		*n = NumberOf(v)
		return nil
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", data, err)
	}
	*n = NumberOf(v)
	return nil
}

// MarshalJSON writes the number or null.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Value, 'f', -1, 64)), nil
}

// Int returns the value truncated to an int.
func (n Number) Int() int {
	return int(n.Value)
}

// Finite reports whether the number is present and neither NaN nor infinite.
func (n Number) Finite() bool {
	return n.Valid && !math.IsNaN(n.Value) && !math.IsInf(n.Value, 0)
}

// Ptr returns a pointer to the value, nil when absent.
func (n Number) Ptr() *float64 {
	if !n.Finite() {
		return nil
	}
	v := n.Value
	return &v
}

// Text is a lenient string field; numeric codes arrive unquoted on some records.
type Text string

// UnmarshalJSON accepts strings, numbers and null.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		*t = Text(data)
	}
	return nil
}

// String returns the trimmed text.
func (t Text) String() string {
	return strings.TrimSpace(string(t))
}

// RawRow is one result row exactly as the portal returns it.
type RawRow struct {
	EnrollmentNumber     Text   `json:"nrollno"`
	StudentName          Text   `json:"stname"`
	BatchYearOfAdmission Number `json:"byoa"`
	YearOfAdmission      Number `json:"yoa"`
	FatherName           Text   `json:"father"`
	ProgramCode          Text   `json:"prgcode"`
	ProgramName          Text   `json:"prgname"`
	InstituteCode        Text   `json:"icode"`
	InstituteName        Text   `json:"iname"`
	Semester             Number `json:"euno"`
	PaperCode            Text   `json:"papercode"`
	PaperName            Text   `json:"papername"`
	InternalMarks        Number `json:"minorprint"`
	ExternalMarks        Number `json:"majorprint"`
	Marks                Number `json:"moderatedprint"`
	StatusCode           Text   `json:"statuscode"`
	DeclaredMonth        Number `json:"rmonth"`
	DeclaredYear         Number `json:"ryear"`
	DeclaredDate         Text   `json:"declareddate"`
	SGPA                 Number `json:"eugpa"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PARSED ROW
// ══════════════════════════════════════════════════════════════════════════════

// Row is one validated exam attempt for one subject.
type Row struct {
	EnrollmentNumber     string               `json:"enrollmentNumber"`
	StudentName          string               `json:"studentName"`
	FatherName           string               `json:"fatherName,omitempty"`
	BatchYearOfAdmission int                  `json:"batchYearOfAdmission,omitempty"`
	YearOfAdmission      int                  `json:"yearOfAdmission,omitempty"`
	InstituteCode        string               `json:"instituteCode"`
	InstituteName        string               `json:"instituteName"`
	ProgramCode          string               `json:"programCode"`
	ProgramName          string               `json:"programName"`
	Semester             shared.SemesterIndex `json:"euno"`
	PaperCode            shared.PaperCode     `json:"paperCode"`
	PaperName            string               `json:"paperName"`
	InternalMarks        *float64             `json:"internalMarks"`
	ExternalMarks        *float64             `json:"externalMarks"`
	Marks                float64              `json:"marks"`
	StatusCode           string               `json:"statusCode,omitempty"`
	Declared             timeutil.YearMonth   `json:"declared"`
	DeclaredDate         string               `json:"declaredDate,omitempty"`
	SGPA                 float64              `json:"sgpa"`
}

// Grade returns the letter grade for the row's moderated marks.
func (r Row) Grade() grading.Grade {
	return grading.FromMarks(r.Marks)
}

// SkippedRow records a malformed portal row that was left out of aggregation.
type SkippedRow struct {
	Index     int    `json:"index"`
	PaperCode string `json:"paperCode,omitempty"`
	Reason    string `json:"reason"`
}

// Batch is the outcome of parsing a portal payload.
type Batch struct {
	Rows    []Row        `json:"rows"`
	Skipped []SkippedRow `json:"skipped,omitempty"`
}

// Empty reports whether no usable rows were found.
func (b Batch) Empty() bool {
	return len(b.Rows) == 0
}

// ParseRows validates raw rows and normalizes their paper codes. Rows missing a
// required numeric field are excluded and reported in Skipped instead of being
// counted as zero.
func ParseRows(raw []RawRow) Batch {
	batch := Batch{Rows: make([]Row, 0, len(raw))}
	for i, rr := range raw {
		row, reason := parseRow(rr)
		if reason != "" {
			batch.Skipped = append(batch.Skipped, SkippedRow{
				Index:     i,
				PaperCode: rr.PaperCode.String(),
				Reason:    reason,
			})
			continue
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch
}

func parseRow(rr RawRow) (Row, string) {
	code := shared.NormalizePaperCode(rr.PaperCode.String())
	switch {
	case code.IsEmpty():
		return Row{}, "missing paper code"
	case !rr.Semester.Finite() || rr.Semester.Value < 1 || rr.Semester.Value != float64(rr.Semester.Int()):
		return Row{}, "missing or invalid semester (euno)"
	case !rr.Marks.Finite():
		return Row{}, "missing moderated marks"
	case rr.Marks.Value < 0 || rr.Marks.Value > 100:
		return Row{}, "moderated marks outside 0-100"
	case !rr.SGPA.Finite() || rr.SGPA.Value < 0 || rr.SGPA.Value > 10:
		return Row{}, "missing or invalid semester GPA (eugpa)"
	case !rr.DeclaredYear.Finite() || !rr.DeclaredMonth.Finite():
		return Row{}, "missing declaration month/year"
	}

	declared, err := timeutil.NewYearMonth(rr.DeclaredYear.Int(), rr.DeclaredMonth.Int())
	if err != nil {
		return Row{}, "invalid declaration date: " + err.Error()
	}

	return Row{
		EnrollmentNumber:     rr.EnrollmentNumber.String(),
		StudentName:          rr.StudentName.String(),
		FatherName:           rr.FatherName.String(),
		BatchYearOfAdmission: rr.BatchYearOfAdmission.Int(),
		YearOfAdmission:      rr.YearOfAdmission.Int(),
		InstituteCode:        rr.InstituteCode.String(),
		InstituteName:        rr.InstituteName.String(),
		ProgramCode:          rr.ProgramCode.String(),
		ProgramName:          rr.ProgramName.String(),
		Semester:             shared.SemesterIndex(rr.Semester.Int()),
		PaperCode:            code,
		PaperName:            rr.PaperName.String(),
		InternalMarks:        rr.InternalMarks.Ptr(),
		ExternalMarks:        rr.ExternalMarks.Ptr(),
		Marks:                rr.Marks.Value,
		StatusCode:           rr.StatusCode.String(),
		Declared:             declared,
		DeclaredDate:         rr.DeclaredDate.String(),
		SGPA:                 rr.SGPA.Value,
	}, ""
}

// NormalizeRaw returns a copy of the raw rows with canonical paper codes, the
// form handed back to callers that keep the rows on their side.
func NormalizeRaw(raw []RawRow) []RawRow {
	out := make([]RawRow, len(raw))
	for i, rr := range raw {
		rr.PaperCode = Text(shared.NormalizePaperCode(rr.PaperCode.String()))
		out[i] = rr
	}
	return out
}

// PaperCodes returns the distinct paper codes of the rows in first-seen order.
func PaperCodes(rows []Row) []shared.PaperCode {
	seen := make(map[shared.PaperCode]struct{}, len(rows))
	out := make([]shared.PaperCode, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.PaperCode]; ok {
			continue
		}
		seen[r.PaperCode] = struct{}{}
		out = append(out, r.PaperCode)
	}
	return out
}
