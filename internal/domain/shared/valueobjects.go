package shared

import (
	"fmt"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// PAPER CODE
// ═══════════════════════════════════════════════════════════════════════════

// PaperCode is a canonical subject code such as "HS-301".
// It is the join key between portal rows and the credit catalog.
type PaperCode string

var paperCodeBoundary = regexp.MustCompile(`([A-Z]+)(\d)`)

// NormalizePaperCode trims and uppercases a raw code and inserts a dash between
// the first alphabetic prefix and the digit that follows it.
//
//	"hs301"  -> "HS-301"
//	"HS-301" -> "HS-301"
func NormalizePaperCode(raw string) PaperCode {
	code := strings.ToUpper(strings.TrimSpace(raw))
	loc := paperCodeBoundary.FindStringSubmatchIndex(code)
	if loc == nil {
		return PaperCode(code)
	}
	// loc[3] is the end of the letter run, where the digit starts.
	return PaperCode(code[:loc[3]] + "-" + code[loc[3]:])
}

// NormalizePaperCodes normalizes a list of raw codes, dropping blanks and duplicates
// while keeping the order of first appearance.
func NormalizePaperCodes(raw []string) []PaperCode {
	seen := make(map[PaperCode]struct{}, len(raw))
	out := make([]PaperCode, 0, len(raw))
	for _, r := range raw {
		code := NormalizePaperCode(r)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// String returns the string representation.
func (p PaperCode) String() string {
	return string(p)
}

// IsEmpty reports whether the code is blank.
func (p PaperCode) IsEmpty() bool {
	return p == ""
}

// ═══════════════════════════════════════════════════════════════════════════
// SEMESTER INDEX
// ═══════════════════════════════════════════════════════════════════════════

// SemesterIndex is the portal's "euno", the 1-based examination unit number.
type SemesterIndex int

// IsValid checks that the index is positive.
func (s SemesterIndex) IsValid() bool {
	return s > 0
}

// Label returns the display label used in trends, e.g. "Sem 3".
func (s SemesterIndex) Label() string {
	return fmt.Sprintf("Sem %d", int(s))
}

// SubjectKey builds the "{euno}-{papercode}" key used by subject-level credit overrides.
func SubjectKey(sem SemesterIndex, code PaperCode) string {
	return fmt.Sprintf("%d-%s", int(sem), code)
}
