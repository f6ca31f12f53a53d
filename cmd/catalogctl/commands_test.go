package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/shared"
)

const sampleRows = `[
  {"nrollno": "01234567890", "stname": "TEST STUDENT", "prgname": "BACHELOR OF TECHNOLOGY (COMPUTER SCIENCE ENGINEERING)",
   "euno": 1, "papercode": "es101", "papername": "Applied Mathematics I", "moderatedprint": "82",
   "rmonth": 1, "ryear": 2024, "eugpa": "8.5"},
  {"nrollno": "01234567890", "stname": "TEST STUDENT", "prgname": "BACHELOR OF TECHNOLOGY (COMPUTER SCIENCE ENGINEERING)",
   "euno": 1, "papercode": "HS-102", "papername": "Communication Skills", "moderatedprint": 74,
   "rmonth": 1, "ryear": 2024, "eugpa": 8.5},
  {"nrollno": "01234567890", "stname": "TEST STUDENT", "prgname": "BACHELOR OF TECHNOLOGY (COMPUTER SCIENCE ENGINEERING)",
   "euno": 2, "papercode": "ES-201", "papername": "Applied Mathematics II", "moderatedprint": 91,
   "rmonth": 7, "ryear": 2024, "eugpa": 9},
  {"nrollno": "01234567890", "papercode": "ES-103", "euno": "-", "moderatedprint": 60}
]`

const sampleSeed = `credits:
  - paperCode: ES-101
    theory: 4
  - paperCode: ES-201
    theory: 3
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type processed struct {
	CGPA               *float64 `json:"cgpa"`
	HasCompleteCredits bool     `json:"hasCompleteCredits"`
	FallbackEligible   bool     `json:"fallbackEligible"`
	SkippedRows        int      `json:"skippedRows"`
	Semesters          []struct {
		Index int `json:"euno"`
	} `json:"semesters"`
}

func TestProcess_WithSeedFile(t *testing.T) {
	rows := writeFile(t, "results.json", sampleRows)
	seedFile := writeFile(t, "credits.yaml", sampleSeed)

	out, err := execute(t, "process", rows, "--credits", seedFile)
	require.NoError(t, err)

	var rec processed
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.True(t, rec.FallbackEligible)
	assert.True(t, rec.HasCompleteCredits)
	assert.Equal(t, 1, rec.SkippedRows)
	require.NotNil(t, rec.CGPA)
	// (8.5*5 + 9*3) / 8, with HS-102 on the one-credit fallback
	assert.InDelta(t, 8.6875, *rec.CGPA, 1e-9)
	require.Len(t, rec.Semesters, 2)
	assert.Equal(t, 1, rec.Semesters[0].Index)
}

func TestProcess_NoFallbackLeavesCGPAUndefined(t *testing.T) {
	rows := writeFile(t, "results.json", `{"results": `+sampleRows+`}`)
	seedFile := writeFile(t, "credits.yaml", sampleSeed)

	out, err := execute(t, "process", rows, "--credits", seedFile, "--no-fallback", "--compact")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1)

	var rec processed
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.False(t, rec.HasCompleteCredits)
	assert.Nil(t, rec.CGPA)
	assert.Len(t, rec.Semesters, 2)
}

func TestProcess_RejectsBadInput(t *testing.T) {
	seedFile := writeFile(t, "credits.yaml", sampleSeed)

	_, err := execute(t, "process", writeFile(t, "results.json", "not json"), "--credits", seedFile)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)

	_, err = execute(t, "process", writeFile(t, "results.json", "[]"), "--credits", seedFile)
	assert.ErrorIs(t, err, shared.ErrNoResultsFound)

	_, err = execute(t, "process", writeFile(t, "results.json", `[{"papercode": "ES-101"}]`), "--credits", seedFile)
	assert.ErrorIs(t, err, shared.ErrMalformedUpstreamData)
}

func TestImport_DryRun(t *testing.T) {
	seedFile := writeFile(t, "credits.yaml", sampleSeed+"  - paperCode: hs102\n    theory: 2\n")

	out, err := execute(t, "import", seedFile, "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "3 valid item(s), nothing written\n", out)
}

func TestImport_InvalidSeed(t *testing.T) {
	seedFile := writeFile(t, "credits.yaml", "- paperCode: ES-101\n  theory: -1\n")

	_, err := execute(t, "import", seedFile, "--dry-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
	assert.Contains(t, err.Error(), "credits.yaml")
}

func TestList_RejectsUnknownOutput(t *testing.T) {
	_, err := execute(t, "list", "--output", "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output")
}

func TestPrintItems(t *testing.T) {
	practical := 1.0
	var buf bytes.Buffer
	require.NoError(t, printItems(&buf, []credit.Item{
		{PaperCode: "ES-101", PaperName: "Applied Mathematics I", Theory: 4},
		{PaperCode: "ES-151", Practical: &practical},
	}, 7))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "CODE"))
	assert.Contains(t, lines[1], "Applied Mathematics I")
	assert.Equal(t, "2 of 7 entries", lines[3])
}
