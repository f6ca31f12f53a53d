package seed

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/shared"
)

func TestParse_KeyedDocument(t *testing.T) {
	in := `
credits:
  - paperCode: " es 101 "
    paperName: Applied Mathematics I
    theory: 4
  - paperCode: ES-151
    theory: 0
    practical: 1
`
	items, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, shared.NormalizePaperCode("es 101"), items[0].PaperCode)
	assert.Equal(t, "Applied Mathematics I", items[0].PaperName)
	assert.Equal(t, 4.0, items[0].Theory)
	assert.Nil(t, items[0].Practical)
	require.NotNil(t, items[1].Practical)
	assert.Equal(t, 1.0, items[1].Entry().Total)
}

func TestParse_TopLevelList(t *testing.T) {
	items, err := Parse(strings.NewReader("- paperCode: HS-102\n  theory: 2\n"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, shared.PaperCode("HS-102"), items[0].PaperCode)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind error
	}{
		{"empty file", "", shared.ErrInvalidInput},
		{"empty list", "credits: []\n", shared.ErrInvalidInput},
		{"scalar root", "hello\n", shared.ErrInvalidFormat},
		{"broken yaml", "credits: [\n", shared.ErrInvalidFormat},
		{"wrong type", "- paperCode: A-1\n  theory: lots\n", shared.ErrInvalidFormat},
		{"missing code", "- theory: 3\n", shared.ErrInvalidInput},
		{"zero credits", "- paperCode: A-1\n  theory: 0\n", shared.ErrValueOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestWrite_RoundTrips(t *testing.T) {
	practical := 1.0
	items := []credit.Item{
		{PaperCode: "ES-101", PaperName: "Applied Mathematics I", Theory: 4},
		{PaperCode: "ES-151", Practical: &practical},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, items))
	assert.True(t, strings.HasPrefix(buf.String(), "credits:\n"))

	got, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestIsEmpty(t *testing.T) {
	_, err := Parse(strings.NewReader("credits: []"))
	assert.True(t, IsEmpty(err))
}
