package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportSample() []Record {
	a := sampleRecord("org-1", "u1", DecisionAllowed, 0)
	a.ID = "r1"
	b := sampleRecord("org-1", "u2", DecisionDenied, 0)
	b.ID = "r2"
	b.Reason = "ActionNotPermitted"
	return []Record{a, b}
}

func TestExport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, exportSample(), ExportFormatJSON))

	var decoded []Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "ActionNotPermitted", decoded[1].Reason)

	buf.Reset()
	require.NoError(t, Export(&buf, nil, ExportFormatJSON))
	assert.Equal(t, "[]\n", buf.String())
}

func TestExport_NDJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, exportSample(), ExportFormatNDJSON))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	record, err := FromJSON([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, "r1", record.ID)
}

func TestExport_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, exportSample(), ExportFormatCSV))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "r2", rows[2][0])
	assert.Equal(t, "denied", rows[2][9])
	assert.Equal(t, "ActionNotPermitted", rows[2][10])
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    ExportFormat
		wantErr bool
	}{
		{"", ExportFormatJSON, false},
		{"json", ExportFormatJSON, false},
		{"ndjson", ExportFormatNDJSON, false},
		{"csv", ExportFormatCSV, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExportFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "text/csv", ExportFormatCSV.ContentType())
}
