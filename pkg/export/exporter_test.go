package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"Participant", "Occurrence", "Auto Status"},
		Rows: []map[string]string{
			{"Participant": "LGU Alpha", "Occurrence": "2024-01-08", "Auto Status": "On Time"},
			{"Participant": "LGU Beta", "Occurrence": "2024-01-08", "Auto Status": "No Submission"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "Participant,Occurrence,Auto Status\nLGU Alpha,2024-01-08,On Time\nLGU Beta,2024-01-08,No Submission\n", string(out))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "x")
	assert.Error(t, err)
	_, err = NewXLSXExporter("").Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(), "Weekly Report", "Generated 2024-01-10")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter("Submissions").Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := f.GetRows("Submissions")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Participant", "Occurrence", "Auto Status"}, rows[0])
	assert.Equal(t, []string{"LGU Beta", "2024-01-08", "No Submission"}, rows[2])
}
