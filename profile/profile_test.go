package profile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedestrian_staging/loader"
)

func sampleTable() *loader.Table {
	return &loader.Table{
		Header: []string{"sensor_id", "day", "hourly_counts"},
		Records: [][]string{
			{"1", "Monday", "10"},
			{"2", "Monday", "30"},
			{"2", "Sunday", ""},
			{"3", "<b>Friday</b>", "20"},
		},
	}
}

func TestBuild(t *testing.T) {
	report := Build("pedestrian per hour", sampleTable())

	assert.Equal(t, 4, report.Rows)
	require.Len(t, report.Columns, 3)

	id := report.Columns[0]
	assert.True(t, id.Numeric)
	assert.Equal(t, 3, id.Distinct)
	assert.Equal(t, 1.0, id.Min)
	assert.Equal(t, 3.0, id.Max)
	assert.Equal(t, ValueCount{Value: "2", Count: 2}, id.Top[0])

	day := report.Columns[1]
	assert.False(t, day.Numeric)
	assert.Equal(t, "Monday", day.Top[0].Value)

	counts := report.Columns[2]
	assert.True(t, counts.Numeric)
	assert.Equal(t, 1, counts.Missing)
	assert.InDelta(t, 20.0, counts.Mean, 1e-9)
	assert.InDelta(t, 25.0, counts.MissingPercent(), 1e-9)
}

func TestWriteHTMLEscapesValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Build("sensor location", sampleTable()).WriteHTML(&buf))

	html := buf.String()
	assert.Contains(t, html, "Data profiling: sensor location")
	assert.Contains(t, html, "&lt;b&gt;Friday&lt;/b&gt;")
	assert.NotContains(t, html, "<b>Friday</b>")
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	path, err := Build("sensor location", sampleTable()).WriteFile(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data profiling sensor location.html"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sensor_id")
}
