package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"electronic_load/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	samples := []models.Sample{
		{Elapsed: 0, Value: 0},
		{Elapsed: 0.5, Value: 2},
		{Elapsed: 1, Value: 2},
	}

	require.NoError(t, CSV(&buf, samples))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Time,Value", lines[0])
	assert.Equal(t, "0.000000,0.000000", lines[1])
	assert.Equal(t, "0.500000,2.000000", lines[2])
	assert.Equal(t, "1.000000,2.000000", lines[3])
}

func TestCSV_EmptySeriesWritesHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, nil))
	assert.Equal(t, "Time,Value\n", buf.String())
}

func TestCSV_NegativeAndSmallValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, []models.Sample{{Elapsed: 12.3456789, Value: -0.0000004}}))
	assert.Contains(t, buf.String(), "12.345679,-0.000000")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestCSV_WriterError(t *testing.T) {
	err := CSV(failingWriter{}, []models.Sample{{Elapsed: 1, Value: 1}})
	require.Error(t, err)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "power.csv", Filename(models.SeriesPower))
}
