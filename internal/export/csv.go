// Package export writes recorded series in interchange formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"electronic_load/internal/models"
)

// Header is the first CSV row.
var Header = []string{"Time", "Value"}

// CSV writes samples as two comma-separated columns with six decimals,
// preceded by Header.
func CSV(w io.Writer, samples []models.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, 2)
	for _, s := range samples {
		row[0] = strconv.FormatFloat(s.Elapsed, 'f', 6, 64)
		row[1] = strconv.FormatFloat(s.Value, 'f', 6, 64)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename suggests a download name for the given series.
func Filename(kind models.SeriesKind) string {
	return string(kind) + ".csv"
}
