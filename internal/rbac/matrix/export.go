package matrix

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
)

var csvHeader = []string{"role", "permission", "relationship", "method", "route", "decision", "expected", "pass", "fault"}

// WriteJSON encodes the full report, summary included.
func WriteJSON(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// WriteCSV writes one line per row under a header line. The summary is not
// part of the CSV form.
func WriteCSV(w io.Writer, report Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range report.Rows {
		record := []string{
			row.Role,
			string(row.Permission),
			string(row.Relationship),
			row.Method,
			row.Route,
			row.Decision,
			row.Expected,
			strconv.FormatBool(row.Pass),
			row.Fault,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
