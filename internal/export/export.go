// Package export renders batch results for consumers: a flattened
// tabular form and the structured batch shape as-is.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"consentscan/pkg/model"
)

var csvHeader = []string{
	"url", "status", "verdict", "cmp", "violations", "trackers", "durationMs", "error",
}

// WriteCSV flattens each target result to one row.
func WriteCSV(w io.Writer, b model.BulkBatch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range b.Results {
		var duration int64
		if r.FinishedAt > 0 && r.StartedAt > 0 {
			duration = r.FinishedAt - r.StartedAt
		}
		row := []string{
			r.URL,
			string(r.Status),
			string(r.Verdict),
			r.CMP,
			strconv.Itoa(r.Violations),
			strconv.Itoa(r.Trackers),
			strconv.FormatInt(duration, 10),
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON emits the full batch shape, indented.
func WriteJSON(w io.Writer, b model.BulkBatch) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}
