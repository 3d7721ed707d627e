package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"consentscan/pkg/model"
)

func sampleBatch() model.BulkBatch {
	return model.BulkBatch{
		BatchID:     "b1",
		Mode:        model.ModeMultiSite,
		Status:      "completed",
		Total:       2,
		Completed:   2,
		AvgScanTime: 900,
		Results: []model.ScanResult{
			{
				URL: "https://a.example", Status: model.TargetCompleted,
				Verdict: model.VerdictNonCompliant, CMP: "Cookiebot",
				Violations: 2, Trackers: 5, StartedAt: 1000, FinishedAt: 1800,
			},
			{
				URL: "https://b.example", Status: model.TargetError,
				Error: "net::ERR_NAME_NOT_RESOLVED",
			},
		},
	}
}

func TestWriteCSVFlattensResults(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleBatch()); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "url" || rows[0][4] != "violations" {
		t.Fatalf("header wrong: %v", rows[0])
	}
	if rows[1][0] != "https://a.example" || rows[1][2] != "NON_COMPLIANT" || rows[1][6] != "800" {
		t.Fatalf("flattened row wrong: %v", rows[1])
	}
	if rows[2][1] != "error" || rows[2][7] != "net::ERR_NAME_NOT_RESOLVED" {
		t.Fatalf("error row wrong: %v", rows[2])
	}
}

func TestWriteJSONKeepsBatchShape(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleBatch()); err != nil {
		t.Fatalf("write json: %v", err)
	}

	out := buf.String()
	if gjson.Get(out, "batchId").String() != "b1" {
		t.Fatalf("batch id missing: %s", out)
	}
	if gjson.Get(out, "results.#").Int() != 2 {
		t.Fatalf("results missing: %s", out)
	}
	if gjson.Get(out, "results.0.verdict").String() != "NON_COMPLIANT" {
		t.Fatalf("result fields missing: %s", out)
	}
	if !strings.Contains(out, "\n  ") {
		t.Fatalf("expected indented output")
	}
}
