package csv

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/PiotrMackowski/CloudStrike/internal/scan"
)

func TestReporterGenerate(t *testing.T) {
	res := &scan.Result{Findings: []finding.Finding{
		{Title: "Versioning Disabled on Bucket: 'logs'", Severity: finding.Warning, Cloud: finding.GCP},
		{Title: "Public S3 Bucket: 'acme-data'", Severity: finding.Critical, Cloud: finding.AWS, Description: "Bucket allows, \"public\" reads", RemediationHint: "Block public access"},
		{Title: "Info note", Severity: finding.Info, Cloud: finding.Azure},
		{Title: "Azure Scan Error", Severity: finding.Warning, Cloud: finding.Azure},
	}}

	var buf bytes.Buffer
	reporter := &Reporter{}
	if err := reporter.Generate(&buf, res); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("Output is not valid CSV: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("Expected 5 rows (header + 4), got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "Title,Severity,Cloud,Description,RemediationHint" {
		t.Errorf("header = %v", rows[0])
	}

	wantTitles := []string{"Public S3 Bucket: 'acme-data'", "Versioning Disabled on Bucket: 'logs'", "Azure Scan Error", "Info note"}
	for i, want := range wantTitles {
		if rows[i+1][0] != want {
			t.Errorf("row %d title = %q, want %q", i+1, rows[i+1][0], want)
		}
	}
	if rows[1][3] != "Bucket allows, \"public\" reads" {
		t.Errorf("description not escaped correctly: %q", rows[1][3])
	}

	if res.Findings[0].Severity != finding.Warning {
		t.Error("Generate() must not reorder the result's findings")
	}
}

func TestReporterGenerateEmpty(t *testing.T) {
	var buf bytes.Buffer
	reporter := &Reporter{}
	if err := reporter.Generate(&buf, &scan.Result{}); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(buf.String()), "\n"); len(lines) != 1 {
		t.Errorf("Expected header only, got %d lines", len(lines))
	}
}
