package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PiotrMackowski/CloudStrike/internal/attack"
	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"github.com/PiotrMackowski/CloudStrike/internal/config"
	"github.com/PiotrMackowski/CloudStrike/internal/connector"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/PiotrMackowski/CloudStrike/internal/history"
	"github.com/PiotrMackowski/CloudStrike/internal/remediation"
	"github.com/PiotrMackowski/CloudStrike/internal/scan"
)

// isolate points HOME at a temp dir and clears provider credentials so
// commands never touch the real user config or cloud accounts.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, env := range []string{
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION",
		"AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET",
		"GCP_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS", "GEMINI_API_KEY",
	} {
		t.Setenv(env, "")
	}
	return home
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func sampleResult() *scan.Result {
	return scan.Analyze([]finding.Finding{
		{Title: "Public S3 Bucket: 'acme-data'", Severity: finding.Critical, Cloud: finding.AWS},
	})
}

func writeSnapshot(t *testing.T, findings []finding.Finding) string {
	t.Helper()
	snap := collector.NewSnapshot()
	snap.Findings = findings
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := snap.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	return path
}

// --- writeReport tests ---

func TestWriteReportFormats(t *testing.T) {
	tests := []struct {
		format string
		file   string
		want   string
	}{
		{"html", "report.html", "<!DOCTYPE html>"},
		{"json", "report.json", `"security_score": 65`},
		{"csv", "report.csv", "Title,Severity,Cloud"},
		{"terminal", "report.txt", "65/100"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), tt.file)
			if err := writeReport(nil, sampleResult(), out, tt.format, false); err != nil {
				t.Fatalf("writeReport(%s) error: %v", tt.format, err)
			}
			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("reading output: %v", err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("%s report should contain %q", tt.format, tt.want)
			}
		})
	}
}

func TestWriteReportStdout(t *testing.T) {
	var buf bytes.Buffer
	if err := writeReport(&buf, sampleResult(), "-", "json", false); err != nil {
		t.Fatalf("writeReport() error: %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("stdout is not valid JSON: %v", err)
	}
}

func TestWriteReportScript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fixes")
	if err := writeReport(nil, sampleResult(), dir, "script", false); err != nil {
		t.Fatalf("writeReport(script) error: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 files (.sh + .tf), got %d", len(entries))
	}
}

func TestWriteReportUnsupportedFormat(t *testing.T) {
	err := writeReport(&bytes.Buffer{}, sampleResult(), "", "xml", false)
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported output format") {
		t.Errorf("error should mention unsupported format, got: %v", err)
	}
}

func TestWriteReportBadPath(t *testing.T) {
	if err := writeReport(nil, sampleResult(), "/nonexistent/dir/report.html", "html", false); err == nil {
		t.Fatal("expected error for bad output path")
	}
}

// --- helpers ---

func TestPrintHistory(t *testing.T) {
	entries := []history.Entry{
		{Timestamp: "2026-01-01T10:00:00Z", SecurityScore: 40, RiskLevel: "High", FindingsCount: 3, AttacksCount: 2},
		{Timestamp: "2026-01-02T11:30:00Z", SecurityScore: 65, RiskLevel: "Medium", FindingsCount: 1, AttacksCount: 1},
	}

	var buf bytes.Buffer
	if err := printHistory(&buf, entries, 1); err != nil {
		t.Fatalf("printHistory() error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"Total scans:   2", "Last scan:     2026-01-02 11:30", "Average score: 52", "Medium"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "High") {
		t.Error("limit 1 should list only the newest scan")
	}
}

func TestPrintHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := printHistory(&buf, nil, 10); err != nil {
		t.Fatalf("printHistory() error: %v", err)
	}
	if !strings.Contains(buf.String(), "Last scan:     Never") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrintChecks(t *testing.T) {
	var buf bytes.Buffer
	err := printChecks(&buf, connector.Collectors(), attack.Default().Templates(), remediation.Default().Templates())
	if err != nil {
		t.Fatalf("printChecks() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"AWS", "Azure", "GCP", "s3_exfiltration", "gcs_versioning", "7 attack paths, 7 remediation templates"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q", want)
		}
	}
}

func TestProvidersRegistered(t *testing.T) {
	got := connector.List()
	want := []finding.Cloud{finding.AWS, finding.Azure, finding.GCP}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewEnricher(t *testing.T) {
	isolate(t)
	cfg := config.Default()

	root := newRootCmd()
	scanCmd, _, err := root.Find([]string{"scan"})
	if err != nil {
		t.Fatal(err)
	}

	e, closeFn, err := newEnricher(context.Background(), scanCmd, cfg)
	if err != nil || e != nil {
		t.Errorf("disabled enricher = %v, %v; want nil, nil", e, err)
	}
	closeFn()

	cfg.AI.Enabled = true
	if _, _, err := newEnricher(context.Background(), scanCmd, cfg); err == nil {
		t.Error("enabled enrichment without an API key should fail")
	}
}

// --- command tests ---

func TestScanNoCredentials(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, "scan", "--format", "json")
	if err != nil {
		t.Fatalf("scan error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "No Credentials Configured") {
		t.Errorf("scan output should contain the no-credentials finding\n%s", out)
	}
	if !strings.Contains(out, `"security_score": 100`) {
		t.Errorf("scan output should report a perfect score\n%s", out)
	}

	out, err = runCLI(t, "history")
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	if !strings.Contains(out, "Total scans:   1") {
		t.Errorf("history should record the scan\n%s", out)
	}
}

func TestScanNoHistory(t *testing.T) {
	isolate(t)

	if _, err := runCLI(t, "scan", "--no-history", "--format", "csv"); err != nil {
		t.Fatalf("scan error: %v", err)
	}
	out, err := runCLI(t, "history")
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	if !strings.Contains(out, "Total scans:   0") {
		t.Errorf("--no-history should skip recording\n%s", out)
	}
}

func TestCollectThenEvaluate(t *testing.T) {
	isolate(t)
	snapPath := filepath.Join(t.TempDir(), "snap.json")

	if _, err := runCLI(t, "collect", "--output", snapPath); err != nil {
		t.Fatalf("collect error: %v", err)
	}
	snap, err := collector.LoadSnapshot(snapPath)
	if err != nil {
		t.Fatalf("LoadSnapshot() error: %v", err)
	}
	if len(snap.Findings) != 1 || snap.Findings[0].Cloud != finding.System {
		t.Errorf("snapshot findings = %+v", snap.Findings)
	}

	out, err := runCLI(t, "evaluate", "--snapshot", snapPath, "--format", "terminal")
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if !strings.Contains(out, "No attack paths identified.") {
		t.Errorf("evaluate output:\n%s", out)
	}

	reportPath := filepath.Join(t.TempDir(), "report.json")
	if _, err := runCLI(t, "evaluate", "--snapshot", snapPath, "--format", "json", "--output", reportPath); err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatal(err)
	}
	var report struct {
		Risk struct {
			SecurityScore int    `json:"security_score"`
			Summary       string `json:"summary"`
		} `json:"risk"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatal(err)
	}
	if report.Risk.SecurityScore != 100 || !strings.HasPrefix(report.Risk.Summary, "No cloud credentials configured.") {
		t.Errorf("risk = %+v, want the no-credentials assessment", report.Risk)
	}
}

func TestEvaluateSnapshot(t *testing.T) {
	isolate(t)
	path := writeSnapshot(t, []finding.Finding{
		{Title: "Public S3 Bucket: 'acme-data'", Severity: finding.Critical, Cloud: finding.AWS},
		{Title: "HTTPS Not Enforced on Storage Account: 'acmestore'", Severity: finding.Warning, Cloud: finding.Azure},
	})
	out := filepath.Join(t.TempDir(), "report.json")

	if _, err := runCLI(t, "evaluate", "--snapshot", path, "--format", "json", "--output", out); err != nil {
		t.Fatalf("evaluate error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var report struct {
		Risk struct {
			SecurityScore int    `json:"security_score"`
			RiskLevel     string `json:"risk_level"`
		} `json:"risk"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatal(err)
	}
	if report.Risk.SecurityScore != 47 || report.Risk.RiskLevel != "High" {
		t.Errorf("risk = %+v, want 47/High", report.Risk)
	}
}

func TestEvaluateMissingSnapshot(t *testing.T) {
	isolate(t)
	if _, err := runCLI(t, "evaluate", "--snapshot", filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing snapshot")
	}
}

func TestLoadScanData(t *testing.T) {
	isolate(t)
	path := writeSnapshot(t, []finding.Finding{
		{Title: "Public GCS Bucket: 'media'", Severity: finding.Critical, Cloud: finding.GCP},
	})

	root := newRootCmd()
	mcpCmd, _, err := root.Find([]string{"mcp"})
	if err != nil {
		t.Fatal(err)
	}

	data, err := loadScanData(mcpCmd, path)
	if err != nil {
		t.Fatalf("loadScanData() error: %v", err)
	}
	if data.Ledger == nil {
		t.Fatal("ledger should be attached")
	}
	defer data.Ledger.Close()
	if len(data.Result.Attacks) != 1 {
		t.Errorf("attacks = %d, want 1", len(data.Result.Attacks))
	}
}
