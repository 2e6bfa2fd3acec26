package attack

import (
	"reflect"
	"testing"

	"github.com/PiotrMackowski/CloudStrike/internal/finding"
)

func TestCategorize(t *testing.T) {
	s := Default()
	tests := []struct {
		title string
		want  string
	}{
		{"Public S3 Bucket: 'acme-data'", S3Exfiltration},
		{"Over-Permissive IAM Role: 'deployer'", IAMEscalation},
		{"CloudTrail Not Enabled", StealthPersistence},
		{"CLOUDTRAIL NOT LOGGING: 'main'", StealthPersistence},
		{"Public Storage Account: 'blobs'", AzureMalware},
		{"HTTPS Not Enforced: 'blobs'", MITMAttack},
		{"Public GCS Bucket: 'assets'", GCSLeak},
		{"Versioning Disabled: 'assets'", RansomwareAttack},
		{"Public S3 bucket with versioning disabled", S3Exfiltration},
		{"CloudTrail Enabled", ""},
		{"MFA Disabled for Root", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, ok := s.Categorize(finding.Finding{Title: tt.title})
			if ok != (tt.want != "") || got != tt.want {
				t.Errorf("Categorize(%q) = %q, %v; want %q", tt.title, got, ok, tt.want)
			}
		})
	}
}

func TestSynthesizeDedupe(t *testing.T) {
	findings := []finding.Finding{
		{Title: "Public S3 Bucket: 'a'", Severity: finding.Critical, Cloud: finding.AWS},
		{Title: "Public S3 Bucket: 'b'", Severity: finding.Critical, Cloud: finding.AWS},
		{Title: "Public S3 Bucket: 'c'", Severity: finding.Critical, Cloud: finding.AWS},
	}

	paths := Synthesize(findings)
	if len(paths) != 1 {
		t.Fatalf("Synthesize() returned %d paths, want 1", len(paths))
	}
	p := paths[0]
	if p.Title != "S3 Data Exfiltration Attack" {
		t.Errorf("Title = %q", p.Title)
	}
	if p.Severity != finding.Critical {
		t.Errorf("Severity = %q, want Critical", p.Severity)
	}
	if p.Cloud != finding.AWS {
		t.Errorf("Cloud = %q, want AWS", p.Cloud)
	}
	if len(p.Steps) != 6 {
		t.Errorf("len(Steps) = %d, want 6", len(p.Steps))
	}
	if p.Impact == "" {
		t.Error("Impact should not be empty")
	}
}

func TestSynthesizeOrder(t *testing.T) {
	findings := []finding.Finding{
		{Title: "Versioning Disabled: 'assets'", Cloud: finding.GCP},
		{Title: "Info only"},
		{Title: "HTTPS Not Enforced: 'blobs'", Cloud: finding.Azure},
		{Title: "Over-Permissive IAM Role: 'x'", Cloud: finding.AWS},
		{Title: "Versioning Disabled: 'other'", Cloud: finding.GCP},
	}

	var got []string
	for _, p := range Synthesize(findings) {
		got = append(got, p.Title)
	}
	want := []string{"Ransomware Attack", "Man-in-the-Middle Attack", "Privilege Escalation Attack"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Synthesize() titles = %v, want %v", got, want)
	}
}

func TestSynthesizeSeverities(t *testing.T) {
	findings := []finding.Finding{
		{Title: "Public Storage Account: 'a'", Cloud: finding.Azure},
		{Title: "HTTPS Not Enforced: 'a'", Cloud: finding.Azure},
	}
	paths := Synthesize(findings)
	if len(paths) != 2 {
		t.Fatalf("Synthesize() returned %d paths, want 2", len(paths))
	}
	if paths[0].Severity != finding.Critical {
		t.Errorf("Malware Hosting severity = %q, want Critical", paths[0].Severity)
	}
	if paths[1].Severity != finding.Warning {
		t.Errorf("Man-in-the-Middle severity = %q, want Warning", paths[1].Severity)
	}
}

func TestSynthesizeEmpty(t *testing.T) {
	if got := Synthesize(nil); len(got) != 0 {
		t.Errorf("Synthesize(nil) = %v, want empty", got)
	}
	if got := Synthesize([]finding.Finding{finding.NoCredentials()}); len(got) != 0 {
		t.Errorf("Synthesize(no credentials) = %v, want empty", got)
	}
}

func TestSynthesizeDeterministic(t *testing.T) {
	findings := []finding.Finding{
		{Title: "Public GCS Bucket: 'a'", Cloud: finding.GCP},
		{Title: "CloudTrail Not Enabled", Cloud: finding.AWS},
	}
	first := Synthesize(findings)
	for i := 0; i < 5; i++ {
		if got := Synthesize(findings); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
}

func TestClassifyAccumulator(t *testing.T) {
	seen := Seen{S3Exfiltration: true}
	findings := []finding.Finding{
		{Title: "Public S3 Bucket: 'a'", Cloud: finding.AWS},
		{Title: "Public GCS Bucket: 'b'", Cloud: finding.GCP},
	}

	paths, next := Classify(findings, seen)
	if len(paths) != 1 || paths[0].Title != "Mass Data Leak Attack" {
		t.Fatalf("Classify() = %v, want only the GCS path", paths)
	}
	if !next[S3Exfiltration] || !next[GCSLeak] {
		t.Errorf("returned accumulator = %v, want s3 and gcs", next)
	}
	if seen[GCSLeak] {
		t.Error("Classify must not modify the caller's accumulator")
	}

	paths, _ = Classify(findings, next)
	if len(paths) != 0 {
		t.Errorf("second Classify() = %v, want none", paths)
	}
}

func TestClassifyStepsAreCopies(t *testing.T) {
	findings := []finding.Finding{{Title: "Public S3 Bucket: 'a'"}}
	p := Synthesize(findings)[0]
	p.Steps[0] = "mutated"
	if Synthesize(findings)[0].Steps[0] == "mutated" {
		t.Error("Steps must not alias the template")
	}
}

func TestNewMissingTemplate(t *testing.T) {
	_, err := New(Rules, []Template{{Key: S3Exfiltration, Title: "x", Severity: finding.Critical}})
	if err == nil {
		t.Error("New() should fail when a rule has no template")
	}
}

func TestNewInvalidSeverity(t *testing.T) {
	rules := []Rule{{Key: "k", Match: contains("k")}}
	_, err := New(rules, []Template{{Key: "k", Title: "K", Severity: "Severe"}})
	if err == nil {
		t.Error("New() should fail on an unknown severity")
	}
}

func TestTemplates(t *testing.T) {
	tpls := Default().Templates()
	if len(tpls) != len(Rules) {
		t.Fatalf("Templates() returned %d, want %d", len(tpls), len(Rules))
	}
	for i, r := range Rules {
		if tpls[i].Key != r.Key {
			t.Errorf("Templates()[%d].Key = %q, want %q", i, tpls[i].Key, r.Key)
		}
	}
}
