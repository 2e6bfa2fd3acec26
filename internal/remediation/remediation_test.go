package remediation

import (
	"strings"
	"testing"

	"github.com/PiotrMackowski/CloudStrike/internal/finding"
)

func TestExtractResource(t *testing.T) {
	tests := []struct {
		title  string
		want   string
		wantOK bool
	}{
		{"Public S3 Bucket: 'acme-data'", "acme-data", true},
		{`Public GCS Bucket: "assets_prod"`, "assets_prod", true},
		{"Role 'first' and 'second'", "first", true},
		{"CloudTrail Not Enabled", Placeholder, false},
		{"Bucket 'has space'", Placeholder, false},
		{"", Placeholder, false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, ok := ExtractResource(tt.title)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractResource(%q) = %q, %v; want %q, %v", tt.title, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	g := Default()
	tests := []struct {
		title string
		cloud finding.Cloud
		want  string
	}{
		{"Public S3 Bucket: 'a'", finding.AWS, S3Public},
		{"Public S3 Bucket Policy: 'a'", finding.AWS, S3Public},
		{"Public S3 access point", finding.AWS, ""},
		{"Over-Permissive IAM Role: 'r'", finding.AWS, IAMPermissive},
		{"CloudTrail Not Enabled", finding.AWS, CloudTrailDisabled},
		{"CloudTrail logging disabled", finding.AWS, CloudTrailDisabled},
		{"Public Storage Account: 's'", finding.Azure, AzureStorage},
		{"Public Storage Account: 's'", finding.AWS, ""},
		{"HTTPS Not Enforced: 's'", finding.Azure, AzureHTTPS},
		{"Public GCS Bucket: 'b'", finding.GCP, GCSPublic},
		{"Versioning Disabled: 'b'", finding.GCP, GCSVersioning},
		{"Unrelated", finding.GCP, ""},
	}

	for _, tt := range tests {
		t.Run(tt.title+"/"+string(tt.cloud), func(t *testing.T) {
			got, ok := g.Categorize(finding.Finding{Title: tt.title, Cloud: tt.cloud})
			if ok != (tt.want != "") || got != tt.want {
				t.Errorf("Categorize() = %q, %v; want %q", got, ok, tt.want)
			}
		})
	}
}

func TestResourcePlaceholders(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Over-Permissive IAM Role: 'deployer'", "deployer"},
		{"Over-Permissive IAM Policy: 'deployer'", "<ROLE_NAME>"},
		{"CloudTrail Not Logging: 'main'", "main"},
		{"CloudTrail Not Enabled", Placeholder},
		{"HTTPS Not Enforced: 'acct'", "<STORAGE_ACCOUNT>"},
		{"HTTPS Not Enforced on Storage Account: 'acct'", "acct"},
		{"Versioning Disabled: 'b'", "<BUCKET_NAME>"},
		{"Versioning Disabled on Bucket: 'b'", "b"},
		{"Public S3 Bucket", Placeholder},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			scripts := Generate([]finding.Finding{{Title: tt.title, Cloud: finding.Azure}})
			if len(scripts) != 1 {
				t.Fatalf("Generate() returned %d scripts, want 1", len(scripts))
			}
			if scripts[0].Resource != tt.want {
				t.Errorf("Resource = %q, want %q", scripts[0].Resource, tt.want)
			}
		})
	}
}

func TestGenerateS3(t *testing.T) {
	scripts := Generate([]finding.Finding{
		{Title: "Public S3 Bucket: 'acme-data'", Severity: finding.Critical, Cloud: finding.AWS},
	})
	if len(scripts) != 1 {
		t.Fatalf("Generate() returned %d scripts, want 1", len(scripts))
	}
	s := scripts[0]
	if s.Title != "Fix Public S3 Bucket Access" {
		t.Errorf("Title = %q", s.Title)
	}
	if s.Cloud != finding.AWS {
		t.Errorf("Cloud = %q, want AWS", s.Cloud)
	}
	if s.Resource != "acme-data" {
		t.Errorf("Resource = %q, want acme-data", s.Resource)
	}
	if !strings.Contains(s.CLIScript, "--bucket acme-data") {
		t.Errorf("CLIScript does not reference the bucket:\n%s", s.CLIScript)
	}
	if !strings.Contains(s.IaCScript, `resource "aws_s3_bucket_public_access_block" "acme-data_block"`) {
		t.Errorf("IaCScript does not reference the bucket:\n%s", s.IaCScript)
	}
	if strings.Contains(s.CLIScript+s.IaCScript, "{{") {
		t.Error("rendered scripts contain unexpanded template actions")
	}
}

func TestGenerateDedupe(t *testing.T) {
	findings := []finding.Finding{
		{Title: "Public GCS Bucket: 'one'", Cloud: finding.GCP},
		{Title: "Public GCS Bucket: 'two'", Cloud: finding.GCP},
	}
	scripts := Generate(findings)
	if len(scripts) != 1 {
		t.Fatalf("Generate() returned %d scripts, want 1", len(scripts))
	}
	if scripts[0].Resource != "one" {
		t.Errorf("Resource = %q, want the first finding's bucket", scripts[0].Resource)
	}
}

func TestGenerateAllCategories(t *testing.T) {
	findings := []finding.Finding{
		{Title: "Versioning Disabled on Bucket: 'v'", Cloud: finding.GCP},
		{Title: "Public GCS Bucket: 'g'", Cloud: finding.GCP},
		{Title: "HTTPS Not Enforced on Storage Account: 'h'", Cloud: finding.Azure},
		{Title: "Public Storage Account: 'p'", Cloud: finding.Azure},
		{Title: "CloudTrail Not Logging: 't'", Cloud: finding.AWS},
		{Title: "Over-Permissive IAM Role: 'r'", Cloud: finding.AWS},
		{Title: "Public S3 Bucket: 's'", Cloud: finding.AWS},
	}

	scripts := Generate(findings)
	want := []struct {
		title string
		cloud finding.Cloud
	}{
		{"Enable Versioning on GCS Bucket", finding.GCP},
		{"Remove Public Access from GCS Bucket", finding.GCP},
		{"Enforce HTTPS on Azure Storage", finding.Azure},
		{"Disable Public Access on Azure Storage", finding.Azure},
		{"Enable CloudTrail Logging", finding.AWS},
		{"Restrict Over-Permissive IAM Role", finding.AWS},
		{"Fix Public S3 Bucket Access", finding.AWS},
	}
	if len(scripts) != len(want) {
		t.Fatalf("Generate() returned %d scripts, want %d", len(scripts), len(want))
	}
	for i, w := range want {
		if scripts[i].Title != w.title || scripts[i].Cloud != w.cloud {
			t.Errorf("scripts[%d] = %q/%s, want %q/%s", i, scripts[i].Title, scripts[i].Cloud, w.title, w.cloud)
		}
		if scripts[i].CLIScript == "" || scripts[i].IaCScript == "" {
			t.Errorf("scripts[%d] has an empty script", i)
		}
	}
}

func TestClassifyAccumulator(t *testing.T) {
	seen := Seen{S3Public: true}
	scripts, next := Classify([]finding.Finding{{Title: "Public S3 Bucket: 'a'"}}, seen)
	if len(scripts) != 0 {
		t.Errorf("Classify() = %v, want none for an already seen category", scripts)
	}
	if !next[S3Public] {
		t.Error("returned accumulator lost the seen category")
	}

	scripts, next = Classify([]finding.Finding{{Title: "CloudTrail Not Enabled"}}, next)
	if len(scripts) != 1 || !next[CloudTrailDisabled] {
		t.Errorf("Classify() = %v, %v", scripts, next)
	}
	if seen[CloudTrailDisabled] {
		t.Error("Classify must not modify the caller's accumulator")
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name      string
		templates []Template
	}{
		{"missing template", nil},
		{"bad cloud", []Template{{Key: "k", Title: "K", Cloud: "Mainframe"}}},
		{"bad template", []Template{{Key: "k", Title: "K", Cloud: finding.AWS, CLI: "{{.Resource"}}},
	}
	rules := []Rule{{Key: "k", Match: func(string, finding.Finding) bool { return true }}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(rules, tt.templates); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestTemplatesOrder(t *testing.T) {
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
