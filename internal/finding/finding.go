// Package finding defines the core finding model used throughout CloudStrike.
package finding

import (
	"fmt"
	"strings"
)

// Severity represents the severity level of a finding or attack path.
//
// Findings use Critical, Warning and Info. Attack paths may additionally be
// rated High or Medium.
type Severity string

const (
	Critical Severity = "Critical"
	High     Severity = "High"
	Medium   Severity = "Medium"
	Warning  Severity = "Warning"
	Info     Severity = "Info"
)

// SeverityOrder returns a numeric priority for sorting (lower = more severe).
func SeverityOrder(s Severity) int {
	switch s {
	case Critical:
		return 0
	case High:
		return 1
	case Medium:
		return 2
	case Warning:
		return 3
	case Info:
		return 4
	default:
		return 5
	}
}

// ParseSeverity parses a severity string case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return Critical, nil
	case "high":
		return High, nil
	case "medium":
		return Medium, nil
	case "warning":
		return Warning, nil
	case "info":
		return Info, nil
	default:
		return "", fmt.Errorf("invalid severity: %q", s)
	}
}

// Cloud identifies the provider a finding belongs to.
type Cloud string

const (
	AWS     Cloud = "AWS"
	Azure   Cloud = "Azure"
	GCP     Cloud = "GCP"
	System  Cloud = "System"
	Unknown Cloud = "Unknown"
)

// ProviderOrder is the fixed merge order of discovery results.
var ProviderOrder = []Cloud{AWS, Azure, GCP}

// ParseCloud parses a cloud name case-insensitively.
func ParseCloud(s string) (Cloud, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aws":
		return AWS, nil
	case "azure":
		return Azure, nil
	case "gcp":
		return GCP, nil
	case "system":
		return System, nil
	case "unknown":
		return Unknown, nil
	default:
		return "", fmt.Errorf("invalid cloud: %q", s)
	}
}

// Finding represents a single detected misconfiguration.
type Finding struct {
	// Title is a short label, possibly embedding a quoted resource name
	// (e.g. "Public S3 Bucket: 'my-bucket'").
	Title string `json:"title" yaml:"title"`
	// Severity is one of Critical, Warning or Info.
	Severity Severity `json:"severity" yaml:"severity"`
	// Cloud is the provider that produced the finding.
	Cloud Cloud `json:"cloud" yaml:"cloud"`
	// Description is a detailed explanation of the issue.
	Description string `json:"description" yaml:"description"`
	// RemediationHint is free-text advice. It is not the structured remediation.
	RemediationHint string `json:"remediation_hint" yaml:"remediation_hint"`
}

// NoCredentials returns the finding emitted when no provider was configured.
func NoCredentials() Finding {
	return Finding{
		Title:           "No Credentials Configured",
		Severity:        Info,
		Cloud:           System,
		Description:     "No cloud provider credentials have been configured, so no scan was performed.",
		RemediationHint: "Configure credentials for at least one cloud provider (AWS, Azure or GCP).",
	}
}

// ScanError returns the finding that replaces a failed discovery run.
func ScanError(cloud Cloud, err error) Finding {
	return Finding{
		Title:           fmt.Sprintf("%s Scan Error", cloud),
		Severity:        Warning,
		Cloud:           cloud,
		Description:     fmt.Sprintf("Failed to complete %s scan: %v", cloud, err),
		RemediationHint: fmt.Sprintf("Check %s credentials and permissions.", cloud),
	}
}

// Clouds returns the distinct provider clouds present in findings, excluding
// System, in ProviderOrder followed by any other cloud in first-seen order.
func Clouds(findings []Finding) []Cloud {
	present := make(map[Cloud]bool)
	var others []Cloud
	for _, f := range findings {
		if f.Cloud == "" || f.Cloud == System || present[f.Cloud] {
			continue
		}
		present[f.Cloud] = true
		if f.Cloud != AWS && f.Cloud != Azure && f.Cloud != GCP {
			others = append(others, f.Cloud)
		}
	}

	var clouds []Cloud
	for _, c := range ProviderOrder {
		if present[c] {
			clouds = append(clouds, c)
		}
	}
	return append(clouds, others...)
}

// Summary provides aggregate counts for a set of findings.
type Summary struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByCloud    map[Cloud]int    `json:"by_cloud"`
}

// NewSummary creates a Summary from a slice of findings.
func NewSummary(findings []Finding) Summary {
	s := Summary{
		Total:      len(findings),
		BySeverity: make(map[Severity]int),
		ByCloud:    make(map[Cloud]int),
	}
	for _, f := range findings {
		s.BySeverity[f.Severity]++
		s.ByCloud[f.Cloud]++
	}
	return s
}
