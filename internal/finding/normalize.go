package finding

import (
	"fmt"
	"log"
	"sort"
	"strings"
)

// untitled replaces a missing title.
const untitled = "Untitled Finding"

// RawFinding is a loosely typed finding as read from a probe, a findings
// file or a saved snapshot. Every field is optional.
type RawFinding struct {
	Title           string `json:"title" yaml:"title"`
	Severity        string `json:"severity" yaml:"severity"`
	Cloud           string `json:"cloud" yaml:"cloud"`
	Description     string `json:"description" yaml:"description"`
	RemediationHint string `json:"remediation_hint" yaml:"remediation_hint"`
	// Remediation is accepted as an alias of RemediationHint.
	Remediation string `json:"remediation,omitempty" yaml:"remediation,omitempty"`
}

// Normalize shapes a raw record into a Finding. Missing or unrecognized
// values fall back to defaults (Info severity, Unknown cloud); it never fails.
func Normalize(raw RawFinding) Finding {
	f, err := NormalizeStrict(raw)
	if err != nil {
		log.Printf("[normalize] %v; applying defaults to %q", err, f.Title)
	}
	return f
}

// NormalizeStrict behaves like Normalize but also reports the first
// unrecognized severity or cloud value. The returned Finding always carries
// the defaults, so callers may choose to continue.
func NormalizeStrict(raw RawFinding) (Finding, error) {
	f := Finding{
		Title:           strings.TrimSpace(raw.Title),
		Severity:        Info,
		Cloud:           Unknown,
		Description:     raw.Description,
		RemediationHint: raw.RemediationHint,
	}
	if f.Title == "" {
		f.Title = untitled
	}
	if f.RemediationHint == "" {
		f.RemediationHint = raw.Remediation
	}

	var firstErr error
	if strings.TrimSpace(raw.Severity) != "" {
		sev, err := ParseSeverity(raw.Severity)
		if err != nil {
			firstErr = err
		} else {
			f.Severity = sev
		}
	}
	if strings.TrimSpace(raw.Cloud) != "" {
		cloud, err := ParseCloud(raw.Cloud)
		if err != nil && firstErr == nil {
			firstErr = err
		} else if err == nil {
			f.Cloud = cloud
		}
	}
	if firstErr != nil {
		return f, fmt.Errorf("malformed finding: %w", firstErr)
	}
	return f, nil
}

// Sanitize applies the same defaults as Normalize to an already typed
// Finding, so collectors that build Findings directly get the same guarantees.
func Sanitize(f Finding) Finding {
	return Normalize(RawFinding{
		Title:           f.Title,
		Severity:        string(f.Severity),
		Cloud:           string(f.Cloud),
		Description:     f.Description,
		RemediationHint: f.RemediationHint,
	})
}

// Merge concatenates provider findings in ProviderOrder (AWS, Azure, GCP)
// followed by extra findings synthesized by the caller. Findings for clouds
// outside ProviderOrder are appended after GCP in name order, before extra.
func Merge(byCloud map[Cloud][]Finding, extra []Finding) []Finding {
	var merged []Finding
	for _, c := range ProviderOrder {
		merged = append(merged, byCloud[c]...)
	}
	var others []Cloud
	for c := range byCloud {
		if c != AWS && c != Azure && c != GCP {
			others = append(others, c)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })
	for _, c := range others {
		merged = append(merged, byCloud[c]...)
	}
	return append(merged, extra...)
}
