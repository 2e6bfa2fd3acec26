// Package json generates JSON scan reports.
package json

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/PiotrMackowski/CloudStrike/internal/attack"
	"github.com/PiotrMackowski/CloudStrike/internal/enrich"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/PiotrMackowski/CloudStrike/internal/remediation"
	"github.com/PiotrMackowski/CloudStrike/internal/risk"
	"github.com/PiotrMackowski/CloudStrike/internal/scan"
)

// Report is the top-level JSON report structure.
type Report struct {
	Title       string               `json:"title"`
	GeneratedAt string               `json:"generated_at"`
	ScanID      string               `json:"scan_id"`
	Providers   []finding.Cloud      `json:"providers"`
	Summary     finding.Summary      `json:"summary"`
	Findings    []finding.Finding    `json:"findings"`
	Attacks     []attack.Path        `json:"attacks"`
	Risk        risk.Assessment      `json:"risk"`
	Remediation []remediation.Script `json:"remediation"`
	Enrichment  *enrich.Enrichment   `json:"enrichment,omitempty"`
}

// Reporter generates JSON reports.
type Reporter struct{}

// Generate writes a JSON report to the given writer.
func (r *Reporter) Generate(w io.Writer, res *scan.Result) error {
	report := Report{
		Title:       "CloudStrike Security Assessment Report",
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		ScanID:      res.ID,
		Providers:   nonNil(res.Providers),
		Summary:     res.Summary(),
		Findings:    nonNil(res.Findings),
		Attacks:     nonNil(res.Attacks),
		Risk:        res.Risk,
		Remediation: nonNil(res.Remediation),
		Enrichment:  res.Enrichment,
	}
	if report.Risk.TopRisks == nil {
		report.Risk.TopRisks = []string{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("encoding JSON report: %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
