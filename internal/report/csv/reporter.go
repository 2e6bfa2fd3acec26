// Package csv generates CSV finding reports.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/PiotrMackowski/CloudStrike/internal/scan"
)

// Reporter generates CSV reports.
type Reporter struct{}

// columns defines the CSV header row.
var columns = []string{"Title", "Severity", "Cloud", "Description", "RemediationHint"}

// Generate writes one row per finding, most severe first. Findings of equal
// severity keep their scan order.
func (r *Reporter) Generate(w io.Writer, res *scan.Result) error {
	findings := make([]finding.Finding, len(res.Findings))
	copy(findings, res.Findings)
	sort.SliceStable(findings, func(i, j int) bool {
		return finding.SeverityOrder(findings[i].Severity) < finding.SeverityOrder(findings[j].Severity)
	})

	cw := csv.NewWriter(w)

	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, f := range findings {
		row := []string{
			f.Title,
			string(f.Severity),
			string(f.Cloud),
			f.Description,
			f.RemediationHint,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}
