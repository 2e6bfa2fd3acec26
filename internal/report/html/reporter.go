// Package html generates self-contained HTML scan reports.
package html

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/PiotrMackowski/CloudStrike/internal/risk"
	"github.com/PiotrMackowski/CloudStrike/internal/scan"
)

//go:embed templates/*.html
var templateFS embed.FS

// ReportData contains all data passed to the HTML template.
type ReportData struct {
	Title       string
	GeneratedAt string
	ScanID      string
	Providers   []finding.Cloud
	Summary     finding.Summary
	CloudStats  []CloudStat
	Result      *scan.Result
	// SeverityList orders the summary cards.
	SeverityList []finding.Severity
	// FindingsJSON is the JSON-encoded findings array, embedded in a <script> tag.
	FindingsJSON template.JS
}

// CloudStat shows the finding count for a single cloud.
type CloudStat struct {
	Cloud finding.Cloud
	Count int
}

// Reporter generates HTML reports.
type Reporter struct{}

// Generate writes an HTML report to the given writer.
func (r *Reporter) Generate(w io.Writer, res *scan.Result) error {
	tmpl, err := template.New("report.html").Funcs(template.FuncMap{
		"severityClass": severityClass,
		"levelClass":    levelClass,
	}).ParseFS(templateFS, "templates/report.html")
	if err != nil {
		return fmt.Errorf("parsing report template: %w", err)
	}

	findings := make([]finding.Finding, len(res.Findings))
	copy(findings, res.Findings)
	sort.SliceStable(findings, func(i, j int) bool {
		return finding.SeverityOrder(findings[i].Severity) < finding.SeverityOrder(findings[j].Severity)
	})

	summary := finding.NewSummary(findings)
	var cloudStats []CloudStat
	for c, n := range summary.ByCloud {
		cloudStats = append(cloudStats, CloudStat{Cloud: c, Count: n})
	}
	sort.Slice(cloudStats, func(i, j int) bool {
		return cloudStats[i].Cloud < cloudStats[j].Cloud
	})

	findingsJSON, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("marshaling findings to JSON: %w", err)
	}

	data := ReportData{
		Title:        "CloudStrike Security Assessment Report",
		GeneratedAt:  time.Now().UTC().Format("2006-01-02 15:04:05 UTC"),
		ScanID:       res.ID,
		Providers:    res.Providers,
		Summary:      summary,
		CloudStats:   cloudStats,
		Result:       res,
		FindingsJSON: template.JS(findingsJSON),
		SeverityList: []finding.Severity{
			finding.Critical, finding.Warning, finding.Info,
		},
	}

	return tmpl.Execute(w, data)
}

func severityClass(s finding.Severity) string {
	switch s {
	case finding.Critical:
		return "critical"
	case finding.High:
		return "high"
	case finding.Medium:
		return "medium"
	case finding.Warning:
		return "warning"
	case finding.Info:
		return "info"
	default:
		return "unknown"
	}
}

func levelClass(l risk.Level) string {
	switch l {
	case risk.Critical:
		return "level-critical"
	case risk.High:
		return "level-high"
	case risk.Medium:
		return "level-medium"
	case risk.Low:
		return "level-low"
	default:
		return ""
	}
}
