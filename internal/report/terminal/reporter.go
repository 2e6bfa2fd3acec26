// Package terminal renders a styled scan summary for the console.
package terminal

import (
	"fmt"
	"io"
	"strings"

	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/PiotrMackowski/CloudStrike/internal/risk"
	"github.com/PiotrMackowski/CloudStrike/internal/scan"
	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	colorPrimary = lipgloss.Color("#4A9EFF")
	colorSuccess = lipgloss.Color("#22C55E")
	colorWarning = lipgloss.Color("#EAB308")
	colorDanger  = lipgloss.Color("#EF4444")
	colorOrange  = lipgloss.Color("#F97316")
	colorMuted   = lipgloss.Color("#6B7280")
)

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	box     lipgloss.Style
	muted   lipgloss.Style
	label   lipgloss.Style
	code    lipgloss.Style
	levels  map[risk.Level]lipgloss.Style
	badges  map[finding.Severity]lipgloss.Style
	unknown lipgloss.Style
}

func newStyles(re *lipgloss.Renderer) styles {
	return styles{
		title: re.NewStyle().Bold(true).Foreground(colorPrimary),
		header: re.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginTop(1),
		box: re.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1),
		muted: re.NewStyle().Foreground(colorMuted),
		label: re.NewStyle().Bold(true),
		code:  re.NewStyle().Foreground(colorMuted).PaddingLeft(4),
		levels: map[risk.Level]lipgloss.Style{
			risk.Critical: re.NewStyle().Bold(true).Foreground(colorDanger),
			risk.High:     re.NewStyle().Bold(true).Foreground(colorOrange),
			risk.Medium:   re.NewStyle().Bold(true).Foreground(colorWarning),
			risk.Low:      re.NewStyle().Bold(true).Foreground(colorSuccess),
		},
		badges: map[finding.Severity]lipgloss.Style{
			finding.Critical: re.NewStyle().Bold(true).Foreground(colorDanger),
			finding.High:     re.NewStyle().Bold(true).Foreground(colorOrange),
			finding.Medium:   re.NewStyle().Bold(true).Foreground(colorWarning),
			finding.Warning:  re.NewStyle().Bold(true).Foreground(colorWarning),
			finding.Info:     re.NewStyle().Foreground(colorPrimary),
		},
		unknown: re.NewStyle().Foreground(colorMuted),
	}
}

func (s styles) badge(sev finding.Severity) string {
	st, ok := s.badges[sev]
	if !ok {
		st = s.unknown
	}
	return st.Render(fmt.Sprintf("[%s]", strings.ToUpper(string(sev))))
}

// Reporter renders a console summary. Colors are dropped automatically
// when the writer is not a terminal.
type Reporter struct {
	// Verbose adds descriptions, attack steps and remediation commands.
	Verbose bool
}

// Generate writes the summary to w.
func (r *Reporter) Generate(w io.Writer, res *scan.Result) error {
	s := newStyles(lipgloss.NewRenderer(w))
	var b strings.Builder

	b.WriteString(s.title.Render("CloudStrike Security Assessment"))
	b.WriteString("\n")
	if res.ID != "" {
		b.WriteString(s.muted.Render(fmt.Sprintf("Scan %s", res.ID)))
		b.WriteString("\n")
	}

	level := s.levels[res.Risk.RiskLevel]
	score := fmt.Sprintf("%s %s   %s %s   %s %d   %s %d",
		s.label.Render("Score:"), level.Render(fmt.Sprintf("%d/100", res.Risk.SecurityScore)),
		s.label.Render("Risk:"), level.Render(string(res.Risk.RiskLevel)),
		s.label.Render("Findings:"), len(res.Findings),
		s.label.Render("Attack paths:"), len(res.Attacks),
	)
	if res.Risk.Summary != "" {
		score += "\n" + res.Risk.Summary
	}
	b.WriteString(s.box.Render(score))
	b.WriteString("\n")

	if len(res.Risk.TopRisks) > 0 {
		b.WriteString(s.header.Render("Top Risks"))
		b.WriteString("\n")
		for i, t := range res.Risk.TopRisks {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, t)
		}
	}

	b.WriteString(s.header.Render("Findings"))
	b.WriteString("\n")
	if len(res.Findings) == 0 {
		b.WriteString(s.muted.Render("  No findings."))
		b.WriteString("\n")
	}
	for _, f := range res.Findings {
		fmt.Fprintf(&b, "  %s %s %s\n", s.badge(f.Severity), f.Title, s.muted.Render(string(f.Cloud)))
		if r.Verbose && f.Description != "" {
			b.WriteString(s.muted.Render("      " + f.Description))
			b.WriteString("\n")
		}
	}

	b.WriteString(s.header.Render("Attack Paths"))
	b.WriteString("\n")
	if len(res.Attacks) == 0 {
		b.WriteString(s.muted.Render("  No attack paths identified."))
		b.WriteString("\n")
	}
	for _, a := range res.Attacks {
		fmt.Fprintf(&b, "  %s %s %s\n", s.badge(a.Severity), a.Title, s.muted.Render(string(a.Cloud)))
		if r.Verbose {
			for i, step := range a.Steps {
				fmt.Fprintf(&b, "      %d. %s\n", i+1, step)
			}
			b.WriteString(s.muted.Render("      Impact: " + a.Impact))
			b.WriteString("\n")
		}
	}

	if len(res.Remediation) > 0 {
		b.WriteString(s.header.Render("Remediation"))
		b.WriteString("\n")
		for _, rs := range res.Remediation {
			fmt.Fprintf(&b, "  %s %s\n", rs.Title, s.muted.Render(fmt.Sprintf("(%s: %s)", rs.Cloud, rs.Resource)))
			if r.Verbose {
				b.WriteString(s.code.Render(rs.CLIScript))
				b.WriteString("\n")
			}
		}
	}

	if e := res.Enrichment; e != nil && e.ExecutiveSummary != "" {
		b.WriteString(s.header.Render("Executive Summary"))
		b.WriteString("\n")
		b.WriteString(e.ExecutiveSummary)
		b.WriteString("\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("writing terminal report: %w", err)
	}
	return nil
}
