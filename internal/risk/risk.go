// Package risk computes the security score, risk level and summary of a scan.
package risk

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/PiotrMackowski/CloudStrike/internal/attack"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
)

// Level is a discrete risk band derived from the security score.
type Level string

const (
	Low      Level = "Low"
	Medium   Level = "Medium"
	High     Level = "High"
	Critical Level = "Critical"
)

// Penalties subtracted from the starting score of 100.
const (
	findingCritical = 15
	findingWarning  = 8
	findingInfo     = 3

	attackCritical = 20
	attackHigh     = 15
	attackMedium   = 10

	multiCloud  = 10
	highImpact  = 10
	maxTopRisks = 3
)

// Assessment is the scored posture of one scan.
type Assessment struct {
	SecurityScore int      `json:"security_score"`
	RiskLevel     Level    `json:"risk_level"`
	TopRisks      []string `json:"top_risks"`
	Summary       string   `json:"summary"`
}

// LevelFor maps a score to its risk level.
func LevelFor(score int) Level {
	switch {
	case score >= 80:
		return Low
	case score >= 60:
		return Medium
	case score >= 40:
		return High
	default:
		return Critical
	}
}

// NoCredentials is the assessment returned when no provider was scanned.
func NoCredentials() Assessment {
	return Assessment{
		SecurityScore: 100,
		RiskLevel:     Low,
		TopRisks:      []string{},
		Summary:       "No cloud credentials configured. Add credentials to begin security assessment.",
	}
}

// Score computes the clamped security score.
func Score(findings []finding.Finding, attacks []attack.Path) int {
	score := 100

	for _, f := range findings {
		switch f.Severity {
		case finding.Critical:
			score -= findingCritical
		case finding.Warning:
			score -= findingWarning
		case finding.Info:
			score -= findingInfo
		}
	}

	for _, a := range attacks {
		switch a.Severity {
		case finding.Critical:
			score -= attackCritical
		case finding.High:
			score -= attackHigh
		case finding.Medium:
			score -= attackMedium
		}
	}

	if clouds := finding.Clouds(findings); len(clouds) > 1 {
		log.Printf("[risk] multi-cloud exposure: %v", clouds)
		score -= multiCloud
	}

	for _, a := range attacks {
		title := strings.ToLower(a.Title)
		if strings.Contains(title, "persistence") || strings.Contains(title, "privilege escalation") {
			score -= highImpact
		}
	}

	return max(0, min(100, score))
}

// TopRisks returns up to three attack titles ordered by severity, keeping
// input order among equal severities.
func TopRisks(attacks []attack.Path) []string {
	sorted := make([]attack.Path, len(attacks))
	copy(sorted, attacks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return finding.SeverityOrder(sorted[i].Severity) < finding.SeverityOrder(sorted[j].Severity)
	})

	top := make([]string, 0, maxTopRisks)
	for i := 0; i < len(sorted) && i < maxTopRisks; i++ {
		top = append(top, sorted[i].Title)
	}
	return top
}

// Assess scores findings and attack paths. It is pure apart from logging.
func Assess(findings []finding.Finding, attacks []attack.Path) Assessment {
	score := Score(findings, attacks)
	level := LevelFor(score)
	log.Printf("[risk] score=%d level=%s findings=%d attacks=%d", score, level, len(findings), len(attacks))

	return Assessment{
		SecurityScore: score,
		RiskLevel:     level,
		TopRisks:      TopRisks(attacks),
		Summary:       Summarize(level, len(findings), len(attacks), finding.Clouds(findings)),
	}
}

// Summarize renders the human-readable summary for a level.
func Summarize(level Level, findings, attacks int, clouds []finding.Cloud) string {
	var b strings.Builder

	switch level {
	case Critical:
		b.WriteString("CRITICAL SECURITY POSTURE: Your cloud infrastructure has severe vulnerabilities. ")
		fmt.Fprintf(&b, "Detected %d security issues enabling %d potential attack paths. ", findings, attacks)
		b.WriteString("Immediate remediation required to prevent data breaches and account compromise.")
	case High:
		b.WriteString("HIGH RISK DETECTED: Your environment has significant security gaps. ")
		fmt.Fprintf(&b, "Found %d misconfigurations that could lead to %d attack scenarios. ", findings, attacks)
		b.WriteString("Priority remediation recommended within 24-48 hours.")
	case Medium:
		b.WriteString("MODERATE SECURITY CONCERNS: Your infrastructure has some vulnerabilities. ")
		fmt.Fprintf(&b, "Identified %d issues with %d possible attack vectors. ", findings, attacks)
		b.WriteString("Address critical findings to improve security posture.")
	default:
		if findings == 0 {
			b.WriteString("EXCELLENT SECURITY POSTURE: No significant vulnerabilities detected. ")
			b.WriteString("Your cloud infrastructure follows security best practices. Continue monitoring.")
		} else {
			b.WriteString("GOOD SECURITY POSTURE: Minor issues detected. ")
			fmt.Fprintf(&b, "Found %d low-priority items. ", findings)
			b.WriteString("Address remaining findings to achieve optimal security.")
		}
	}

	if len(clouds) > 1 {
		names := make([]string, len(clouds))
		for i, c := range clouds {
			names[i] = string(c)
		}
		fmt.Fprintf(&b, " Multi-cloud exposure across %s increases attack surface.", strings.Join(names, ", "))
	}

	return b.String()
}
