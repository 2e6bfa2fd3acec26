// Package enrich adds optional AI-generated context to a scan: extra attack
// scenarios and an executive summary. Enrichment is advisory and never
// changes the deterministic findings, attack paths, score or remediation.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/PiotrMackowski/CloudStrike/internal/attack"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/PiotrMackowski/CloudStrike/internal/risk"
)

const (
	defaultMaxFindings = 5
	descriptionLimit   = 100
)

// Input is the deterministic scan output the enricher reasons about.
type Input struct {
	Findings []finding.Finding
	Attacks  []attack.Path
	Risk     risk.Assessment
}

// Enrichment is the AI-generated addition to a scan result.
type Enrichment struct {
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	Scenarios        []attack.Path `json:"scenarios"`
	ExecutiveSummary string        `json:"executive_summary,omitempty"`
}

// Enricher produces an Enrichment for a scan.
type Enricher interface {
	Enrich(ctx context.Context, in Input) (*Enrichment, error)
}

// Generator is a text completion backend.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMEnricher implements Enricher on top of a Generator.
type LLMEnricher struct {
	gen      Generator
	provider string
	model    string

	// MaxFindings caps how many findings are described in the scenario prompt.
	MaxFindings int
}

// New creates an LLMEnricher. provider and model are recorded in the output.
func New(gen Generator, provider, model string) *LLMEnricher {
	return &LLMEnricher{gen: gen, provider: provider, model: model, MaxFindings: defaultMaxFindings}
}

// Enrich asks the generator for attack scenarios and an executive summary.
// A failure of one part is logged and the other is still returned; it is an
// error only when both fail.
func (e *LLMEnricher) Enrich(ctx context.Context, in Input) (*Enrichment, error) {
	out := &Enrichment{Provider: e.provider, Model: e.model, Scenarios: []attack.Path{}}

	var scenErr error
	if len(in.Findings) > 0 {
		out.Scenarios, scenErr = e.scenarios(ctx, in.Findings)
		if scenErr != nil {
			log.Printf("[enrich] attack scenarios failed: %v", scenErr)
			out.Scenarios = []attack.Path{}
		}
	}

	summary, sumErr := e.gen.Generate(ctx, summaryPrompt(in))
	if sumErr != nil {
		log.Printf("[enrich] executive summary failed: %v", sumErr)
	}
	out.ExecutiveSummary = strings.TrimSpace(summary)

	if scenErr != nil && sumErr != nil {
		return nil, errors.Join(scenErr, sumErr)
	}
	log.Printf("[enrich] %d AI scenarios, summary=%t", len(out.Scenarios), out.ExecutiveSummary != "")
	return out, nil
}

func (e *LLMEnricher) scenarios(ctx context.Context, findings []finding.Finding) ([]attack.Path, error) {
	limit := e.MaxFindings
	if limit <= 0 {
		limit = defaultMaxFindings
	}
	if len(findings) > limit {
		findings = findings[:limit]
	}

	text, err := e.gen.Generate(ctx, scenarioPrompt(findings))
	if err != nil {
		return nil, err
	}
	return ParseScenarios(text)
}

// rawScenario is the loosely typed JSON the model is asked to return.
type rawScenario struct {
	Title    string   `json:"title"`
	Severity string   `json:"severity"`
	Cloud    string   `json:"cloud"`
	Steps    []string `json:"steps"`
	Impact   string   `json:"impact"`
}

// ParseScenarios extracts a JSON array of scenarios from a model response,
// tolerating Markdown code fences around it. Unknown severities become
// Medium and unknown clouds become Unknown.
func ParseScenarios(text string) ([]attack.Path, error) {
	body := extractJSON(text)

	var raw []rawScenario
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("parsing scenarios: %w", err)
	}

	paths := make([]attack.Path, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Title) == "" {
			continue
		}
		sev, err := finding.ParseSeverity(r.Severity)
		if err != nil {
			sev = finding.Medium
		}
		cloud, err := finding.ParseCloud(r.Cloud)
		if err != nil {
			cloud = finding.Unknown
		}
		steps := r.Steps
		if steps == nil {
			steps = []string{}
		}
		paths = append(paths, attack.Path{
			Title:    strings.TrimSpace(r.Title),
			Severity: sev,
			Cloud:    cloud,
			Steps:    steps,
			Impact:   strings.TrimSpace(r.Impact),
		})
	}
	return paths, nil
}

// extractJSON strips a ```json or ``` fence if present.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```"} {
		if _, after, ok := strings.Cut(text, fence); ok {
			body, _, _ := strings.Cut(after, "```")
			return strings.TrimSpace(body)
		}
	}
	return text
}

func scenarioPrompt(findings []finding.Finding) string {
	var b strings.Builder
	b.WriteString("You are a cybersecurity expert analyzing cloud security vulnerabilities.\n\n")
	b.WriteString("Given these security findings:\n")
	for _, f := range findings {
		desc := f.Description
		if len(desc) > descriptionLimit {
			desc = desc[:descriptionLimit]
		}
		fmt.Fprintf(&b, "- %s (%s) on %s: %s\n", f.Title, f.Severity, f.Cloud, desc)
	}
	b.WriteString(`
Generate 3 realistic attack scenarios that an attacker could execute. For each scenario:
1. Give it a threatening title
2. List 3-4 specific attack steps
3. Describe the potential impact

Format as JSON array:
[
  {
    "title": "Attack name",
    "severity": "Critical/High/Medium",
    "cloud": "AWS/Azure/GCP",
    "steps": ["step1", "step2", "step3"],
    "impact": "Description of damage"
  }
]

Focus on realistic, technical attack chains. Return ONLY the JSON array, no other text.`)
	return b.String()
}

func summaryPrompt(in Input) string {
	critical := 0
	for _, f := range in.Findings {
		if f.Severity == finding.Critical {
			critical++
		}
	}
	return fmt.Sprintf(`Analyze this cloud security posture:
- Security Score: %d/100
- Risk Level: %s
- Critical Issues: %d
- Total Findings: %d
- Attack Paths: %d

Write a 2-3 sentence executive summary of the security risks. Be direct and actionable.`,
		in.Risk.SecurityScore, in.Risk.RiskLevel, critical, len(in.Findings), len(in.Attacks))
}
