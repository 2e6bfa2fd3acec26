// Package attack turns findings into attack path narratives.
//
// Each finding is classified into at most one category by an ordered rule
// table. The first finding of a category produces one Path built from that
// category's template; later findings of the same category are ignored.
package attack

import (
	"fmt"
	"io/fs"
	"log"
	"strings"
	"sync"

	"github.com/PiotrMackowski/CloudStrike/catalog"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
)

// Category keys.
const (
	S3Exfiltration     = "s3_exfiltration"
	IAMEscalation      = "iam_escalation"
	StealthPersistence = "stealth_persistence"
	AzureMalware       = "azure_malware"
	MITMAttack         = "mitm_attack"
	GCSLeak            = "gcs_leak"
	RansomwareAttack   = "ransomware_attack"
)

// Path is a synthesized attack chain.
type Path struct {
	Title    string           `json:"title"`
	Severity finding.Severity `json:"severity"`
	Cloud    finding.Cloud    `json:"cloud"`
	Steps    []string         `json:"steps"`
	Impact   string           `json:"impact"`
}

// Rule maps findings to a category key. Match receives the lower-cased title.
type Rule struct {
	Key   string
	Match func(title string, f finding.Finding) bool
}

func contains(subs ...string) func(string, finding.Finding) bool {
	return func(title string, _ finding.Finding) bool {
		for _, s := range subs {
			if !strings.Contains(title, s) {
				return false
			}
		}
		return true
	}
}

// Rules is the classification table in priority order.
var Rules = []Rule{
	{Key: S3Exfiltration, Match: contains("public s3")},
	{Key: IAMEscalation, Match: contains("over-permissive iam")},
	{Key: StealthPersistence, Match: contains("cloudtrail", "not")},
	{Key: AzureMalware, Match: contains("public storage")},
	{Key: MITMAttack, Match: contains("https", "not enforced")},
	{Key: GCSLeak, Match: contains("public gcs")},
	{Key: RansomwareAttack, Match: contains("versioning", "disabled")},
}

// Template is the fixed narrative for one category.
type Template struct {
	Key      string           `yaml:"key"`
	Title    string           `yaml:"title"`
	Severity finding.Severity `yaml:"severity"`
	Steps    []string         `yaml:"steps"`
	Impact   string           `yaml:"impact"`
}

// Seen is the set of categories already emitted in a run.
type Seen map[string]bool

// Synthesizer classifies findings and renders attack paths.
type Synthesizer struct {
	rules     []Rule
	templates map[string]Template
}

// New creates a Synthesizer. Every rule key must have a template.
func New(rules []Rule, templates []Template) (*Synthesizer, error) {
	byKey := make(map[string]Template, len(templates))
	for _, t := range templates {
		if t.Key == "" {
			return nil, fmt.Errorf("attack template %q has no key", t.Title)
		}
		sev, err := finding.ParseSeverity(string(t.Severity))
		if err != nil {
			return nil, fmt.Errorf("attack template %s: %w", t.Key, err)
		}
		t.Severity = sev
		byKey[t.Key] = t
	}
	for _, r := range rules {
		if _, ok := byKey[r.Key]; !ok {
			return nil, fmt.Errorf("no attack template for category %s", r.Key)
		}
	}
	return &Synthesizer{rules: rules, templates: byKey}, nil
}

// Load creates a Synthesizer over the default rules with templates read from
// the attacks directory of fsys.
func Load(fsys fs.FS) (*Synthesizer, error) {
	templates, err := catalog.Load[Template](fsys, catalog.AttacksDir)
	if err != nil {
		return nil, err
	}
	return New(Rules, templates)
}

var defaultSynth = sync.OnceValue(func() *Synthesizer {
	s, err := Load(catalog.Embedded)
	if err != nil {
		panic(fmt.Sprintf("attack: embedded catalog: %v", err))
	}
	return s
})

// Default returns the Synthesizer backed by the embedded catalog.
func Default() *Synthesizer { return defaultSynth() }

// Categorize returns the category key of the first matching rule.
func (s *Synthesizer) Categorize(f finding.Finding) (string, bool) {
	title := strings.ToLower(f.Title)
	for _, r := range s.rules {
		if r.Match(title, f) {
			return r.Key, true
		}
	}
	return "", false
}

// Classify emits one Path per category not already in seen, in first
// encounter order. seen is not modified; the updated set is returned.
func (s *Synthesizer) Classify(findings []finding.Finding, seen Seen) ([]Path, Seen) {
	next := make(Seen, len(seen))
	for k, v := range seen {
		next[k] = v
	}

	var paths []Path
	for _, f := range findings {
		key, ok := s.Categorize(f)
		if !ok || next[key] {
			continue
		}
		next[key] = true
		if key == MITMAttack && f.Cloud != finding.Azure {
			log.Printf("[attack] %s matched non-Azure finding %q (cloud %s)", key, f.Title, f.Cloud)
		}

		t := s.templates[key]
		paths = append(paths, Path{
			Title:    t.Title,
			Severity: t.Severity,
			Cloud:    f.Cloud,
			Steps:    append([]string(nil), t.Steps...),
			Impact:   strings.TrimSpace(t.Impact),
		})
	}
	return paths, next
}

// Synthesize runs Classify with an empty accumulator.
func (s *Synthesizer) Synthesize(findings []finding.Finding) []Path {
	paths, _ := s.Classify(findings, nil)
	return paths
}

// Templates returns the loaded templates in rule order.
func (s *Synthesizer) Templates() []Template {
	out := make([]Template, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, s.templates[r.Key])
	}
	return out
}

// Synthesize runs the default Synthesizer.
func Synthesize(findings []finding.Finding) []Path {
	return Default().Synthesize(findings)
}

// Classify runs the default Synthesizer with an explicit accumulator.
func Classify(findings []finding.Finding, seen Seen) ([]Path, Seen) {
	return Default().Classify(findings, seen)
}
