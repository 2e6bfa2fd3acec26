// Package remediation renders CLI and Terraform fix scripts for findings.
package remediation

import (
	"bytes"
	"fmt"
	"io/fs"
	"log"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/PiotrMackowski/CloudStrike/catalog"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
)

// Category keys.
const (
	S3Public           = "s3_public"
	IAMPermissive      = "iam_permissive"
	CloudTrailDisabled = "cloudtrail_disabled"
	AzureStorage       = "azure_storage"
	AzureHTTPS         = "azure_https"
	GCSPublic          = "gcs_public"
	GCSVersioning      = "gcs_versioning"
)

// Placeholder is substituted when a title carries no quoted resource name.
const Placeholder = "<RESOURCE_NAME>"

// Script is a generated remediation for one category.
type Script struct {
	Title     string        `json:"title"`
	Cloud     finding.Cloud `json:"cloud"`
	Resource  string        `json:"resource"`
	CLIScript string        `json:"cli_script"`
	IaCScript string        `json:"terraform"`
}

// Rule maps findings to a category key. Match receives the lower-cased title.
type Rule struct {
	Key   string
	Match func(title string, f finding.Finding) bool
}

func has(title string, subs ...string) bool {
	for _, s := range subs {
		if !strings.Contains(title, s) {
			return false
		}
	}
	return true
}

// Rules is the classification table in priority order.
var Rules = []Rule{
	{Key: S3Public, Match: func(t string, _ finding.Finding) bool { return has(t, "public s3 bucket") }},
	{Key: IAMPermissive, Match: func(t string, _ finding.Finding) bool { return has(t, "over-permissive iam") }},
	{Key: CloudTrailDisabled, Match: func(t string, _ finding.Finding) bool {
		return has(t, "cloudtrail") && (has(t, "not") || has(t, "disabled"))
	}},
	{Key: AzureStorage, Match: func(t string, f finding.Finding) bool {
		return has(t, "public storage") && f.Cloud == finding.Azure
	}},
	{Key: AzureHTTPS, Match: func(t string, _ finding.Finding) bool { return has(t, "https", "not enforced") }},
	{Key: GCSPublic, Match: func(t string, _ finding.Finding) bool { return has(t, "public gcs") }},
	{Key: GCSVersioning, Match: func(t string, _ finding.Finding) bool { return has(t, "versioning", "disabled") }},
}

var quoted = regexp.MustCompile(`['"]([\w\-]+)['"]`)

// ExtractResource returns the first quoted name in title. It returns
// Placeholder and false when there is none.
func ExtractResource(title string) (string, bool) {
	m := quoted.FindStringSubmatch(title)
	if m == nil {
		return Placeholder, false
	}
	return m[1], true
}

// Template is the fixed remediation for one category.
//
// When Keyword is set and absent from the lower-cased title, the resource is
// Placeholder instead of the extracted name.
type Template struct {
	Key         string        `yaml:"key"`
	Title       string        `yaml:"title"`
	Cloud       finding.Cloud `yaml:"cloud"`
	Keyword     string        `yaml:"keyword,omitempty"`
	Placeholder string        `yaml:"placeholder,omitempty"`
	CLI         string        `yaml:"cli"`
	Terraform   string        `yaml:"terraform"`

	cli *template.Template
	iac *template.Template
}

// Resource picks the resource name used to render t for a finding title.
func (t *Template) Resource(title string) string {
	if t.Keyword != "" && !strings.Contains(strings.ToLower(title), t.Keyword) {
		return t.Placeholder
	}
	name, _ := ExtractResource(title)
	return name
}

func (t *Template) compile() error {
	var err error
	if t.cli, err = template.New(t.Key + ".cli").Option("missingkey=error").Parse(t.CLI); err != nil {
		return fmt.Errorf("parsing CLI template: %w", err)
	}
	if t.iac, err = template.New(t.Key + ".tf").Option("missingkey=error").Parse(t.Terraform); err != nil {
		return fmt.Errorf("parsing Terraform template: %w", err)
	}
	return nil
}

func (t *Template) render(resource string) (Script, error) {
	data := struct{ Resource string }{resource}

	var cli, iac bytes.Buffer
	if err := t.cli.Execute(&cli, data); err != nil {
		return Script{}, fmt.Errorf("rendering %s CLI script: %w", t.Key, err)
	}
	if err := t.iac.Execute(&iac, data); err != nil {
		return Script{}, fmt.Errorf("rendering %s Terraform: %w", t.Key, err)
	}
	return Script{
		Title:     t.Title,
		Cloud:     t.Cloud,
		Resource:  resource,
		CLIScript: strings.TrimRight(cli.String(), "\n"),
		IaCScript: strings.TrimRight(iac.String(), "\n"),
	}, nil
}

// Seen is the set of categories already emitted in a run.
type Seen map[string]bool

// Generator classifies findings and renders remediation scripts.
type Generator struct {
	rules     []Rule
	templates map[string]*Template
}

// New creates a Generator. Every rule key must have a template.
func New(rules []Rule, templates []Template) (*Generator, error) {
	byKey := make(map[string]*Template, len(templates))
	for i := range templates {
		t := templates[i]
		if t.Key == "" {
			return nil, fmt.Errorf("remediation template %q has no key", t.Title)
		}
		cloud, err := finding.ParseCloud(string(t.Cloud))
		if err != nil {
			return nil, fmt.Errorf("remediation template %s: %w", t.Key, err)
		}
		t.Cloud = cloud
		if t.Keyword != "" && t.Placeholder == "" {
			t.Placeholder = Placeholder
		}
		if err := t.compile(); err != nil {
			return nil, fmt.Errorf("remediation template %s: %w", t.Key, err)
		}
		byKey[t.Key] = &t
	}
	for _, r := range rules {
		if _, ok := byKey[r.Key]; !ok {
			return nil, fmt.Errorf("no remediation template for category %s", r.Key)
		}
	}
	return &Generator{rules: rules, templates: byKey}, nil
}

// Load creates a Generator over the default rules with templates read from
// the remediation directory of fsys.
func Load(fsys fs.FS) (*Generator, error) {
	templates, err := catalog.Load[Template](fsys, catalog.RemediationDir)
	if err != nil {
		return nil, err
	}
	return New(Rules, templates)
}

var defaultGen = sync.OnceValue(func() *Generator {
	g, err := Load(catalog.Embedded)
	if err != nil {
		panic(fmt.Sprintf("remediation: embedded catalog: %v", err))
	}
	return g
})

// Default returns the Generator backed by the embedded catalog.
func Default() *Generator { return defaultGen() }

// Categorize returns the category key of the first matching rule.
func (g *Generator) Categorize(f finding.Finding) (string, bool) {
	title := strings.ToLower(f.Title)
	for _, r := range g.rules {
		if r.Match(title, f) {
			return r.Key, true
		}
	}
	return "", false
}

// Classify emits one Script per category not already in seen, in first
// encounter order. seen is not modified; the updated set is returned.
// Templates are validated in New, so rendering failures are not expected;
// a finding whose script cannot be rendered is skipped.
func (g *Generator) Classify(findings []finding.Finding, seen Seen) ([]Script, Seen) {
	next := make(Seen, len(seen))
	for k, v := range seen {
		next[k] = v
	}

	var scripts []Script
	for _, f := range findings {
		key, ok := g.Categorize(f)
		if !ok || next[key] {
			continue
		}
		t := g.templates[key]
		s, err := t.render(t.Resource(f.Title))
		if err != nil {
			log.Printf("[remediation] %v", err)
			continue
		}
		next[key] = true
		scripts = append(scripts, s)
	}
	return scripts, next
}

// Generate runs Classify with an empty accumulator.
func (g *Generator) Generate(findings []finding.Finding) []Script {
	scripts, _ := g.Classify(findings, nil)
	return scripts
}

// Templates returns the loaded templates in rule order.
func (g *Generator) Templates() []Template {
	out := make([]Template, 0, len(g.rules))
	for _, r := range g.rules {
		out = append(out, *g.templates[r.Key])
	}
	return out
}

// Generate runs the default Generator.
func Generate(findings []finding.Finding) []Script {
	return Default().Generate(findings)
}

// Classify runs the default Generator with an explicit accumulator.
func Classify(findings []finding.Finding, seen Seen) ([]Script, Seen) {
	return Default().Classify(findings, seen)
}
