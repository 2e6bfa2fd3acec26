// Package scan orchestrates discovery across cloud providers and runs the
// attack, risk and remediation engines over the merged findings.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/PiotrMackowski/CloudStrike/internal/attack"
	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"github.com/PiotrMackowski/CloudStrike/internal/enrich"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/PiotrMackowski/CloudStrike/internal/remediation"
	"github.com/PiotrMackowski/CloudStrike/internal/risk"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrScanInProgress is returned when a scan is requested while another one
// is still running on the same Orchestrator.
var ErrScanInProgress = errors.New("scan already in progress")

// Default timeouts.
const (
	DefaultTimeout       = 5 * time.Minute
	DefaultEnrichTimeout = 60 * time.Second
)

// Result is the complete output of one scan.
type Result struct {
	ID          string               `json:"id"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt time.Time            `json:"completed_at"`
	Providers   []finding.Cloud      `json:"providers"`
	Findings    []finding.Finding    `json:"findings"`
	Attacks     []attack.Path        `json:"attacks"`
	Risk        risk.Assessment      `json:"risk"`
	Remediation []remediation.Script `json:"remediation"`
	Enrichment  *enrich.Enrichment   `json:"enrichment,omitempty"`
}

// Summary returns aggregate counts of the result's findings.
func (r *Result) Summary() finding.Summary {
	return finding.NewSummary(r.Findings)
}

// Orchestrator runs scans. The zero value is not usable; use New.
type Orchestrator struct {
	// Collectors maps each provider to its discovery probe.
	Collectors map[finding.Cloud]collector.Collector
	// Timeout bounds each provider's discovery.
	Timeout time.Duration
	// Enricher, when set, adds AI context after the engines have run.
	Enricher enrich.Enricher
	// EnrichTimeout bounds the enrichment step.
	EnrichTimeout time.Duration
	// Strict fails the scan on malformed findings instead of applying defaults.
	Strict bool

	mu sync.Mutex
}

// New creates an Orchestrator with default timeouts.
func New(collectors map[finding.Cloud]collector.Collector) *Orchestrator {
	return &Orchestrator{
		Collectors:    collectors,
		Timeout:       DefaultTimeout,
		EnrichTimeout: DefaultEnrichTimeout,
	}
}

// Configured returns the providers whose required credentials are present,
// in merge order.
func Configured(bundle collector.Bundle) []finding.Cloud {
	var clouds []finding.Cloud
	for _, c := range finding.ProviderOrder {
		if creds, ok := bundle[c]; ok && hasCredentials(c, creds) {
			clouds = append(clouds, c)
		}
	}
	return clouds
}

func hasCredentials(cloud finding.Cloud, c collector.Credentials) bool {
	switch cloud {
	case finding.AWS:
		return c.AccessKey != "" && c.SecretKey != ""
	case finding.Azure:
		return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
	case finding.GCP:
		return c.ProjectID != "" && c.ServiceAccountPath != ""
	default:
		return false
	}
}

// Run scans every configured provider and assembles the Result. Provider
// failures become Warning findings; Run itself fails only when ctx is
// cancelled, another scan is running, or Strict rejects a finding.
func (o *Orchestrator) Run(ctx context.Context, bundle collector.Bundle) (*Result, error) {
	if !o.mu.TryLock() {
		return nil, ErrScanInProgress
	}
	defer o.mu.Unlock()

	started := time.Now().UTC()
	clouds := Configured(bundle)
	if len(clouds) == 0 {
		log.Printf("[scan] no cloud credentials configured")
		return noCredentials(started), nil
	}

	findings, err := o.discover(ctx, clouds, bundle)
	if err != nil {
		return nil, err
	}

	res := analyze(findings)
	res.StartedAt = started
	res.Providers = clouds

	o.enrich(ctx, res)

	res.CompletedAt = time.Now().UTC()
	log.Printf("[scan] %s complete in %v: %d findings, %d attack paths, score %d (%s)",
		res.ID, res.CompletedAt.Sub(started).Round(time.Millisecond),
		len(res.Findings), len(res.Attacks), res.Risk.SecurityScore, res.Risk.RiskLevel)
	return res, nil
}

// Collect runs discovery only and returns a snapshot for later evaluation.
func (o *Orchestrator) Collect(ctx context.Context, bundle collector.Bundle) (*collector.Snapshot, error) {
	if !o.mu.TryLock() {
		return nil, ErrScanInProgress
	}
	defer o.mu.Unlock()

	snap := collector.NewSnapshot()
	clouds := Configured(bundle)
	snap.Providers = clouds
	if len(clouds) == 0 {
		log.Printf("[scan] no cloud credentials configured")
		snap.Findings = []finding.Finding{finding.NoCredentials()}
		snap.Metadata["no_credentials"] = "true"
		return snap, nil
	}

	findings, err := o.discover(ctx, clouds, bundle)
	if err != nil {
		return nil, err
	}
	snap.Findings = findings
	return snap, nil
}

// discover runs the providers concurrently, waits for all of them, and
// returns their normalized findings merged in provider order.
func (o *Orchestrator) discover(ctx context.Context, clouds []finding.Cloud, bundle collector.Bundle) ([]finding.Finding, error) {
	results := make(map[finding.Cloud][]finding.Finding, len(clouds))
	var mu sync.Mutex

	var g errgroup.Group
	for _, cloud := range clouds {
		g.Go(func() error {
			fs := o.collectOne(ctx, cloud, bundle[cloud])
			mu.Lock()
			results[cloud] = fs
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan cancelled: %w", err)
	}

	merged := finding.Merge(results, nil)
	normalized := make([]finding.Finding, 0, len(merged))
	for _, f := range merged {
		if o.Strict {
			nf, err := finding.NormalizeStrict(finding.RawFinding{
				Title:           f.Title,
				Severity:        string(f.Severity),
				Cloud:           string(f.Cloud),
				Description:     f.Description,
				RemediationHint: f.RemediationHint,
			})
			if err != nil {
				return nil, err
			}
			f = nf
		} else {
			f = finding.Sanitize(f)
		}
		normalized = append(normalized, f)
	}
	return normalized, nil
}

// collectOne runs one provider under its own timeout. An error, a timeout,
// or a missing collector yields a single ScanError finding.
func (o *Orchestrator) collectOne(ctx context.Context, cloud finding.Cloud, creds collector.Credentials) []finding.Finding {
	c, ok := o.Collectors[cloud]
	if !ok || c == nil {
		log.Printf("[scan] %s: no collector registered", cloud)
		return []finding.Finding{finding.ScanError(cloud, fmt.Errorf("no collector registered for %s", cloud))}
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		findings []finding.Finding
		err      error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	log.Printf("[scan] scanning %s...", cloud)

	go func() {
		fs, err := c.Collect(pctx, creds)
		done <- outcome{fs, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			log.Printf("[scan] ERROR %s scan failed: %v", cloud, out.err)
			return []finding.Finding{finding.ScanError(cloud, out.err)}
		}
		log.Printf("[scan] %s scan complete: %d findings in %v", cloud, len(out.findings), time.Since(start).Round(time.Millisecond))
		return out.findings
	case <-pctx.Done():
		log.Printf("[scan] ERROR %s scan timed out after %v", cloud, timeout)
		return []finding.Finding{finding.ScanError(cloud, fmt.Errorf("timed out after %v: %w", timeout, pctx.Err()))}
	}
}

func (o *Orchestrator) enrich(ctx context.Context, res *Result) {
	if o.Enricher == nil {
		return
	}
	timeout := o.EnrichTimeout
	if timeout <= 0 {
		timeout = DefaultEnrichTimeout
	}
	ectx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e, err := o.Enricher.Enrich(ectx, enrich.Input{Findings: res.Findings, Attacks: res.Attacks, Risk: res.Risk})
	if err != nil {
		log.Printf("[scan] WARNING enrichment failed: %v", err)
		return
	}
	res.Enrichment = e
}

// Analyze runs the attack, risk and remediation engines over an existing
// list of findings, such as a saved snapshot. The findings of a
// no-credentials snapshot yield the same result as a live scan with no
// configured provider.
func Analyze(findings []finding.Finding) *Result {
	if isNoCredentials(findings) {
		return noCredentials(time.Now().UTC())
	}
	res := analyze(findings)
	res.Providers = finding.Clouds(res.Findings)
	res.CompletedAt = time.Now().UTC()
	res.StartedAt = res.CompletedAt
	return res
}

func analyze(findings []finding.Finding) *Result {
	if findings == nil {
		findings = []finding.Finding{}
	}
	attacks := attack.Synthesize(findings)
	assessment := risk.Assess(findings, attacks)
	scripts := remediation.Generate(findings)

	if attacks == nil {
		attacks = []attack.Path{}
	}
	if scripts == nil {
		scripts = []remediation.Script{}
	}

	return &Result{
		ID:          uuid.New().String(),
		Findings:    findings,
		Attacks:     attacks,
		Risk:        assessment,
		Remediation: scripts,
	}
}

func isNoCredentials(findings []finding.Finding) bool {
	return len(findings) == 1 && findings[0] == finding.NoCredentials()
}

func noCredentials(started time.Time) *Result {
	return &Result{
		ID:          uuid.New().String(),
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
		Providers:   []finding.Cloud{},
		Findings:    []finding.Finding{finding.NoCredentials()},
		Attacks:     []attack.Path{},
		Risk:        risk.NoCredentials(),
		Remediation: []remediation.Script{},
	}
}
