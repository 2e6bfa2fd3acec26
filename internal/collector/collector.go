// Package collector defines the interfaces for cloud discovery.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/PiotrMackowski/CloudStrike/internal/finding"
)

// Credentials holds the connection settings for one cloud provider. Only
// the fields relevant to that provider are used.
type Credentials struct {
	// AWS
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Region    string `yaml:"region,omitempty"`

	// Azure
	TenantID     string `yaml:"tenant_id,omitempty"`
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`

	// GCP
	ProjectID          string `yaml:"project_id,omitempty"`
	ServiceAccountPath string `yaml:"service_account_path,omitempty"`

	// RateLimit is the max API requests per second (0 = connector default).
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	// MaxResources caps how many resources of each kind are inspected
	// (0 = connector default).
	MaxResources int `yaml:"max_resources,omitempty"`
}

// Bundle maps each provider to its credentials. A provider absent from the
// bundle, or with incomplete credentials, is not scanned.
type Bundle map[finding.Cloud]Credentials

// Collector is the interface that all cloud discovery probes must implement.
type Collector interface {
	// Name returns the cloud this collector scans.
	Name() finding.Cloud
	// Collect connects to the provider and returns misconfiguration findings.
	// An error means the provider could not be scanned at all.
	Collect(ctx context.Context, creds Credentials) ([]finding.Finding, error)
	// Checks returns the names of the checks this collector performs.
	Checks() []string
}

// Snapshot is a saved discovery run that can be evaluated offline.
type Snapshot struct {
	// CollectedAt is when the snapshot was taken.
	CollectedAt time.Time `json:"collected_at"`
	// CollectedBy identifies who/what initiated the collection.
	CollectedBy string `json:"collected_by"`
	// Providers lists the clouds that were scanned.
	Providers []finding.Cloud `json:"providers"`
	// Findings holds the merged findings in provider order.
	Findings []finding.Finding `json:"findings"`
	// Metadata contains additional information about the collection.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewSnapshot creates a new empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		CollectedAt: time.Now().UTC(),
		CollectedBy: "cloudstrike",
		Findings:    []finding.Finding{},
		Metadata:    make(map[string]string),
	}
}

// Save writes the snapshot as indented JSON readable only by the owner.
func (s *Snapshot) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot file. Findings are normalized, so
// hand-written or older files get the same defaults as live scans.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}

	var raw struct {
		Snapshot
		Findings []finding.RawFinding `json:"findings"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing snapshot file: %w", err)
	}

	s := raw.Snapshot
	s.Findings = make([]finding.Finding, 0, len(raw.Findings))
	for _, rf := range raw.Findings {
		s.Findings = append(s.Findings, finding.Normalize(rf))
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	return &s, nil
}
