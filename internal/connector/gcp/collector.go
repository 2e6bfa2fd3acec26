// Package gcp implements the GCP discovery collector: Cloud Storage buckets
// that are public or unversioned.
package gcp

import (
	"context"
	"fmt"
	"log"

	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"github.com/PiotrMackowski/CloudStrike/internal/connector"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/spf13/cobra"
)

// envHelp describes the environment variables used by the GCP connector.
const envHelp = `GCP credentials (environment variables):
  GCP_PROJECT_ID                 - Project ID
  GOOGLE_APPLICATION_CREDENTIALS - Path to a service account JSON key`

const defaultMaxResources = 100

func init() {
	connector.Register(
		finding.GCP,
		func() collector.Collector { return &Collector{newAPI: newAPI} },
		ConfigFromEnv,
		envHelp,
	)
}

// ConfigFromEnv overlays GCP environment variables and the --gcp-project
// flag onto credentials from the config file.
func ConfigFromEnv(cmd *cobra.Command, base collector.Credentials) collector.Credentials {
	base.ProjectID = connector.EnvOrFlag(cmd, "gcp-project", "GCP_PROJECT_ID", base.ProjectID)
	base.ServiceAccountPath = connector.EnvOrFlag(cmd, "", "GOOGLE_APPLICATION_CREDENTIALS", base.ServiceAccountPath)
	return base
}

// Collector implements collector.Collector for GCP.
type Collector struct {
	newAPI func(context.Context, collector.Credentials) (api, error)
}

// Name returns the cloud this collector scans.
func (c *Collector) Name() finding.Cloud { return finding.GCP }

// Checks returns the checks this collector performs.
func (c *Collector) Checks() []string {
	return []string{
		"Buckets granting access to allUsers or allAuthenticatedUsers",
		"Buckets without object versioning",
	}
}

// Collect lists the project's buckets and inspects each one. Failing to list
// buckets is an error; a bucket whose policy cannot be read is logged and
// its public-access check skipped.
func (c *Collector) Collect(ctx context.Context, creds collector.Credentials) ([]finding.Finding, error) {
	a, err := c.newAPI(ctx, creds)
	if err != nil {
		return nil, err
	}

	buckets, err := a.Buckets(ctx, creds.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("scanning project %s: %w", creds.ProjectID, err)
	}

	limit := creds.MaxResources
	if limit <= 0 {
		limit = defaultMaxResources
	}
	if len(buckets) > limit {
		log.Printf("[gcp] inspecting first %d of %d buckets", limit, len(buckets))
		buckets = buckets[:limit]
	}

	var findings []finding.Finding
	for _, b := range buckets {
		members, err := a.Members(ctx, b.Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[gcp] WARNING cannot check bucket %s: %v", b.Name, err)
		} else if member := publicMember(members); member != "" {
			findings = append(findings, finding.Finding{
				Title:           fmt.Sprintf("Public GCS Bucket: '%s'", b.Name),
				Severity:        finding.Critical,
				Cloud:           finding.GCP,
				Description:     fmt.Sprintf("Cloud Storage bucket '%s' is publicly accessible to %s.", b.Name, member),
				RemediationHint: fmt.Sprintf("Remove public access: gsutil iam ch -d %s gs://%s", member, b.Name),
			})
		}

		if !b.Versioning {
			findings = append(findings, finding.Finding{
				Title:           fmt.Sprintf("Versioning Disabled on Bucket: '%s'", b.Name),
				Severity:        finding.Warning,
				Cloud:           finding.GCP,
				Description:     fmt.Sprintf("Cloud Storage bucket '%s' does not have versioning enabled.", b.Name),
				RemediationHint: fmt.Sprintf("Enable versioning: gsutil versioning set on gs://%s", b.Name),
			})
		}
	}

	log.Printf("[gcp] project %s: %d buckets, %d findings", creds.ProjectID, len(buckets), len(findings))
	return findings, nil
}

func publicMember(members []string) string {
	for _, m := range members {
		if m == "allUsers" || m == "allAuthenticatedUsers" {
			return m
		}
	}
	return ""
}
