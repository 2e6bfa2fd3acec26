// Package azure implements the Azure discovery collector: storage accounts
// that allow public blob access or plain HTTP traffic.
package azure

import (
	"context"
	"fmt"
	"log"

	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"github.com/PiotrMackowski/CloudStrike/internal/connector"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/spf13/cobra"
)

// envHelp describes the environment variables used by the Azure connector.
const envHelp = `Azure credentials (environment variables):
  AZURE_TENANT_ID     - Tenant ID
  AZURE_CLIENT_ID     - Service principal client ID
  AZURE_CLIENT_SECRET - Service principal client secret`

const defaultMaxResources = 100

func init() {
	connector.Register(
		finding.Azure,
		func() collector.Collector { return &Collector{newAPI: newAPI} },
		ConfigFromEnv,
		envHelp,
	)
}

// ConfigFromEnv overlays Azure environment variables onto credentials from
// the config file.
func ConfigFromEnv(cmd *cobra.Command, base collector.Credentials) collector.Credentials {
	base.TenantID = connector.EnvOrFlag(cmd, "azure-tenant", "AZURE_TENANT_ID", base.TenantID)
	base.ClientID = connector.EnvOrFlag(cmd, "", "AZURE_CLIENT_ID", base.ClientID)
	base.ClientSecret = connector.EnvOrFlag(cmd, "", "AZURE_CLIENT_SECRET", base.ClientSecret)
	return base
}

// Collector implements collector.Collector for Azure.
type Collector struct {
	newAPI func(collector.Credentials) (api, error)
}

// Name returns the cloud this collector scans.
func (c *Collector) Name() finding.Cloud { return finding.Azure }

// Checks returns the checks this collector performs.
func (c *Collector) Checks() []string {
	return []string{
		"Storage accounts allowing public blob access",
		"Storage accounts not enforcing HTTPS-only traffic",
	}
}

// Collect lists the accessible subscriptions and inspects their storage
// accounts. Failing to list subscriptions is an error; a failing
// subscription is logged and skipped.
func (c *Collector) Collect(ctx context.Context, creds collector.Credentials) ([]finding.Finding, error) {
	a, err := c.newAPI(creds)
	if err != nil {
		return nil, err
	}

	subs, err := a.Subscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticating to Azure: %w", err)
	}
	if len(subs) == 0 {
		return []finding.Finding{{
			Title:           "No Azure Subscriptions Found",
			Severity:        finding.Info,
			Cloud:           finding.Azure,
			Description:     "No accessible Azure subscriptions found with provided credentials.",
			RemediationHint: "Ensure the service principal has Reader access to subscriptions.",
		}}, nil
	}

	limit := creds.MaxResources
	if limit <= 0 {
		limit = defaultMaxResources
	}
	if len(subs) > limit {
		log.Printf("[azure] inspecting first %d of %d subscriptions", limit, len(subs))
		subs = subs[:limit]
	}

	var findings []finding.Finding
	for _, sub := range subs {
		accounts, err := a.StorageAccounts(ctx, sub)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[azure] WARNING cannot check subscription %s: %v", sub, err)
			continue
		}
		log.Printf("[azure] subscription %s: %d storage accounts", sub, len(accounts))
		for _, acct := range accounts {
			findings = append(findings, checkAccount(acct)...)
		}
	}
	return findings, nil
}

func checkAccount(acct storageAccount) []finding.Finding {
	var findings []finding.Finding

	if acct.AllowBlobPublicAccess != nil && *acct.AllowBlobPublicAccess {
		findings = append(findings, finding.Finding{
			Title:           fmt.Sprintf("Public Storage Account: '%s'", acct.Name),
			Severity:        finding.Critical,
			Cloud:           finding.Azure,
			Description:     fmt.Sprintf("Storage account '%s' allows public blob access.", acct.Name),
			RemediationHint: fmt.Sprintf("Disable public access: az storage account update --name %s --allow-blob-public-access false", acct.Name),
		})
	}

	if acct.HTTPSTrafficOnly != nil && !*acct.HTTPSTrafficOnly {
		findings = append(findings, finding.Finding{
			Title:           fmt.Sprintf("HTTPS Not Enforced on Storage Account: '%s'", acct.Name),
			Severity:        finding.Warning,
			Cloud:           finding.Azure,
			Description:     fmt.Sprintf("Storage account '%s' does not enforce HTTPS-only traffic.", acct.Name),
			RemediationHint: fmt.Sprintf("Enable HTTPS only: az storage account update --name %s --https-only true", acct.Name),
		})
	}

	return findings
}
