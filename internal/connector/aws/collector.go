// Package aws implements the AWS discovery collector: public S3 buckets,
// over-permissive IAM roles and CloudTrail logging.
package aws

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"github.com/PiotrMackowski/CloudStrike/internal/connector"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/cobra"
)

// envHelp describes the environment variables used by the AWS connector.
const envHelp = `AWS credentials (environment variables):
  AWS_ACCESS_KEY_ID     - Access key ID
  AWS_SECRET_ACCESS_KEY - Secret access key
  AWS_REGION            - Region (default us-east-1)`

const (
	defaultRegion       = "us-east-1"
	defaultMaxResources = 100

	allUsersURI           = "http://acs.amazonaws.com/groups/global/AllUsers"
	authenticatedUsersURI = "http://acs.amazonaws.com/groups/global/AuthenticatedUsers"
)

func init() {
	connector.Register(
		finding.AWS,
		func() collector.Collector { return &Collector{newClients: newClients} },
		ConfigFromEnv,
		envHelp,
	)
}

// ConfigFromEnv overlays AWS environment variables and the --aws-region
// flag onto credentials from the config file.
func ConfigFromEnv(cmd *cobra.Command, base collector.Credentials) collector.Credentials {
	base.AccessKey = connector.EnvOrFlag(cmd, "", "AWS_ACCESS_KEY_ID", base.AccessKey)
	base.SecretKey = connector.EnvOrFlag(cmd, "", "AWS_SECRET_ACCESS_KEY", base.SecretKey)
	base.Region = connector.EnvOrFlag(cmd, "aws-region", "AWS_REGION", base.Region)
	if base.Region == "" {
		base.Region = defaultRegion
	}
	return base
}

// Collector implements collector.Collector for AWS.
type Collector struct {
	newClients func(ctx context.Context, creds collector.Credentials) (*clients, error)
}

// Name returns the cloud this collector scans.
func (c *Collector) Name() finding.Cloud { return finding.AWS }

// Checks returns the checks this collector performs.
func (c *Collector) Checks() []string {
	return []string{
		"S3 bucket ACL grants to AllUsers/AuthenticatedUsers",
		"S3 bucket policy status",
		"IAM roles with AdministratorAccess or *FullAccess policies",
		"CloudTrail trails present and logging",
	}
}

// Collect verifies the credentials and runs every AWS check. A failing
// individual check is logged and skipped; failing authentication is an error.
func (c *Collector) Collect(ctx context.Context, creds collector.Credentials) ([]finding.Finding, error) {
	cl, err := c.newClients(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("creating AWS clients: %w", err)
	}
	if err := cl.verify(ctx); err != nil {
		return nil, fmt.Errorf("authenticating to AWS: %w", err)
	}

	limit := creds.MaxResources
	if limit <= 0 {
		limit = defaultMaxResources
	}

	var findings []finding.Finding
	for _, check := range []struct {
		name string
		run  func(context.Context, *clients, int) ([]finding.Finding, error)
	}{
		{"s3", checkS3},
		{"iam", checkIAM},
		{"cloudtrail", checkCloudTrail},
	} {
		fs, err := check.run(ctx, cl, limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[aws] WARNING %s check failed: %v", check.name, err)
			continue
		}
		log.Printf("[aws] %s check produced %d findings", check.name, len(fs))
		findings = append(findings, fs...)
	}

	return findings, nil
}

func checkS3(ctx context.Context, cl *clients, limit int) ([]finding.Finding, error) {
	if err := cl.wait(ctx); err != nil {
		return nil, err
	}
	out, err := cl.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}

	var findings []finding.Finding
	for i, b := range out.Buckets {
		if i >= limit {
			log.Printf("[aws] inspected first %d of %d buckets", limit, len(out.Buckets))
			break
		}
		name := aws.ToString(b.Name)

		if err := cl.wait(ctx); err != nil {
			return nil, err
		}
		acl, err := cl.s3.GetBucketAcl(ctx, &s3.GetBucketAclInput{Bucket: aws.String(name)})
		if err != nil {
			log.Printf("[aws] cannot read ACL of bucket %s: %v", name, err)
			continue
		}
		if publicGrant(acl.Grants) {
			findings = append(findings, finding.Finding{
				Title:           fmt.Sprintf("Public S3 Bucket: '%s'", name),
				Severity:        finding.Critical,
				Cloud:           finding.AWS,
				Description:     fmt.Sprintf("S3 bucket '%s' has public access via ACL grants.", name),
				RemediationHint: fmt.Sprintf("Remove public ACL grants: aws s3api put-bucket-acl --bucket %s --acl private", name),
			})
		}

		if err := cl.wait(ctx); err != nil {
			return nil, err
		}
		status, err := cl.s3.GetBucketPolicyStatus(ctx, &s3.GetBucketPolicyStatusInput{Bucket: aws.String(name)})
		if err != nil {
			// Buckets without a policy return an error here.
			continue
		}
		if status.PolicyStatus != nil && aws.ToBool(status.PolicyStatus.IsPublic) {
			findings = append(findings, finding.Finding{
				Title:           fmt.Sprintf("Public S3 Bucket Policy: '%s'", name),
				Severity:        finding.Critical,
				Cloud:           finding.AWS,
				Description:     fmt.Sprintf("S3 bucket '%s' has a public bucket policy.", name),
				RemediationHint: "Review and restrict bucket policy to remove public access.",
			})
		}
	}
	return findings, nil
}

func publicGrant(grants []s3types.Grant) bool {
	for _, g := range grants {
		if g.Grantee == nil {
			continue
		}
		uri := aws.ToString(g.Grantee.URI)
		if uri == allUsersURI || uri == authenticatedUsersURI ||
			strings.HasSuffix(uri, "/AllUsers") || strings.HasSuffix(uri, "/AuthenticatedUsers") {
			return true
		}
	}
	return false
}

func checkIAM(ctx context.Context, cl *clients, limit int) ([]finding.Finding, error) {
	var findings []finding.Finding
	seen := 0

	p := iam.NewListRolesPaginator(cl.iam, &iam.ListRolesInput{})
	for p.HasMorePages() && seen < limit {
		if err := cl.wait(ctx); err != nil {
			return nil, err
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing roles: %w", err)
		}

		for _, role := range page.Roles {
			if seen >= limit {
				break
			}
			seen++
			name := aws.ToString(role.RoleName)

			if err := cl.wait(ctx); err != nil {
				return nil, err
			}
			attached, err := cl.iam.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{RoleName: aws.String(name)})
			if err != nil {
				log.Printf("[aws] cannot list policies of role %s: %v", name, err)
				continue
			}
			for _, pol := range attached.AttachedPolicies {
				policy := aws.ToString(pol.PolicyName)
				if strings.Contains(policy, "AdministratorAccess") || strings.Contains(policy, "FullAccess") {
					findings = append(findings, finding.Finding{
						Title:           fmt.Sprintf("Over-Permissive IAM Role: '%s'", name),
						Severity:        finding.Critical,
						Cloud:           finding.AWS,
						Description:     fmt.Sprintf("IAM role '%s' has administrator or full access policy %s attached.", name, policy),
						RemediationHint: "Apply principle of least privilege. Remove overly broad policies and grant only required permissions.",
					})
					break
				}
			}
		}
	}
	return findings, nil
}

func checkCloudTrail(ctx context.Context, cl *clients, limit int) ([]finding.Finding, error) {
	if err := cl.wait(ctx); err != nil {
		return nil, err
	}
	out, err := cl.trail.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{})
	if err != nil {
		return nil, fmt.Errorf("describing trails: %w", err)
	}

	if len(out.TrailList) == 0 {
		return []finding.Finding{{
			Title:           "CloudTrail Not Enabled",
			Severity:        finding.Warning,
			Cloud:           finding.AWS,
			Description:     "No CloudTrail trails found. Logging is not enabled for this account.",
			RemediationHint: "Enable CloudTrail to log all API calls: aws cloudtrail create-trail --name main-trail --s3-bucket-name <bucket>",
		}}, nil
	}

	var findings []finding.Finding
	for i, trail := range out.TrailList {
		if i >= limit {
			break
		}
		name := aws.ToString(trail.Name)
		id := name
		if arn := aws.ToString(trail.TrailARN); arn != "" {
			id = arn
		}

		if err := cl.wait(ctx); err != nil {
			return nil, err
		}
		status, err := cl.trail.GetTrailStatus(ctx, &cloudtrail.GetTrailStatusInput{Name: aws.String(id)})
		if err != nil {
			log.Printf("[aws] cannot read status of trail %s: %v", name, err)
			continue
		}
		if !aws.ToBool(status.IsLogging) {
			findings = append(findings, finding.Finding{
				Title:           fmt.Sprintf("CloudTrail Not Logging: '%s'", name),
				Severity:        finding.Warning,
				Cloud:           finding.AWS,
				Description:     fmt.Sprintf("CloudTrail '%s' exists but is not actively logging.", name),
				RemediationHint: fmt.Sprintf("Start logging: aws cloudtrail start-logging --name %s", name),
			})
		}
	}
	return findings, nil
}
