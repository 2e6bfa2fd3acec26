package aws

import (
	"context"
	"fmt"
	"log"

	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/time/rate"
)

const defaultRateLimit = 10.0 // requests per second

// s3API is the subset of the S3 client used by the collector.
type s3API interface {
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, opts ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketAcl(ctx context.Context, in *s3.GetBucketAclInput, opts ...func(*s3.Options)) (*s3.GetBucketAclOutput, error)
	GetBucketPolicyStatus(ctx context.Context, in *s3.GetBucketPolicyStatusInput, opts ...func(*s3.Options)) (*s3.GetBucketPolicyStatusOutput, error)
}

// iamAPI is the subset of the IAM client used by the collector.
type iamAPI interface {
	iam.ListRolesAPIClient
	ListAttachedRolePolicies(ctx context.Context, in *iam.ListAttachedRolePoliciesInput, opts ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
}

// trailAPI is the subset of the CloudTrail client used by the collector.
type trailAPI interface {
	DescribeTrails(ctx context.Context, in *cloudtrail.DescribeTrailsInput, opts ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error)
	GetTrailStatus(ctx context.Context, in *cloudtrail.GetTrailStatusInput, opts ...func(*cloudtrail.Options)) (*cloudtrail.GetTrailStatusOutput, error)
}

// stsAPI verifies that the credentials are usable.
type stsAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, opts ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// clients bundles the service clients of one scan with a shared rate limiter.
type clients struct {
	s3      s3API
	iam     iamAPI
	trail   trailAPI
	sts     stsAPI
	limiter *rate.Limiter
}

// newClients builds SDK clients from static credentials.
func newClients(ctx context.Context, creds collector.Credentials) (*clients, error) {
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("access key and secret key are required")
	}
	region := creds.Region
	if region == "" {
		region = defaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &clients{
		s3:      s3.NewFromConfig(cfg),
		iam:     iam.NewFromConfig(cfg),
		trail:   cloudtrail.NewFromConfig(cfg),
		sts:     sts.NewFromConfig(cfg),
		limiter: newLimiter(creds.RateLimit),
	}, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		rps = defaultRateLimit
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// wait blocks until the rate limiter allows another request.
func (c *clients) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// verify checks the credentials with STS GetCallerIdentity.
func (c *clients) verify(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	out, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return err
	}
	log.Printf("[aws] authenticated as account %s", aws.ToString(out.Account))
	return nil
}
