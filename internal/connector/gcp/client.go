package gcp

import (
	"context"
	"fmt"
	"os"

	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

const defaultRateLimit = 10.0 // requests per second

// bucket is the part of a GCS bucket the checks inspect.
type bucket struct {
	Name       string
	Versioning bool
}

// api abstracts the Cloud Storage calls made by the collector.
type api interface {
	Buckets(ctx context.Context, projectID string) ([]bucket, error)
	Members(ctx context.Context, bucketName string) ([]string, error)
}

// storageAPI implements api with the Cloud Storage JSON API.
type storageAPI struct {
	svc     *storage.Service
	limiter *rate.Limiter
}

// newAPI loads the service account key file and creates a read-only
// storage client.
func newAPI(ctx context.Context, creds collector.Credentials) (api, error) {
	if creds.ProjectID == "" || creds.ServiceAccountPath == "" {
		return nil, fmt.Errorf("project ID and service account path are required")
	}

	data, err := os.ReadFile(creds.ServiceAccountPath)
	if err != nil {
		return nil, fmt.Errorf("reading service account file: %w", err)
	}
	gcreds, err := google.CredentialsFromJSON(ctx, data, storage.DevstorageReadOnlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing service account file: %w", err)
	}

	svc, err := storage.NewService(ctx, option.WithCredentials(gcreds))
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	rps := creds.RateLimit
	if rps <= 0 {
		rps = defaultRateLimit
	}
	return &storageAPI{svc: svc, limiter: rate.NewLimiter(rate.Limit(rps), 1)}, nil
}

func (s *storageAPI) Buckets(ctx context.Context, projectID string) ([]bucket, error) {
	var buckets []bucket
	err := s.svc.Buckets.List(projectID).Pages(ctx, func(page *storage.Buckets) error {
		for _, b := range page.Items {
			buckets = append(buckets, bucket{
				Name:       b.Name,
				Versioning: b.Versioning != nil && b.Versioning.Enabled,
			})
		}
		return s.limiter.Wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}
	return buckets, nil
}

func (s *storageAPI) Members(ctx context.Context, bucketName string) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	policy, err := s.svc.Buckets.GetIamPolicy(bucketName).OptionsRequestedPolicyVersion(3).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading IAM policy of %s: %w", bucketName, err)
	}

	var members []string
	for _, b := range policy.Bindings {
		members = append(members, b.Members...)
	}
	return members, nil
}
