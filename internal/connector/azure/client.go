package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"golang.org/x/time/rate"
)

const defaultRateLimit = 10.0 // requests per second

// storageAccount is the part of an ARM storage account the checks inspect.
// A nil property was not reported by the API.
type storageAccount struct {
	Name                  string
	AllowBlobPublicAccess *bool
	HTTPSTrafficOnly      *bool
}

// api abstracts the ARM calls made by the collector.
type api interface {
	Subscriptions(ctx context.Context) ([]string, error)
	StorageAccounts(ctx context.Context, subscriptionID string) ([]storageAccount, error)
}

// armAPI implements api with the Azure SDK, pacing every page request.
type armAPI struct {
	cred    azcore.TokenCredential
	limiter *rate.Limiter
}

// newAPI creates a client-secret credential for the service principal.
func newAPI(creds collector.Credentials) (api, error) {
	if creds.TenantID == "" || creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("tenant ID, client ID and client secret are required")
	}
	cred, err := azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure credential: %w", err)
	}

	rps := creds.RateLimit
	if rps <= 0 {
		rps = defaultRateLimit
	}
	return &armAPI{cred: cred, limiter: rate.NewLimiter(rate.Limit(rps), 1)}, nil
}

func (a *armAPI) Subscriptions(ctx context.Context) ([]string, error) {
	client, err := armsubscriptions.NewClient(a.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating subscriptions client: %w", err)
	}

	var ids []string
	pager := client.NewListPager(nil)
	for pager.More() {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing subscriptions: %w", err)
		}
		for _, sub := range page.Value {
			if sub != nil && sub.SubscriptionID != nil {
				ids = append(ids, *sub.SubscriptionID)
			}
		}
	}
	return ids, nil
}

func (a *armAPI) StorageAccounts(ctx context.Context, subscriptionID string) ([]storageAccount, error) {
	client, err := armstorage.NewAccountsClient(subscriptionID, a.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	var accounts []storageAccount
	pager := client.NewListPager(nil)
	for pager.More() {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing storage accounts: %w", err)
		}
		for _, acct := range page.Value {
			if acct == nil || acct.Name == nil {
				continue
			}
			sa := storageAccount{Name: *acct.Name}
			if p := acct.Properties; p != nil {
				sa.AllowBlobPublicAccess = p.AllowBlobPublicAccess
				sa.HTTPSTrafficOnly = p.EnableHTTPSTrafficOnly
			}
			accounts = append(accounts, sa)
		}
	}
	return accounts, nil
}
