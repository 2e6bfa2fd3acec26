package azure

import (
	"context"
	"errors"
	"testing"

	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
)

type fakeAPI struct {
	subs     []string
	subsErr  error
	accounts map[string][]storageAccount
	failSub  string
}

func (f *fakeAPI) Subscriptions(context.Context) ([]string, error) {
	return f.subs, f.subsErr
}

func (f *fakeAPI) StorageAccounts(_ context.Context, sub string) ([]storageAccount, error) {
	if sub == f.failSub {
		return nil, errors.New("forbidden")
	}
	return f.accounts[sub], nil
}

func boolPtr(b bool) *bool { return &b }

func newTestCollector(a api) *Collector {
	return &Collector{newAPI: func(collector.Credentials) (api, error) { return a, nil }}
}

func TestCollect(t *testing.T) {
	a := &fakeAPI{
		subs: []string{"sub-1", "sub-2", "sub-3"},
		accounts: map[string][]storageAccount{
			"sub-1": {
				{Name: "openblobs", AllowBlobPublicAccess: boolPtr(true), HTTPSTrafficOnly: boolPtr(true)},
				{Name: "plainhttp", AllowBlobPublicAccess: boolPtr(false), HTTPSTrafficOnly: boolPtr(false)},
				{Name: "unknown"},
			},
			"sub-3": {
				{Name: "both", AllowBlobPublicAccess: boolPtr(true), HTTPSTrafficOnly: boolPtr(false)},
			},
		},
		failSub: "sub-2",
	}

	findings, err := newTestCollector(a).Collect(context.Background(), collector.Credentials{})
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	want := []struct {
		title    string
		severity finding.Severity
	}{
		{"Public Storage Account: 'openblobs'", finding.Critical},
		{"HTTPS Not Enforced on Storage Account: 'plainhttp'", finding.Warning},
		{"Public Storage Account: 'both'", finding.Critical},
		{"HTTPS Not Enforced on Storage Account: 'both'", finding.Warning},
	}
	if len(findings) != len(want) {
		t.Fatalf("Collect() returned %d findings, want %d: %+v", len(findings), len(want), findings)
	}
	for i, w := range want {
		if findings[i].Title != w.title || findings[i].Severity != w.severity || findings[i].Cloud != finding.Azure {
			t.Errorf("findings[%d] = %+v, want %q/%s", i, findings[i], w.title, w.severity)
		}
	}
}

func TestCollectNoSubscriptions(t *testing.T) {
	findings, err := newTestCollector(&fakeAPI{}).Collect(context.Background(), collector.Credentials{})
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(findings) != 1 || findings[0].Severity != finding.Info {
		t.Errorf("Collect() = %+v, want one Info finding", findings)
	}
}

func TestCollectAuthFailure(t *testing.T) {
	a := &fakeAPI{subsErr: errors.New("AADSTS7000215: invalid client secret")}
	if _, err := newTestCollector(a).Collect(context.Background(), collector.Credentials{}); err == nil {
		t.Fatal("Collect() should fail when subscriptions cannot be listed")
	}
}

func TestCollectSubscriptionLimit(t *testing.T) {
	a := &fakeAPI{
		subs: []string{"a", "b"},
		accounts: map[string][]storageAccount{
			"a": {{Name: "x", AllowBlobPublicAccess: boolPtr(true)}},
			"b": {{Name: "y", AllowBlobPublicAccess: boolPtr(true)}},
		},
	}
	findings, err := newTestCollector(a).Collect(context.Background(), collector.Credentials{MaxResources: 1})
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(findings) != 1 {
		t.Errorf("Collect() returned %d findings, want 1", len(findings))
	}
}

func TestNewAPIRequiresCredentials(t *testing.T) {
	if _, err := newAPI(collector.Credentials{TenantID: "t", ClientID: "c"}); err == nil {
		t.Error("newAPI() should fail without a client secret")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("AZURE_TENANT_ID", "tenant-env")
	t.Setenv("AZURE_CLIENT_ID", "")
	t.Setenv("AZURE_CLIENT_SECRET", "")

	got := ConfigFromEnv(nil, collector.Credentials{ClientID: "client-file", ClientSecret: "secret-file"})
	want := collector.Credentials{TenantID: "tenant-env", ClientID: "client-file", ClientSecret: "secret-file"}
	if got != want {
		t.Errorf("ConfigFromEnv() = %+v, want %+v", got, want)
	}
}
