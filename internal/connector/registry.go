// Package connector provides a registry for cloud provider connectors.
//
// Each provider (AWS, Azure, GCP) registers a factory function that creates
// a collector.Collector. The CLI and the scan orchestrator use this registry
// to look up the collectors compiled into the binary.
//
// To add a new provider:
//  1. Create internal/connector/<provider>/ with a Collector implementation.
//  2. Call connector.Register(cloud, factory, configBuilder, envHelp) in an init() function.
//  3. Import the package (blank import) in cmd/cloudstrike/providers.go.
package connector

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/spf13/cobra"
)

// Factory creates a new Collector for a specific provider.
type Factory func() collector.Collector

// ConfigBuilder overlays provider-specific environment variables and CLI
// flags onto credentials loaded from the config file. cmd may be nil.
type ConfigBuilder func(cmd *cobra.Command, base collector.Credentials) collector.Credentials

// providerEntry holds the factory and config builder for a registered provider.
type providerEntry struct {
	factory       Factory
	configBuilder ConfigBuilder
	envHelp       string // help text describing supported environment variables
}

var (
	mu        sync.RWMutex
	providers = make(map[finding.Cloud]providerEntry)
)

// Register adds a provider connector to the global registry.
//
// Panics if the provider is already registered.
func Register(cloud finding.Cloud, factory Factory, configBuilder ConfigBuilder, envHelp string) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := providers[cloud]; exists {
		panic(fmt.Sprintf("connector: provider %q already registered", cloud))
	}

	providers[cloud] = providerEntry{
		factory:       factory,
		configBuilder: configBuilder,
		envHelp:       envHelp,
	}
}

// Get returns the factory and config builder for a registered provider.
func Get(cloud finding.Cloud) (Factory, ConfigBuilder, error) {
	mu.RLock()
	defer mu.RUnlock()

	entry, ok := providers[cloud]
	if !ok {
		return nil, nil, fmt.Errorf("unknown provider %q; available: %s", cloud, joinLocked())
	}
	return entry.factory, entry.configBuilder, nil
}

// List returns all registered providers, AWS, Azure and GCP first.
func List() []finding.Cloud {
	mu.RLock()
	defer mu.RUnlock()
	return listLocked()
}

// Collectors instantiates one collector per registered provider.
func Collectors() map[finding.Cloud]collector.Collector {
	mu.RLock()
	defer mu.RUnlock()

	out := make(map[finding.Cloud]collector.Collector, len(providers))
	for cloud, entry := range providers {
		out[cloud] = entry.factory()
	}
	return out
}

// Bundle applies every registered config builder to the credentials loaded
// from the config file and returns the resulting bundle.
func Bundle(cmd *cobra.Command, base collector.Bundle) collector.Bundle {
	mu.RLock()
	defer mu.RUnlock()

	out := make(collector.Bundle, len(providers))
	for cloud, creds := range base {
		out[cloud] = creds
	}
	for cloud, entry := range providers {
		if entry.configBuilder != nil {
			out[cloud] = entry.configBuilder(cmd, out[cloud])
		}
	}
	return out
}

// EnvHelp returns the environment variable help text for a registered provider.
func EnvHelp(cloud finding.Cloud) string {
	mu.RLock()
	defer mu.RUnlock()

	if entry, ok := providers[cloud]; ok {
		return entry.envHelp
	}
	return ""
}

// EnvOrFlag returns the flag value if set, then the environment variable,
// then fallback.
func EnvOrFlag(cmd *cobra.Command, flag, env, fallback string) string {
	if cmd != nil && cmd.Flags().Lookup(flag) != nil {
		if val, _ := cmd.Flags().GetString(flag); val != "" {
			return val
		}
	}
	if val := os.Getenv(env); val != "" {
		return val
	}
	return fallback
}

// listLocked returns providers in merge order. Caller must hold mu.
func listLocked() []finding.Cloud {
	rank := func(c finding.Cloud) int {
		for i, p := range finding.ProviderOrder {
			if p == c {
				return i
			}
		}
		return len(finding.ProviderOrder)
	}

	clouds := make([]finding.Cloud, 0, len(providers))
	for cloud := range providers {
		clouds = append(clouds, cloud)
	}
	sort.Slice(clouds, func(i, j int) bool {
		ri, rj := rank(clouds[i]), rank(clouds[j])
		if ri != rj {
			return ri < rj
		}
		return clouds[i] < clouds[j]
	})
	return clouds
}

func joinLocked() string {
	names := make([]string, 0, len(providers))
	for _, c := range listLocked() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
