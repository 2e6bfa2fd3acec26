// Package main - provider registrations.
//
// Blank-import each connector package to trigger its init() function,
// which registers the provider with the connector registry.
package main

import (
	// Register all supported cloud connectors.
	_ "github.com/PiotrMackowski/CloudStrike/internal/connector/aws"
	_ "github.com/PiotrMackowski/CloudStrike/internal/connector/azure"
	_ "github.com/PiotrMackowski/CloudStrike/internal/connector/gcp"
)
