// MCP server standalone entrypoint.
// This is a convenience binary that only starts the MCP server.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"github.com/PiotrMackowski/CloudStrike/internal/history"
	"github.com/PiotrMackowski/CloudStrike/internal/mcpserver"
	"github.com/PiotrMackowski/CloudStrike/internal/scan"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: cloudstrike-mcp <snapshot.json> [scan_history.json]")
		os.Exit(1)
	}

	snapshot, err := collector.LoadSnapshot(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to load snapshot: %v", err)
	}

	res := scan.Analyze(snapshot.Findings)
	log.Printf("Loaded %d findings (score %d, %s), %d attack paths",
		len(res.Findings), res.Risk.SecurityScore, res.Risk.RiskLevel, len(res.Attacks))

	data := &mcpserver.ScanData{Result: res}
	if len(os.Args) > 2 {
		data.Ledger = history.NewLedger(history.NewJSONStore(os.Args[2]))
	}

	mcpSrv := mcpserver.NewMCPServer(data)

	log.Println("Starting CloudStrike MCP server on stdio...")
	if err := server.ServeStdio(mcpSrv); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
