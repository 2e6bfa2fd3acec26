// Package mcpserver implements the MCP server for AI-assisted analysis of
// scan results.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PiotrMackowski/CloudStrike/internal/attack"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/PiotrMackowski/CloudStrike/internal/history"
	"github.com/PiotrMackowski/CloudStrike/internal/remediation"
	"github.com/PiotrMackowski/CloudStrike/internal/scan"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	// maxQueryLimit caps the number of records returned per query.
	maxQueryLimit = 500

	// defaultQueryLimit is the default number of records returned.
	defaultQueryLimit = 50

	// maxInputLength caps generic string input length for MCP parameters.
	maxInputLength = 256
)

// validSeverities lists allowed severity filter values.
var validSeverities = map[string]finding.Severity{
	"CRITICAL": finding.Critical,
	"HIGH":     finding.High,
	"MEDIUM":   finding.Medium,
	"WARNING":  finding.Warning,
	"INFO":     finding.Info,
}

// validClouds lists allowed cloud filter values.
var validClouds = map[string]finding.Cloud{
	"AWS":     finding.AWS,
	"AZURE":   finding.Azure,
	"GCP":     finding.GCP,
	"SYSTEM":  finding.System,
	"UNKNOWN": finding.Unknown,
}

// ScanData holds the loaded scan for MCP tool queries.
type ScanData struct {
	Result *scan.Result
	// Ledger is optional; get_history reports an error without it.
	Ledger *history.Ledger
}

// NewMCPServer creates a new MCP server with all scan tools registered.
func NewMCPServer(data *ScanData) *server.MCPServer {
	s := server.NewMCPServer(
		"CloudStrike",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	registerTools(s, data)
	registerResources(s, data)

	return s
}

func registerTools(s *server.MCPServer, data *ScanData) {
	s.AddTool(
		mcp.NewTool("list_findings",
			mcp.WithDescription("List misconfiguration findings from the scan. Optionally filter by severity or cloud."),
			mcp.WithString("severity",
				mcp.Description("Filter by severity: CRITICAL, WARNING, INFO"),
			),
			mcp.WithString("cloud",
				mcp.Description("Filter by cloud: AWS, Azure, GCP, System"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Max number of findings to return (default 50, max 500)"),
			),
		),
		listFindingsHandler(data),
	)

	s.AddTool(
		mcp.NewTool("get_finding",
			mcp.WithDescription("Get a single finding by its index as returned by list_findings."),
			mcp.WithNumber("index",
				mcp.Required(),
				mcp.Description("Zero-based finding index"),
			),
		),
		getFindingHandler(data),
	)

	s.AddTool(
		mcp.NewTool("list_attack_paths",
			mcp.WithDescription("List the attack paths synthesized from the findings, with steps and impact."),
			mcp.WithString("severity",
				mcp.Description("Filter by attack severity: CRITICAL, HIGH, MEDIUM, WARNING"),
			),
		),
		listAttackPathsHandler(data),
	)

	s.AddTool(
		mcp.NewTool("get_risk",
			mcp.WithDescription("Get the risk assessment: security score, risk level, top risks and summary."),
		),
		getRiskHandler(data),
	)

	s.AddTool(
		mcp.NewTool("get_remediation",
			mcp.WithDescription("Get CLI and Terraform remediation scripts. Optionally filter by cloud or resource name."),
			mcp.WithString("cloud",
				mcp.Description("Filter by cloud: AWS, Azure, GCP"),
			),
			mcp.WithString("resource",
				mcp.Description("Case-insensitive substring of the resource name"),
			),
		),
		getRemediationHandler(data),
	)

	s.AddTool(
		mcp.NewTool("get_history",
			mcp.WithDescription("Get scan history statistics and the most recent entries."),
			mcp.WithNumber("limit",
				mcp.Description("Number of most recent entries to return (default 50)"),
			),
		),
		getHistoryHandler(data),
	)
}

func registerResources(s *server.MCPServer, data *ScanData) {
	s.AddResource(
		mcp.NewResource(
			"cloudstrike://summary",
			"Scan Summary",
			mcp.WithResourceDescription("Risk assessment and finding counts"),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			summaryJSON, _ := json.MarshalIndent(map[string]interface{}{
				"risk":    data.Result.Risk,
				"summary": data.Result.Summary(),
			}, "", "  ")
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      "cloudstrike://summary",
					MIMEType: "application/json",
					Text:     string(summaryJSON),
				},
			}, nil
		},
	)

	s.AddResource(
		mcp.NewResource(
			"cloudstrike://scan/meta",
			"Scan Metadata",
			mcp.WithResourceDescription("Information about the loaded scan"),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			metaJSON, _ := json.MarshalIndent(scanMeta(data.Result), "", "  ")
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      "cloudstrike://scan/meta",
					MIMEType: "application/json",
					Text:     string(metaJSON),
				},
			}, nil
		},
	)
}

func scanMeta(res *scan.Result) map[string]interface{} {
	return map[string]interface{}{
		"id":           res.ID,
		"started_at":   res.StartedAt,
		"completed_at": res.CompletedAt,
		"providers":    res.Providers,
		"findings":     len(res.Findings),
		"attacks":      len(res.Attacks),
		"remediation":  len(res.Remediation),
		"enriched":     res.Enrichment != nil,
	}
}

// --- Tool Handlers ---

func parseSeverity(raw string) (finding.Severity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	sev, ok := validSeverities[strings.ToUpper(raw)]
	if !ok {
		return "", fmt.Errorf("invalid severity %q; allowed values: CRITICAL, HIGH, MEDIUM, WARNING, INFO", raw)
	}
	return sev, nil
}

func parseCloud(raw string) (finding.Cloud, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	c, ok := validClouds[strings.ToUpper(raw)]
	if !ok {
		return "", fmt.Errorf("invalid cloud %q; allowed values: AWS, Azure, GCP, System, Unknown", raw)
	}
	return c, nil
}

func limitArg(req mcp.CallToolRequest) int {
	limit := int(req.GetFloat("limit", float64(defaultQueryLimit)))
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	return limit
}

func jsonResult(v interface{}) *mcp.CallToolResult {
	result, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(result))
}

func listFindingsHandler(data *ScanData) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		severity, err := parseSeverity(req.GetString("severity", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		cloud, err := parseCloud(req.GetString("cloud", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		limit := limitArg(req)

		type indexedFinding struct {
			Index int `json:"index"`
			finding.Finding
		}

		matched := 0
		listed := []indexedFinding{}
		for i, f := range data.Result.Findings {
			if severity != "" && f.Severity != severity {
				continue
			}
			if cloud != "" && f.Cloud != cloud {
				continue
			}
			matched++
			if len(listed) < limit {
				listed = append(listed, indexedFinding{Index: i, Finding: f})
			}
		}

		return jsonResult(map[string]interface{}{
			"count":    len(listed),
			"total":    matched,
			"findings": listed,
		}), nil
	}
}

func getFindingHandler(data *ScanData) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireFloat("index")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		idx := int(raw)
		if float64(idx) != raw || idx < 0 || idx >= len(data.Result.Findings) {
			return mcp.NewToolResultError(
				fmt.Sprintf("finding index %v out of range (0-%d)", raw, len(data.Result.Findings)-1),
			), nil
		}
		return jsonResult(data.Result.Findings[idx]), nil
	}
}

func listAttackPathsHandler(data *ScanData) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		severity, err := parseSeverity(req.GetString("severity", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		paths := []attack.Path{}
		for _, p := range data.Result.Attacks {
			if severity != "" && p.Severity != severity {
				continue
			}
			paths = append(paths, p)
		}

		out := map[string]interface{}{
			"count":        len(paths),
			"attack_paths": paths,
		}
		if e := data.Result.Enrichment; e != nil && len(e.Scenarios) > 0 {
			out["ai_scenarios"] = e.Scenarios
		}
		return jsonResult(out), nil
	}
}

func getRiskHandler(data *ScanData) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out := map[string]interface{}{
			"risk":    data.Result.Risk,
			"summary": data.Result.Summary(),
		}
		if e := data.Result.Enrichment; e != nil && e.ExecutiveSummary != "" {
			out["executive_summary"] = e.ExecutiveSummary
		}
		return jsonResult(out), nil
	}
}

func getRemediationHandler(data *ScanData) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cloud, err := parseCloud(req.GetString("cloud", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		resource := strings.TrimSpace(req.GetString("resource", ""))
		if len(resource) > maxInputLength {
			return mcp.NewToolResultError("resource exceeds maximum length"), nil
		}

		scripts := []remediation.Script{}
		for _, s := range data.Result.Remediation {
			if cloud != "" && s.Cloud != cloud {
				continue
			}
			if resource != "" && !strings.Contains(strings.ToLower(s.Resource), strings.ToLower(resource)) {
				continue
			}
			scripts = append(scripts, s)
		}

		return jsonResult(map[string]interface{}{
			"count":       len(scripts),
			"remediation": scripts,
		}), nil
	}
}

func getHistoryHandler(data *ScanData) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if data.Ledger == nil {
			return mcp.NewToolResultError("no scan history available"), nil
		}

		all := data.Ledger.Entries(ctx)
		entries := all
		if limit := limitArg(req); len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}

		return jsonResult(map[string]interface{}{
			"stats":   history.ComputeStats(all),
			"entries": entries,
		}), nil
	}
}
