// CloudStrike - multi-cloud security posture assessment
//
// Main CLI entrypoint. Provides commands for scanning, collecting,
// evaluating, reviewing history and exposing results via MCP.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/PiotrMackowski/CloudStrike/internal/attack"
	"github.com/PiotrMackowski/CloudStrike/internal/collector"
	"github.com/PiotrMackowski/CloudStrike/internal/config"
	"github.com/PiotrMackowski/CloudStrike/internal/connector"
	"github.com/PiotrMackowski/CloudStrike/internal/enrich"
	"github.com/PiotrMackowski/CloudStrike/internal/finding"
	"github.com/PiotrMackowski/CloudStrike/internal/history"
	"github.com/PiotrMackowski/CloudStrike/internal/mcpserver"
	"github.com/PiotrMackowski/CloudStrike/internal/remediation"
	csvreport "github.com/PiotrMackowski/CloudStrike/internal/report/csv"
	htmlreport "github.com/PiotrMackowski/CloudStrike/internal/report/html"
	jsonreport "github.com/PiotrMackowski/CloudStrike/internal/report/json"
	scriptreport "github.com/PiotrMackowski/CloudStrike/internal/report/script"
	"github.com/PiotrMackowski/CloudStrike/internal/report/terminal"
	"github.com/PiotrMackowski/CloudStrike/internal/scan"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cloudstrike",
		Short: "CloudStrike - multi-cloud attack path and risk assessment",
		Long: `CloudStrike scans AWS, Azure and GCP for security misconfigurations,
synthesizes the attack paths they enable, scores overall risk and generates
CLI and Terraform remediation scripts.

Credentials are read from the config file (~/.cloudstrike/config.yaml),
then overridden by environment variables and flags.

` + envHelp(),
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			if !verbose {
				log.SetOutput(io.Discard)
			} else {
				log.SetOutput(cmd.ErrOrStderr())
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.cloudstrike/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log progress and diagnostics to stderr")

	rootCmd.AddCommand(
		newScanCmd(),
		newCollectCmd(),
		newEvaluateCmd(),
		newHistoryCmd(),
		newMCPCmd(),
		newChecksCmd(),
	)

	return rootCmd
}

// --- Helper Functions ---

func envHelp() string {
	var parts []string
	for _, cloud := range connector.List() {
		if h := connector.EnvHelp(cloud); h != "" {
			parts = append(parts, h)
		}
	}
	return strings.Join(parts, "\n")
}

// addProviderFlags registers the per-provider override flags read by the
// connectors' config builders.
func addProviderFlags(cmd *cobra.Command) {
	cmd.Flags().String("aws-region", "", "AWS region (or set AWS_REGION)")
	cmd.Flags().String("azure-tenant", "", "Azure tenant ID (or set AZURE_TENANT_ID)")
	cmd.Flags().String("gcp-project", "", "GCP project ID (or set GCP_PROJECT_ID)")
	cmd.Flags().Duration("timeout", 0, "Per-provider discovery timeout (default from config, 5m)")
	cmd.Flags().Bool("strict", false, "Fail on malformed findings instead of applying defaults")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// bundleFor merges config file credentials with environment and flags.
func bundleFor(cmd *cobra.Command, cfg *config.Config) collector.Bundle {
	return connector.Bundle(cmd, cfg.Bundle())
}

func newOrchestrator(cmd *cobra.Command, cfg *config.Config) *scan.Orchestrator {
	o := scan.New(connector.Collectors())
	if cfg.Scan.Timeout > 0 {
		o.Timeout = cfg.Scan.Timeout
	}
	if t, _ := cmd.Flags().GetDuration("timeout"); t > 0 {
		o.Timeout = t
	}
	o.Strict = cfg.Scan.Strict
	if strict, _ := cmd.Flags().GetBool("strict"); strict {
		o.Strict = true
	}
	return o
}

// newEnricher returns nil when enrichment is disabled. The returned close
// function is always safe to call.
func newEnricher(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (enrich.Enricher, func(), error) {
	enabled := cfg.AI.Enabled
	if ai, _ := cmd.Flags().GetBool("ai"); ai {
		enabled = true
	}
	if !enabled {
		return nil, func() {}, nil
	}

	key := cfg.AI.APIKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	model := cfg.AI.Model
	if model == "" {
		model = enrich.DefaultGeminiModel
	}

	g, err := enrich.NewGemini(ctx, key, model)
	if err != nil {
		return nil, func() {}, fmt.Errorf("configuring AI enrichment: %w", err)
	}
	return enrich.New(g, "gemini", g.Model()), func() { g.Close() }, nil
}

func openLedger(cfg *config.Config) (*history.Ledger, error) {
	store, err := history.Open(cfg.History.Backend, cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("opening scan history: %w", err)
	}
	return history.NewLedger(store), nil
}

// writeReport renders res in the given format. An empty output or "-"
// writes to w, except for the script format which always writes a directory.
func writeReport(w io.Writer, res *scan.Result, output, format string, verbose bool) error {
	if format == "script" {
		if output == "" || output == "-" {
			output = "remediation"
		}
		reporter := &scriptreport.Reporter{}
		paths, err := reporter.Write(output, res.Remediation)
		if err != nil {
			return err
		}
		log.Printf("Wrote %d remediation files to %s", len(paths), output)
		return nil
	}

	if output != "" && output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "terminal", "":
		reporter := &terminal.Reporter{Verbose: verbose}
		return reporter.Generate(w, res)
	case "html":
		reporter := &htmlreport.Reporter{}
		return reporter.Generate(w, res)
	case "json":
		reporter := &jsonreport.Reporter{}
		return reporter.Generate(w, res)
	case "csv":
		reporter := &csvreport.Reporter{}
		return reporter.Generate(w, res)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "terminal", "Report format: terminal, json, csv, html or script")
	cmd.Flags().StringP("output", "o", "", "Output file (directory for script); default stdout")
}

func reportFlags(cmd *cobra.Command) (output, format string, verbose bool) {
	output, _ = cmd.Flags().GetString("output")
	format, _ = cmd.Flags().GetString("format")
	verbose, _ = cmd.Flags().GetBool("verbose")
	return output, format, verbose
}

// --- Commands ---

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a full assessment (discover + analyze + report)",
		Long: `Scans every configured cloud provider concurrently, synthesizes attack
paths, scores risk, generates remediation and records the scan in history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			o := newOrchestrator(cmd, cfg)

			enricher, closeEnricher, err := newEnricher(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer closeEnricher()
			o.Enricher = enricher
			if cfg.AI.Timeout > 0 {
				o.EnrichTimeout = cfg.AI.Timeout
			}

			res, err := o.Run(ctx, bundleFor(cmd, cfg))
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory {
				if ledger, err := openLedger(cfg); err != nil {
					log.Printf("[history] %v", err)
				} else {
					ledger.Record(ctx, res)
					ledger.Close()
				}
			}

			output, format, verbose := reportFlags(cmd)
			if err := writeReport(cmd.OutOrStdout(), res, output, format, verbose); err != nil {
				return err
			}
			if output != "" && output != "-" {
				log.Printf("Report written to %s", output)
			}
			return nil
		},
	}

	addProviderFlags(cmd)
	addReportFlags(cmd)
	cmd.Flags().Bool("ai", false, "Add AI-generated scenarios and an executive summary (needs GEMINI_API_KEY)")
	cmd.Flags().Bool("no-history", false, "Do not record this scan in history")

	return cmd
}

func newCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Discover findings from cloud providers (no analysis)",
		Long:  `Scans every configured cloud provider and saves the findings as a snapshot for offline evaluation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")

			snapshot, err := newOrchestrator(cmd, cfg).Collect(ctx, bundleFor(cmd, cfg))
			if err != nil {
				return fmt.Errorf("collection failed: %w", err)
			}

			if err := snapshot.Save(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot saved to %s (%d findings)\n", output, len(snapshot.Findings))
			return nil
		},
	}

	addProviderFlags(cmd)
	cmd.Flags().StringP("output", "o", "snapshot.json", "Output snapshot file path")

	return cmd
}

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Analyze a saved snapshot",
		Long:  `Loads a previously saved findings snapshot and runs attack path, risk and remediation analysis on it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshotPath, _ := cmd.Flags().GetString("snapshot")

			snapshot, err := collector.LoadSnapshot(snapshotPath)
			if err != nil {
				return err
			}
			log.Printf("Loaded snapshot from %s (%d findings)", snapshotPath, len(snapshot.Findings))

			res := scan.Analyze(snapshot.Findings)
			log.Printf("Evaluation complete: %d attack paths, score %d (%s)",
				len(res.Attacks), res.Risk.SecurityScore, res.Risk.RiskLevel)

			output, format, verbose := reportFlags(cmd)
			return writeReport(cmd.OutOrStdout(), res, output, format, verbose)
		},
	}

	cmd.Flags().String("snapshot", "snapshot.json", "Path to snapshot file")
	addReportFlags(cmd)

	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show scan history statistics and recent scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ledger, err := openLedger(cfg)
			if err != nil {
				return err
			}
			defer ledger.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			return printHistory(cmd.OutOrStdout(), ledger.Entries(cmd.Context()), limit)
		},
	}

	cmd.Flags().Int("limit", 10, "Number of most recent scans to list (0 = all)")

	return cmd
}

func printHistory(w io.Writer, entries []history.Entry, limit int) error {
	stats := history.ComputeStats(entries)
	fmt.Fprintf(w, "Total scans:   %d\n", stats.TotalScans)
	fmt.Fprintf(w, "Last scan:     %s\n", stats.LastScan)
	fmt.Fprintf(w, "Average score: %d\n", stats.AvgScore)
	if len(entries) == 0 {
		return nil
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tSCORE\tRISK\tFINDINGS\tATTACKS")
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		ts := e.Timestamp
		if t, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
			ts = t.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\n", ts, e.SecurityScore, e.RiskLevel, e.FindingsCount, e.AttacksCount)
	}
	return tw.Flush()
}

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI-assisted analysis",
		Long: `Starts a Model Context Protocol (MCP) server over stdio.
Loads a findings snapshot, analyzes it, and exposes findings, attack paths,
risk, remediation and scan history as MCP tools and resources.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshotPath, _ := cmd.Flags().GetString("snapshot")

			data, err := loadScanData(cmd, snapshotPath)
			if err != nil {
				return err
			}
			if data.Ledger != nil {
				defer data.Ledger.Close()
			}

			mcpSrv := mcpserver.NewMCPServer(data)

			log.Println("Starting MCP server on stdio...")
			if err := server.ServeStdio(mcpSrv); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("snapshot", "snapshot.json", "Path to snapshot file")

	return cmd
}

// loadScanData analyzes a snapshot and attaches the history ledger when it
// can be opened.
func loadScanData(cmd *cobra.Command, snapshotPath string) (*mcpserver.ScanData, error) {
	snapshot, err := collector.LoadSnapshot(snapshotPath)
	if err != nil {
		return nil, err
	}
	res := scan.Analyze(snapshot.Findings)
	log.Printf("Loaded %d findings (score %d, %s)", len(res.Findings), res.Risk.SecurityScore, res.Risk.RiskLevel)

	data := &mcpserver.ScanData{Result: res}
	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Printf("[history] %v", err)
		return data, nil
	}
	if ledger, err := openLedger(cfg); err != nil {
		log.Printf("[history] %v", err)
	} else {
		data.Ledger = ledger
	}
	return data, nil
}

func newChecksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checks",
		Short: "List discovery checks and analysis rules",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List provider checks, attack path templates and remediation templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printChecks(cmd.OutOrStdout(), connector.Collectors(),
				attack.Default().Templates(), remediation.Default().Templates())
		},
	}

	cmd.AddCommand(listCmd)
	return cmd
}

func printChecks(w io.Writer, collectors map[finding.Cloud]collector.Collector, attacks []attack.Template, scripts []remediation.Template) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	total := 0
	fmt.Fprintln(tw, "PROVIDER\tCHECK")
	for _, cloud := range connector.List() {
		c, ok := collectors[cloud]
		if !ok {
			continue
		}
		for _, check := range c.Checks() {
			fmt.Fprintf(tw, "%s\t%s\n", cloud, check)
			total++
		}
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ATTACK PATH\tSEVERITY\tTITLE")
	for _, t := range attacks {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Key, t.Severity, t.Title)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "REMEDIATION\tCLOUD\tTITLE")
	for _, t := range scripts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Key, t.Cloud, t.Title)
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nTotal: %d checks, %d attack paths, %d remediation templates\n", total, len(attacks), len(scripts))
	return nil
}
