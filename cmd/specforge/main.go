// Specforge extracts structured specification documents from indexed
// codebases.
//
// It queries a vector search service for relevant code chunks, runs LLM
// detection over them, normalizes the extracted records, and assembles
// a nested specification document per codebase.
//
// Usage:
//
//	# Extract one codebase to ./billing.json
//	specforge extract billing
//
//	# Extract several codebases, committing results when configured
//	specforge batch billing payments ledger
//
//	# Run the HTTP API
//	specforge serve
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/batch"
	"github.com/fyrsmithlabs/specforge/internal/commit"
	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/errlog"
	"github.com/fyrsmithlabs/specforge/internal/extract"
	"github.com/fyrsmithlabs/specforge/internal/httpapi"
	"github.com/fyrsmithlabs/specforge/internal/llm"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/metadata"
	"github.com/fyrsmithlabs/specforge/internal/orchestrator"
	"github.com/fyrsmithlabs/specforge/internal/retrieval"
	"github.com/fyrsmithlabs/specforge/internal/retry"
	"github.com/fyrsmithlabs/specforge/internal/sanitize"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	outputDir  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "specforge",
	Short:         "Extract specification documents from indexed codebases",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	extractCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "directory for the extracted JSON document")
	batchCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "directory for the extracted JSON documents")
}

var extractCmd = &cobra.Command{
	Use:   "extract <codebase>",
	Short: "Extract a specification document for one codebase",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var batchCmd = &cobra.Command{
	Use:   "batch <codebase> [codebase...]",
	Short: "Extract specification documents for several codebases",
	Long: `Extract specification documents for several codebases in order.

A failure in one codebase never stops the others; every codebase gets a
result slot in the summary. When a GitHub commit target is configured,
each successful document is committed after extraction.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extraction HTTP API",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("specforge\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

// app holds the wired components shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	errs     *errlog.Collector
	pipeline *orchestrator.Pipeline
	driver   *batch.Driver
}

// newApp loads configuration and wires the pipeline end to end.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	errs := errlog.New()
	policy := retry.FromConfig(cfg.Retry)

	search, err := retrieval.NewClient(retrieval.Config{
		BaseURL: cfg.Services.VectorSearchURL,
		Timeout: cfg.Services.SearchTimeout.Duration(),
	}, log, errs)
	if err != nil {
		return nil, fmt.Errorf("create retrieval client: %w", err)
	}

	invoker, err := llm.NewClient(llm.Config{
		BaseURL: cfg.Services.LLMURL,
		Timeout: cfg.Services.DetectTimeout.Duration(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	meta, err := metadata.NewClient(metadata.Config{
		BaseURL: cfg.Services.MetadataURL,
		Timeout: cfg.Services.MetadataTimeout.Duration(),
		Retry:   policy,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create metadata client: %w", err)
	}

	worker := extract.NewWorker(invoker, sanitize.New(sanitize.DefaultRules()...), errs, log, extract.Config{
		MinChunkLength: cfg.Extraction.MinChunkLength,
		Validate:       cfg.Extraction.Validate,
		Retry:          policy,
	})

	pipeline := orchestrator.New(search, worker, meta, errs, log, orchestrator.FromConfig(cfg))

	var sink commit.Sink
	if cfg.GitHub.Enabled {
		ghSink, err := commit.NewGitHubSink(ctx, cfg.GitHub, policy, log)
		if err != nil {
			return nil, fmt.Errorf("create github sink: %w", err)
		}
		sink = ghSink
	}

	return &app{
		cfg:      cfg,
		log:      log,
		errs:     errs,
		pipeline: pipeline,
		driver:   batch.New(pipeline, sink, log),
	}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}

// runContext returns a context carrying a fresh run ID, cancelled on
// SIGINT or SIGTERM.
func runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return logging.WithRunID(ctx, uuid.NewString()), cancel
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	codebase := args[0]
	spec, err := a.pipeline.Run(ctx, codebase)
	if err != nil {
		return fmt.Errorf("extract %s: %w", codebase, err)
	}

	path, err := writeDocument(outputDir, codebase, spec)
	if err != nil {
		return err
	}

	a.log.Info(ctx, "extraction complete",
		zap.String("codebase", codebase),
		zap.String("output", path),
		zap.String("status", spec.Summary.Status),
		zap.Int("errors", a.errs.Len()),
	)
	fmt.Printf("wrote %s\n", path)
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	results := a.driver.Run(ctx, args)

	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
			fmt.Printf("%s: FAILED: %s\n", res.Codebase, res.Error)
			continue
		}
		path, err := writeDocument(outputDir, res.Codebase, res.Specification)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s: wrote %s", res.Codebase, path)
		if res.CommitSHA != "" {
			line += fmt.Sprintf(" (committed %s)", res.CommitSHA)
		}
		if res.CommitError != "" {
			line += fmt.Sprintf(" (commit failed: %s)", res.CommitError)
		}
		fmt.Println(line)
	}

	a.log.Info(ctx, "batch complete",
		zap.Int("codebases", len(results)),
		zap.Int("failed", failed),
		zap.Int("errors", a.errs.Len()),
	)
	if failed > 0 {
		return fmt.Errorf("%d of %d codebases failed", failed, len(results))
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	srv, err := httpapi.NewServer(a.pipeline, a.driver, a.errs, a.log, httpapi.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.log.Info(context.Background(), "server shutdown complete")
	return nil
}

// writeDocument writes the specification document as indented JSON to
// <dir>/<codebase>.json.
func writeDocument(dir, codebase string, doc any) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, codebase+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return path, nil
}
