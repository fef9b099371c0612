// Package orchestrator runs the full extraction pipeline for one
// codebase: vector retrieval, per-chunk detection (sequential or pooled),
// category extraction, deduplication, normalization, and assembly of the
// final specification document.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/errlog"
	"github.com/fyrsmithlabs/specforge/internal/extract"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/metadata"
	"github.com/fyrsmithlabs/specforge/internal/metrics"
	"github.com/fyrsmithlabs/specforge/internal/normalize"
	"github.com/fyrsmithlabs/specforge/internal/retrieval"
	"github.com/fyrsmithlabs/specforge/internal/sanitize"
)

// Prompts holds the three prompts driving one detection pass.
type Prompts struct {
	System      string
	VectorQuery string
	Detection   string
}

// DefaultServerPrompts targets host/port/database triples in code and
// configuration.
func DefaultServerPrompts() Prompts {
	return Prompts{
		System:      "You are an expert at analyzing code for server configurations, host information, and network settings.",
		VectorQuery: "server host port configuration",
		Detection:   "Given the provided code snippet, identify if there are server informations present showing host, port and database information? If none, reply back with 'no'. Else extract the server information. Place in a json with keys 'host', 'port', 'database_name'. Reply with only the JSON. Make sure it's a valid JSON.",
	}
}

// DefaultDatabasePrompts targets schema, query, and connection details.
func DefaultDatabasePrompts() Prompts {
	return Prompts{
		System:      "You are an expert at analyzing code for database configurations, connections, queries, and data models.",
		VectorQuery: "database sql connection query schema table model",
		Detection:   "Given the provided code snippet, identify if there are database-related configurations, connections, or queries present? If none, reply back with 'no'. Else extract the database information. Place in a json with keys for any database-related information found. Reply with only the JSON. Make sure it's a valid JSON.",
	}
}

// Config tunes one pipeline run.
type Config struct {
	VectorResultsCount int
	Suffixes           []string
	Parallel           bool
	MaxWorkers         int
	TaskTimeout        time.Duration
	Server             Prompts
	Database           Prompts
}

// FromConfig builds pipeline configuration from the application config,
// with the default prompt set.
func FromConfig(cfg *config.Config) Config {
	return Config{
		VectorResultsCount: cfg.Extraction.VectorResultsCount,
		Suffixes:           cfg.Extraction.CollectionSuffixes,
		Parallel:           cfg.Extraction.Parallel,
		MaxWorkers:         cfg.Extraction.MaxWorkers,
		TaskTimeout:        cfg.Extraction.TaskTimeout.Duration(),
		Server:             DefaultServerPrompts(),
		Database:           DefaultDatabasePrompts(),
	}
}

func (c *Config) applyDefaults() {
	if c.VectorResultsCount <= 0 {
		c.VectorResultsCount = 10
	}
	if len(c.Suffixes) == 0 {
		c.Suffixes = []string{"-external-files", ""}
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 45 * time.Second
	}
	if c.Server == (Prompts{}) {
		c.Server = DefaultServerPrompts()
	}
	if c.Database == (Prompts{}) {
		c.Database = DefaultDatabasePrompts()
	}
}

// Pipeline wires the retrieval, extraction, and metadata components for
// one codebase at a time. Safe for reuse across runs.
type Pipeline struct {
	search retrieval.Searcher
	worker *extract.Worker
	meta   metadata.Fetcher
	errs   *errlog.Collector
	log    *logging.Logger
	cfg    Config
	now    func() time.Time
}

// New creates a pipeline. meta and errs may be nil.
func New(search retrieval.Searcher, worker *extract.Worker, meta metadata.Fetcher, errs *errlog.Collector, log *logging.Logger, cfg Config) *Pipeline {
	if log == nil {
		log = logging.NewNop()
	}
	cfg.applyDefaults()
	return &Pipeline{
		search: search,
		worker: worker,
		meta:   meta,
		errs:   errs,
		log:    log.Named("orchestrator"),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Run executes the full pipeline for one codebase. Individual stage
// failures degrade the document instead of failing the run; the only
// error is an unusable codebase name.
func (p *Pipeline) Run(ctx context.Context, codebase string) (*Specification, error) {
	if err := sanitize.ValidateProjectName(codebase); err != nil {
		return nil, fmt.Errorf("codebase %q: %w", codebase, err)
	}
	ctx = logging.WithProjectID(ctx, codebase)

	start := p.now()
	p.log.Info(ctx, "starting extraction", zap.String("codebase", codebase))

	spec := &Specification{
		Application: map[string]any{},
		Servers:     []map[string]any{},
	}

	spec.Application = p.fetchApplication(ctx, codebase)

	serverChunks := p.search.Search(ctx, retrieval.Query{
		Codebase: codebase,
		Text:     p.cfg.Server.VectorQuery,
		Count:    p.cfg.VectorResultsCount,
		Suffixes: p.cfg.Suffixes,
	})
	serverRecords := p.detect(ctx, serverChunks, p.cfg.Server)
	spec.Servers = DedupeServers(serverRecords)

	dbChunks := p.search.Search(ctx, retrieval.Query{
		Codebase: codebase,
		Text:     p.cfg.Database.VectorQuery,
		Count:    p.cfg.VectorResultsCount,
		Suffixes: p.cfg.Suffixes,
	})
	dbRecords := p.detect(ctx, dbChunks, p.cfg.Database)
	spec.Database = normalize.Normalize(dbRecords, dbChunks)

	// Category passes run over everything retrieved so far; each area
	// shows up in both server and database content. Server and sql
	// rollups land next to the per-record detection results.
	allChunks := append(append([]retrieval.Chunk{}, serverChunks...), dbChunks...)
	byCategory := make(map[extract.Category][]extract.Result, len(extract.Categories()))
	for _, category := range extract.Categories() {
		byCategory[category] = p.extractCategory(ctx, allChunks, category)
	}
	if entry := aggregateServers(byCategory[extract.CategoryServer]); entry != nil {
		spec.Servers = append(spec.Servers, entry)
	}
	spec.DatabaseOverview = aggregateSQL(byCategory[extract.CategorySQL])
	spec.APIEndpoints = aggregateList(byCategory[extract.CategoryAPI])
	spec.Dependencies = aggregateList(byCategory[extract.CategoryDependencies])

	docCount := len(serverChunks) + len(dbChunks)
	spec.Metadata = p.buildMetadata(codebase, docCount)
	spec.Summary = buildSummary(spec, docCount)
	metrics.ExtractionsTotal.WithLabelValues(spec.Summary.Status).Inc()

	p.log.Info(ctx, "extraction completed",
		zap.String("codebase", codebase),
		zap.Int("documents", docCount),
		zap.Int("servers", len(spec.Servers)),
		zap.Int("tables", len(spec.Database.TableInformation)),
		zap.Duration("elapsed", p.now().Sub(start)),
	)
	return spec, nil
}

// fetchApplication retrieves remapped application metadata. Failure
// yields an empty object, never an error.
func (p *Pipeline) fetchApplication(ctx context.Context, codebase string) any {
	if p.meta == nil {
		return map[string]any{}
	}
	app, err := p.meta.Fetch(ctx, codebase)
	if err != nil {
		p.log.Warn(ctx, "metadata fetch failed, continuing without application info",
			zap.String("codebase", codebase),
			zap.Error(err),
		)
		return map[string]any{}
	}
	return app
}

// detect runs the detection pass over every chunk, returning one record
// slot per chunk so downstream normalization can resolve sources
// positionally. Failed or empty chunks leave a nil slot.
func (p *Pipeline) detect(ctx context.Context, chunks []retrieval.Chunk, prompts Prompts) []map[string]any {
	return runChunks(ctx, p.cfg, chunks, func(ctx context.Context, chunk retrieval.Chunk) map[string]any {
		return p.detectOne(ctx, chunk, prompts)
	})
}

// runChunks applies fn to every chunk, sequentially or through the
// bounded pool per the configuration, writing results into positional
// slots so slot i always corresponds to chunk i.
func runChunks[T any](ctx context.Context, cfg Config, chunks []retrieval.Chunk, fn func(context.Context, retrieval.Chunk) T) []T {
	out := make([]T, len(chunks))

	if !cfg.Parallel || cfg.MaxWorkers == 1 {
		for i, chunk := range chunks {
			if ctx.Err() != nil {
				break
			}
			out[i] = fn(ctx, chunk)
		}
		return out
	}

	sem := make(chan struct{}, cfg.MaxWorkers)
	done := make(chan struct{}, len(chunks))
	submitted := 0
	for i, chunk := range chunks {
		// Cancellation stops further submissions; in-flight tasks finish.
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		submitted++
		go func(i int, chunk retrieval.Chunk) {
			defer func() { <-sem }()
			out[i] = fn(ctx, chunk)
			done <- struct{}{}
		}(i, chunk)
	}
	for n := 0; n < submitted; n++ {
		<-done
	}
	return out
}

// detectOne bounds a single chunk's detection with the task timeout. A
// task that runs over is recorded as failed by the worker and yields nil.
func (p *Pipeline) detectOne(ctx context.Context, chunk retrieval.Chunk, prompts Prompts) map[string]any {
	taskCtx, cancel := context.WithTimeout(ctx, p.cfg.TaskTimeout)
	defer cancel()
	return p.worker.Detect(taskCtx, chunk, prompts.System, prompts.Detection)
}

// extractCategory runs one category over every chunk under the same
// sequential-or-pooled regime as detection, with the task timeout
// applied per chunk.
func (p *Pipeline) extractCategory(ctx context.Context, chunks []retrieval.Chunk, category extract.Category) []extract.Result {
	return runChunks(ctx, p.cfg, chunks, func(ctx context.Context, chunk retrieval.Chunk) extract.Result {
		taskCtx, cancel := context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
		return p.worker.ExtractCategory(taskCtx, chunk, category)
	})
}

func (p *Pipeline) buildMetadata(codebase string, docCount int) ExtractionMetadata {
	collections := make([]string, 0, len(p.cfg.Suffixes))
	for _, suffix := range p.cfg.Suffixes {
		collections = append(collections, codebase+suffix)
	}
	totalErrors := 0
	if p.errs != nil {
		totalErrors = p.errs.Len()
	}
	return ExtractionMetadata{
		Timestamp:   p.now().Format("2006-01-02 15:04:05"),
		Codebase:    codebase,
		Type:        "combined_extraction",
		Collections: collections,
		FilesCount:  docCount,
		TotalErrors: totalErrors,
	}
}
