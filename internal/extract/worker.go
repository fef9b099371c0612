// Package extract implements the per-chunk extraction worker: content
// gating and cleaning, the LLM detection call with its two-level status
// handling, robust output parsing, advisory validation, and the regex
// fallback used by category extraction when the model path fails.
//
// Workers never propagate failures to their caller. Every error path
// logs, records to the error collector, and returns an empty result so a
// single bad chunk cannot abort a run.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/errlog"
	"github.com/fyrsmithlabs/specforge/internal/llm"
	"github.com/fyrsmithlabs/specforge/internal/llmjson"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/metrics"
	"github.com/fyrsmithlabs/specforge/internal/retrieval"
	"github.com/fyrsmithlabs/specforge/internal/retry"
	"github.com/fyrsmithlabs/specforge/internal/sanitize"
)

// DefaultValidationPrompt asks the model to confirm an extracted record.
const DefaultValidationPrompt = "Is this valid database server information? If yes, reply with 'yes'. If no, reply with 'no'."

const defaultMinChunkLength = 4

// Config configures a Worker.
type Config struct {
	// MinChunkLength rejects chunks whose cleaned content is shorter;
	// such chunks are embedding noise.
	MinChunkLength int

	// Validate enables the advisory second LLM round-trip per record.
	Validate bool

	// ValidationPrompt overrides DefaultValidationPrompt.
	ValidationPrompt string

	// Retry is the policy for category extraction calls. Detection calls
	// are not retried per chunk; a failed chunk is simply skipped.
	Retry retry.Policy
}

// Worker extracts structured records from retrieved chunks.
type Worker struct {
	invoker llm.Invoker
	cleaner *sanitize.Cleaner
	errs    *errlog.Collector
	log     *logging.Logger
	cfg     Config
}

// NewWorker creates a worker. errs may be nil.
func NewWorker(invoker llm.Invoker, cleaner *sanitize.Cleaner, errs *errlog.Collector, log *logging.Logger, cfg Config) *Worker {
	if cleaner == nil {
		cleaner = sanitize.New()
	}
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.MinChunkLength <= 0 {
		cfg.MinChunkLength = defaultMinChunkLength
	}
	if cfg.ValidationPrompt == "" {
		cfg.ValidationPrompt = DefaultValidationPrompt
	}
	return &Worker{
		invoker: invoker,
		cleaner: cleaner,
		errs:    errs,
		log:     log.Named("extract"),
		cfg:     cfg,
	}
}

// Detect runs one detection pass over a chunk and returns the extracted
// record, or nil when the chunk yields nothing. The nil cases — short
// content, transport failure, content-policy filtering, an explicit "no
// information" answer — are all non-fatal.
func (w *Worker) Detect(ctx context.Context, chunk retrieval.Chunk, systemPrompt, detectionPrompt string) map[string]any {
	cleaned := w.cleaner.Clean(chunk.Content)
	if len(cleaned) < w.cfg.MinChunkLength {
		w.log.Debug(ctx, "chunk below minimum length, skipping",
			zap.String("source", chunk.SourcePath),
			zap.Int("length", len(cleaned)),
		)
		metrics.ChunksProcessed.WithLabelValues("skipped").Inc()
		return nil
	}

	resp, err := w.invoker.Invoke(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   detectionPrompt,
		Codebase:     cleaned,
	})
	if err != nil {
		w.recordCallFailure(ctx, "detection", err, chunk.SourcePath, systemPrompt, detectionPrompt, cleaned)
		metrics.LLMCallsTotal.WithLabelValues("detection", "error").Inc()
		metrics.ChunksProcessed.WithLabelValues("failed").Inc()
		return nil
	}

	if !resp.OK() {
		// Outer 200 but the content firewall filtered the prompt.
		metrics.LLMCallsTotal.WithLabelValues("detection", "filtered").Inc()
		metrics.ChunksProcessed.WithLabelValues("failed").Inc()
		w.log.Warn(ctx, "detection filtered by content policy",
			zap.String("source", chunk.SourcePath),
			zap.Int("inner_status", resp.StatusCode),
		)
		w.appendErr(errlog.Record{
			ErrorType:    fmt.Sprintf("detection_internal_%d", resp.StatusCode),
			StatusCode:   resp.StatusCode,
			ResponseText: resp.Output,
			FileSource:   chunk.SourcePath,
			SystemPrompt: systemPrompt,
			UserPrompt:   detectionPrompt,
			Content:      cleaned,
		})
		return nil
	}

	metrics.LLMCallsTotal.WithLabelValues("detection", "success").Inc()

	record, diag := llmjson.ParseRecord(resp.Output, chunk.SourcePath)
	if record == nil {
		// Expected terminal state, not an error.
		w.log.Debug(ctx, "no information in chunk",
			zap.String("source", chunk.SourcePath),
			zap.String("diagnostic", diag),
		)
		metrics.ChunksProcessed.WithLabelValues("skipped").Inc()
		return nil
	}
	metrics.ChunksProcessed.WithLabelValues("extracted").Inc()
	if diag == llmjson.DiagFallback {
		w.log.Warn(ctx, "detection output unparsable, using fallback record",
			zap.String("source", chunk.SourcePath),
		)
	}

	if w.cfg.Validate {
		w.validate(ctx, record, chunk.SourcePath, systemPrompt)
	}
	return record
}

// validate performs the advisory second LLM round-trip. Every failure
// mode accepts the record: validation can veto nothing, it only logs.
func (w *Worker) validate(ctx context.Context, record map[string]any, source, systemPrompt string) {
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}

	resp, err := w.invoker.Invoke(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   w.cfg.ValidationPrompt,
		Codebase:     string(payload),
	})
	if err != nil {
		w.recordCallFailure(ctx, "validation", err, source, systemPrompt, w.cfg.ValidationPrompt, string(payload))
		return
	}
	if !resp.OK() {
		w.appendErr(errlog.Record{
			ErrorType:    fmt.Sprintf("validation_internal_%d", resp.StatusCode),
			StatusCode:   resp.StatusCode,
			ResponseText: resp.Output,
			FileSource:   source,
			SystemPrompt: systemPrompt,
			UserPrompt:   w.cfg.ValidationPrompt,
			Content:      string(payload),
		})
		return
	}
	if !strings.Contains(strings.ToLower(resp.Output), "yes") {
		w.log.Warn(ctx, "validation disagreed, accepting record anyway",
			zap.String("source", source),
			zap.String("validation_output", truncate(resp.Output, 100)),
		)
	}
}

// ExtractCategory runs one category extraction over a chunk using the
// model first, the regex fallback second, and an empty structure last.
// The returned Result always carries usable data.
func (w *Worker) ExtractCategory(ctx context.Context, chunk retrieval.Chunk, category Category) Result {
	result := Result{
		Data:   category.Empty(),
		Source: chunk.SourcePath,
		Type:   category,
	}
	if !category.Valid() {
		result.Errors = []string{fmt.Sprintf("unknown extraction type: %s", category)}
		return result
	}

	cleaned := w.cleaner.Clean(chunk.Content)
	if len(cleaned) < w.cfg.MinChunkLength {
		result.Success = true
		result.Confidence = 0.1
		return result
	}

	if data, ok := w.categoryLLM(ctx, cleaned, chunk.SourcePath, category); ok {
		result.Success = true
		result.Data = data
		result.Confidence = 0.9
		return result
	}

	if data, ok := regexFallback(cleaned, category); ok {
		w.log.Debug(ctx, "category extraction fell back to regex",
			zap.String("source", chunk.SourcePath),
			zap.String("category", string(category)),
		)
		result.Success = true
		result.Data = data
		result.Confidence = 0.6
		return result
	}

	result.Success = true
	result.Confidence = 0.1
	return result
}

// categoryLLM runs the model path of a category extraction with retries.
func (w *Worker) categoryLLM(ctx context.Context, cleaned, source string, category Category) (any, bool) {
	prompt := category.Prompts()

	var resp *llm.Response
	err := w.cfg.Retry.Do(ctx, w.log, string(category)+" extraction", func(ctx context.Context) error {
		r, err := w.invoker.Invoke(ctx, llm.Request{
			SystemPrompt: prompt.System,
			UserPrompt:   prompt.User,
			Codebase:     cleaned,
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		w.recordCallFailure(ctx, string(category), err, source, prompt.System, prompt.User, cleaned)
		return nil, false
	}
	if !resp.OK() {
		w.appendErr(errlog.Record{
			ErrorType:    fmt.Sprintf("%s_internal_%d", category, resp.StatusCode),
			StatusCode:   resp.StatusCode,
			ResponseText: resp.Output,
			FileSource:   source,
			SystemPrompt: prompt.System,
			UserPrompt:   prompt.User,
			Content:      cleaned,
		})
		return nil, false
	}

	parsed, diag := llmjson.Parse(resp.Output, source)
	if parsed == nil || diag == llmjson.DiagFallback {
		return nil, false
	}
	return category.decodeData(parsed)
}

func (w *Worker) recordCallFailure(ctx context.Context, stage string, err error, source, systemPrompt, userPrompt, content string) {
	status := 0
	errType := stage + "_connection_error"
	var statusErr *retry.StatusError
	if errors.As(err, &statusErr) {
		status = statusErr.StatusCode
		errType = fmt.Sprintf("%s_api_%d", stage, status)
	}

	w.log.Warn(ctx, "llm call failed",
		zap.String("stage", stage),
		zap.String("source", source),
		zap.Int("status", status),
		zap.Error(err),
	)
	w.appendErr(errlog.Record{
		ErrorType:    errType,
		StatusCode:   status,
		ResponseText: err.Error(),
		FileSource:   source,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Content:      content,
	})
}

func (w *Worker) appendErr(rec errlog.Record) {
	if w.errs != nil {
		w.errs.Append(rec)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
