// Package batch drives extraction across multiple codebases. Each
// codebase runs to completion, including its own retries, before the
// next starts; one codebase's failure never aborts the batch.
package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/commit"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/orchestrator"
)

// Extractor runs the pipeline for one codebase.
// *orchestrator.Pipeline satisfies it.
type Extractor interface {
	Run(ctx context.Context, codebase string) (*orchestrator.Specification, error)
}

// Result is one codebase's slot in the batch output. Failed codebases
// keep their slot with a nil Specification and the error message.
type Result struct {
	Codebase      string                      `json:"codebase"`
	Specification *orchestrator.Specification `json:"specification"`
	Error         string                      `json:"error,omitempty"`
	CommitSHA     string                      `json:"commit_sha,omitempty"`
	CommitError   string                      `json:"commit_error,omitempty"`
}

// Failed reports whether the slot carries no usable specification.
func (r Result) Failed() bool {
	return r.Specification == nil
}

// Driver processes codebases sequentially. sink may be nil to skip
// committing.
type Driver struct {
	extractor Extractor
	sink      commit.Sink
	log       *logging.Logger
}

// New creates a batch driver.
func New(extractor Extractor, sink commit.Sink, log *logging.Logger) *Driver {
	if log == nil {
		log = logging.NewNop()
	}
	return &Driver{
		extractor: extractor,
		sink:      sink,
		log:       log.Named("batch"),
	}
}

// Run processes every codebase in order and returns one result slot per
// codebase, in input order. Cancellation marks the remaining slots as
// failed without starting them.
func (d *Driver) Run(ctx context.Context, codebases []string) []Result {
	results := make([]Result, len(codebases))

	for i, codebase := range codebases {
		results[i] = Result{Codebase: codebase}

		if err := ctx.Err(); err != nil {
			results[i].Error = fmt.Sprintf("not started: %v", err)
			continue
		}

		d.log.Info(ctx, "processing codebase",
			zap.String("codebase", codebase),
			zap.Int("position", i+1),
			zap.Int("total", len(codebases)),
		)

		spec, err := d.runOne(ctx, codebase)
		if err != nil {
			d.log.Error(ctx, "codebase extraction failed",
				zap.String("codebase", codebase),
				zap.Error(err),
			)
			results[i].Error = err.Error()
			continue
		}
		results[i].Specification = spec

		if d.sink != nil {
			sha, err := d.sink.Commit(ctx, codebase, spec)
			if err != nil {
				// Reported, never rolls back the extraction result.
				d.log.Warn(ctx, "commit failed",
					zap.String("codebase", codebase),
					zap.Error(err),
				)
				results[i].CommitError = err.Error()
			} else {
				results[i].CommitSHA = sha
			}
		}
	}

	return results
}

// runOne isolates a single codebase, converting panics into failed
// slots so a defect in one extraction cannot take down the batch.
func (d *Driver) runOne(ctx context.Context, codebase string) (spec *orchestrator.Specification, err error) {
	defer func() {
		if r := recover(); r != nil {
			spec = nil
			err = fmt.Errorf("extraction panic: %v", r)
		}
	}()
	return d.extractor.Run(ctx, codebase)
}
