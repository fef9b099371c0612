// Package logging provides structured, context-aware logging on top of zap.
//
// Loggers carry correlation data (project, run, and request IDs) pulled from
// context.Context so every log line emitted during an extraction run can be
// tied back to the run that produced it.
package logging
