// Package errlog collects structured error records during an extraction
// run. The collector is injected into pipeline stages rather than held as
// ambient global state, so batch runs over multiple codebases each get an
// isolated log with no cross-contamination.
package errlog

import (
	"strconv"
	"sync"
	"time"

	"github.com/fyrsmithlabs/specforge/internal/metrics"
)

// Severity classifies an error by its HTTP status code.
type Severity string

const (
	SeverityHigh    Severity = "HIGH"
	SeverityMedium  Severity = "MEDIUM"
	SeverityLow     Severity = "LOW"
	SeverityUnknown Severity = "UNKNOWN"
)

// SeverityFor maps a status code to a severity: 5xx is HIGH, 4xx is
// MEDIUM, everything else (including transport failures with no status)
// is LOW.
func SeverityFor(statusCode int) Severity {
	switch {
	case statusCode >= 500:
		return SeverityHigh
	case statusCode >= 400:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

const (
	maxResponseLen = 1000
	maxSnippetLen  = 500
	maxPromptLen   = 100
)

// Entry is one recorded error with full audit context: which file and
// prompts triggered it, what came back, and when.
type Entry struct {
	Timestamp     time.Time `json:"timestamp"`
	ErrorType     string    `json:"error_type"`
	StatusCode    int       `json:"status_code"`
	ResponseText  string    `json:"response_text"`
	FileSource    string    `json:"file_source"`
	URLAttempted  string    `json:"url_attempted"`
	SystemPrompt  string    `json:"system_prompt"`
	UserPrompt    string    `json:"user_prompt"`
	ContentShort  string    `json:"content_snippet"`
	ContentLength int       `json:"full_content_length"`
	Severity      Severity  `json:"error_severity"`
}

// Record carries the context for a new entry; the collector fills in
// timestamp, truncation, and severity.
type Record struct {
	ErrorType    string
	StatusCode   int
	ResponseText string
	FileSource   string
	URLAttempted string
	SystemPrompt string
	UserPrompt   string
	Content      string
}

// Collector is an append-only error log for one run or session. Safe for
// concurrent use by pool workers.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// New returns an empty collector.
func New() *Collector {
	return &Collector{now: time.Now}
}

// Append records an error.
func (c *Collector) Append(rec Record) {
	entry := Entry{
		Timestamp:     c.clock()(),
		ErrorType:     rec.ErrorType,
		StatusCode:    rec.StatusCode,
		ResponseText:  truncate(rec.ResponseText, maxResponseLen),
		FileSource:    rec.FileSource,
		URLAttempted:  rec.URLAttempted,
		SystemPrompt:  rec.SystemPrompt,
		UserPrompt:    rec.UserPrompt,
		ContentShort:  truncate(rec.Content, maxSnippetLen),
		ContentLength: len(rec.Content),
		Severity:      SeverityFor(rec.StatusCode),
	}
	metrics.ErrorsCollected.WithLabelValues(string(entry.Severity)).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

// Len returns the number of recorded errors.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// All returns a copy of every entry in append order.
func (c *Collector) All() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Clear discards all entries. Operators call this between runs.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// CountBySeverity returns how many entries carry each severity.
func (c *Collector) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, e := range c.All() {
		counts[e.Severity]++
	}
	return counts
}

// ReportEntry is the audit view of an entry in the grouped export, with
// prompts truncated for readability.
type ReportEntry struct {
	SystemPrompt  string    `json:"system"`
	UserPrompt    string    `json:"user"`
	FileSource    string    `json:"codebase"`
	ErrorType     string    `json:"error"`
	Timestamp     time.Time `json:"timestamp"`
	StatusCode    int       `json:"status_code"`
	Severity      Severity  `json:"error_severity"`
	ResponseText  string    `json:"response_text"`
	ContentLength int       `json:"full_content_length"`
	URLAttempted  string    `json:"url_attempted"`
}

// Report groups entries by status code for download and audit. Entries
// with no status code land under "unknown".
type Report struct {
	ExportTimestamp time.Time                `json:"export_timestamp"`
	TotalErrors     int                      `json:"total_errors"`
	Errors          map[string][]ReportEntry `json:"Errors"`
}

// Export builds the grouped report from the current entries.
func (c *Collector) Export() Report {
	entries := c.All()
	report := Report{
		ExportTimestamp: c.clock()(),
		TotalErrors:     len(entries),
		Errors:          make(map[string][]ReportEntry),
	}

	for _, e := range entries {
		key := "unknown"
		if e.StatusCode != 0 {
			key = strconv.Itoa(e.StatusCode)
		}
		report.Errors[key] = append(report.Errors[key], ReportEntry{
			SystemPrompt:  truncate(e.SystemPrompt, maxPromptLen),
			UserPrompt:    truncate(e.UserPrompt, maxPromptLen),
			FileSource:    e.FileSource,
			ErrorType:     e.ErrorType,
			Timestamp:     e.Timestamp,
			StatusCode:    e.StatusCode,
			Severity:      e.Severity,
			ResponseText:  e.ResponseText,
			ContentLength: e.ContentLength,
			URLAttempted:  e.URLAttempted,
		})
	}

	return report
}

func (c *Collector) clock() func() time.Time {
	if c.now != nil {
		return c.now
	}
	return time.Now
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
