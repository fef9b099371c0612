package errlog

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		code int
		want Severity
	}{
		{code: 500, want: SeverityHigh},
		{code: 503, want: SeverityHigh},
		{code: 404, want: SeverityMedium},
		{code: 429, want: SeverityMedium},
		{code: 200, want: SeverityLow},
		{code: 0, want: SeverityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityFor(tt.code), "status %d", tt.code)
	}
}

func TestAppendAndExport(t *testing.T) {
	c := New()
	c.Append(Record{
		ErrorType:    "transport_error",
		StatusCode:   404,
		ResponseText: "not found",
		FileSource:   "src/db/pool.go",
		SystemPrompt: "You are a database analyst.",
		UserPrompt:   "Find database connections.",
		Content:      "db.Connect(host)",
	})
	c.Append(Record{
		ErrorType:  "llm_service_error",
		StatusCode: 500,
		FileSource: "src/api/server.go",
	})
	c.Append(Record{
		ErrorType: "connection_refused",
		// No status code: transport-level failure.
		FileSource: "src/api/client.go",
	})

	require.Equal(t, 3, c.Len())

	report := c.Export()
	assert.Equal(t, 3, report.TotalErrors)
	require.Len(t, report.Errors["404"], 1)
	require.Len(t, report.Errors["500"], 1)
	require.Len(t, report.Errors["unknown"], 1)

	e := report.Errors["404"][0]
	assert.Equal(t, "transport_error", e.ErrorType)
	assert.Equal(t, SeverityMedium, e.Severity)
	assert.Equal(t, "src/db/pool.go", e.FileSource)
	assert.False(t, e.Timestamp.IsZero())
}

func TestAppendTruncatesLongFields(t *testing.T) {
	c := New()
	longResponse := strings.Repeat("r", 2000)
	longContent := strings.Repeat("c", 1200)
	longPrompt := strings.Repeat("p", 300)

	c.Append(Record{
		ErrorType:    "parse_error",
		ResponseText: longResponse,
		SystemPrompt: longPrompt,
		Content:      longContent,
	})

	entry := c.All()[0]
	assert.Len(t, entry.ResponseText, 1003) // 1000 + "..."
	assert.Len(t, entry.ContentShort, 503)
	assert.Equal(t, 1200, entry.ContentLength)
	// Full prompt kept on the entry, truncated only in the report.
	assert.Len(t, entry.SystemPrompt, 300)
	assert.Len(t, c.Export().Errors["unknown"][0].SystemPrompt, 103)
}

func TestClear(t *testing.T) {
	c := New()
	c.Append(Record{ErrorType: "x", StatusCode: 404})
	require.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Export().Errors)
}

func TestCountBySeverity(t *testing.T) {
	c := New()
	c.Append(Record{StatusCode: 500})
	c.Append(Record{StatusCode: 502})
	c.Append(Record{StatusCode: 404})
	c.Append(Record{StatusCode: 0})

	counts := c.CountBySeverity()
	assert.Equal(t, 2, counts[SeverityHigh])
	assert.Equal(t, 1, counts[SeverityMedium])
	assert.Equal(t, 1, counts[SeverityLow])
}

func TestConcurrentAppend(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append(Record{ErrorType: "timeout", StatusCode: 504})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, c.Len())
}
