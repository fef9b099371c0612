package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specforge/internal/errlog"
	"github.com/fyrsmithlabs/specforge/internal/extract"
	"github.com/fyrsmithlabs/specforge/internal/llm"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/metadata"
	"github.com/fyrsmithlabs/specforge/internal/retrieval"
	"github.com/fyrsmithlabs/specforge/internal/retry"
)

// fakeSearcher returns canned chunks per query text.
type fakeSearcher struct {
	byQuery map[string][]retrieval.Chunk
	lastCtx context.Context
}

func (f *fakeSearcher) Search(ctx context.Context, q retrieval.Query) []retrieval.Chunk {
	f.lastCtx = ctx
	return f.byQuery[q.Text]
}

// scriptedInvoker answers detection prompts from a content→output table,
// server and sql category prompts from their own tables, and everything
// else with an empty JSON array.
type scriptedInvoker struct {
	mu        sync.Mutex
	detection map[string]string
	server    map[string]string
	sql       map[string]string
	failures  map[string]error
	calls     int
}

func (s *scriptedInvoker) Invoke(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err, ok := s.failures[req.Codebase]; ok {
		return nil, err
	}
	var table map[string]string
	switch {
	case strings.Contains(req.UserPrompt, "reply back with 'no'"):
		table = s.detection
	case strings.Contains(req.UserPrompt, `"hosts"`):
		table = s.server
	case strings.Contains(req.UserPrompt, `"queries"`):
		table = s.sql
	}
	if out, ok := table[req.Codebase]; ok {
		return &llm.Response{StatusCode: 200, Output: out}, nil
	}
	return &llm.Response{StatusCode: 200, Output: "[]"}, nil
}

type fakeFetcher struct {
	app *metadata.Application
	err error
}

func (f *fakeFetcher) Fetch(context.Context, string) (*metadata.Application, error) {
	return f.app, f.err
}

func testConfig() Config {
	return Config{
		VectorResultsCount: 10,
		Suffixes:           []string{""},
		TaskTimeout:        5 * time.Second,
	}
}

func newTestPipeline(search retrieval.Searcher, inv llm.Invoker, meta metadata.Fetcher, errs *errlog.Collector, cfg Config) *Pipeline {
	worker := extract.NewWorker(inv, nil, errs, nil, extract.Config{
		Retry: retry.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond},
	})
	return New(search, worker, meta, errs, nil, cfg)
}

func serverChunk(content, source string) retrieval.Chunk {
	return retrieval.Chunk{Content: content, SourcePath: source, Collection: "billing"}
}

func TestRunSingleServerRecord(t *testing.T) {
	search := &fakeSearcher{byQuery: map[string][]retrieval.Chunk{
		DefaultServerPrompts().VectorQuery: {
			serverChunk("db.url=jdbc:postgresql://db1.internal:5432/orders", "application.properties"),
		},
	}}
	inv := &scriptedInvoker{detection: map[string]string{
		"db.url=jdbc:postgresql://db1.internal:5432/orders": `{"host":"db1.internal","port":"5432","database_name":"orders"}`,
	}}

	p := newTestPipeline(search, inv, nil, errlog.New(), testConfig())
	spec, err := p.Run(context.Background(), "billing")
	require.NoError(t, err)

	require.Len(t, spec.Servers, 1)
	assert.Equal(t, "db1.internal", spec.Servers[0]["host"])
	assert.Equal(t, "5432", spec.Servers[0]["port"])
	assert.Equal(t, "orders", spec.Servers[0]["database_name"])
}

func TestRunDeduplicatesIdenticalServers(t *testing.T) {
	out := `{"host":"db1.internal","port":"5432","database_name":"orders"}`
	search := &fakeSearcher{byQuery: map[string][]retrieval.Chunk{
		DefaultServerPrompts().VectorQuery: {
			serverChunk("first mention of db1", "a.properties"),
			serverChunk("second mention of db1", "b.properties"),
		},
	}}
	inv := &scriptedInvoker{detection: map[string]string{
		"first mention of db1":  out,
		"second mention of db1": out,
	}}

	p := newTestPipeline(search, inv, nil, errlog.New(), testConfig())
	spec, err := p.Run(context.Background(), "billing")
	require.NoError(t, err)
	assert.Len(t, spec.Servers, 1)
}

func TestRunNoInformationChunkContributesNothing(t *testing.T) {
	search := &fakeSearcher{byQuery: map[string][]retrieval.Chunk{
		DefaultDatabasePrompts().VectorQuery: {
			serverChunk("func helperOnly() {}", "util.go"),
		},
	}}
	inv := &scriptedInvoker{detection: map[string]string{
		"func helperOnly() {}": "no database information found",
	}}

	p := newTestPipeline(search, inv, nil, errlog.New(), testConfig())
	spec, err := p.Run(context.Background(), "billing")
	require.NoError(t, err)

	assert.Empty(t, spec.Database.TableInformation)
	assert.Empty(t, spec.Database.SQLQueries)
}

func TestRunIsolatesTransportFailure(t *testing.T) {
	chunks := []retrieval.Chunk{
		serverChunk("server one details here", "s1.yaml"),
		serverChunk("server two details here", "s2.yaml"),
		serverChunk("failing chunk content here", "bad.yaml"),
		serverChunk("server four details here", "s4.yaml"),
		serverChunk("server five details here", "s5.yaml"),
	}
	search := &fakeSearcher{byQuery: map[string][]retrieval.Chunk{
		DefaultServerPrompts().VectorQuery: chunks,
	}}
	inv := &scriptedInvoker{
		detection: map[string]string{
			"server one details here":  `{"host":"h1","port":"1","database_name":"d1"}`,
			"server two details here":  `{"host":"h2","port":"2","database_name":"d2"}`,
			"server four details here": `{"host":"h4","port":"4","database_name":"d4"}`,
			"server five details here": `{"host":"h5","port":"5","database_name":"d5"}`,
		},
		failures: map[string]error{
			"failing chunk content here": &retry.StatusError{StatusCode: 404, Service: "llm"},
		},
	}

	errs := errlog.New()
	p := newTestPipeline(search, inv, nil, errs, testConfig())
	spec, err := p.Run(context.Background(), "billing")
	require.NoError(t, err)

	assert.Len(t, spec.Servers, 4)
	report := errs.Export()
	assert.NotEmpty(t, report.Errors["404"])
}

func TestRunParallelMatchesSequential(t *testing.T) {
	chunks := make([]retrieval.Chunk, 0, 8)
	detection := make(map[string]string)
	server := make(map[string]string)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		content := "server " + name + " configuration block"
		chunks = append(chunks, serverChunk(content, name+".yaml"))
		detection[content] = `{"host":"` + name + `.internal","port":"5432","database_name":"` + name + `"}`
		server[content] = `{"hosts":["` + name + `.internal"],"ports":["5432"],"endpoints":[],"config":{}}`
	}
	search := &fakeSearcher{byQuery: map[string][]retrieval.Chunk{
		DefaultServerPrompts().VectorQuery: chunks,
	}}

	seqCfg := testConfig()
	seq, err := newTestPipeline(search, &scriptedInvoker{detection: detection, server: server}, nil, errlog.New(), seqCfg).
		Run(context.Background(), "billing")
	require.NoError(t, err)

	parCfg := testConfig()
	parCfg.Parallel = true
	parCfg.MaxWorkers = 4
	par, err := newTestPipeline(search, &scriptedInvoker{detection: detection, server: server}, nil, errlog.New(), parCfg).
		Run(context.Background(), "billing")
	require.NoError(t, err)

	assert.Equal(t, seq.Servers, par.Servers)
	assert.Equal(t, seq.DatabaseOverview, par.DatabaseOverview)
}

func TestRunMetadataFailureNonFatal(t *testing.T) {
	search := &fakeSearcher{byQuery: map[string][]retrieval.Chunk{}}
	p := newTestPipeline(search, &scriptedInvoker{}, &fakeFetcher{err: assert.AnError}, errlog.New(), testConfig())

	spec, err := p.Run(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, spec.Application)
}

func TestRunAttachesApplicationMetadata(t *testing.T) {
	app := &metadata.Application{}
	app.Information.Name = "Billing"
	search := &fakeSearcher{byQuery: map[string][]retrieval.Chunk{}}
	p := newTestPipeline(search, &scriptedInvoker{}, &fakeFetcher{app: app}, errlog.New(), testConfig())

	spec, err := p.Run(context.Background(), "billing")
	require.NoError(t, err)
	assert.Same(t, app, spec.Application)
}

func TestRunRejectsUnsafeCodebaseName(t *testing.T) {
	p := newTestPipeline(&fakeSearcher{}, &scriptedInvoker{}, nil, nil, testConfig())
	_, err := p.Run(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}

func TestRunSummaryAndMetadata(t *testing.T) {
	search := &fakeSearcher{byQuery: map[string][]retrieval.Chunk{
		DefaultServerPrompts().VectorQuery: {
			serverChunk("server config for summary", "s.yaml"),
		},
	}}
	inv := &scriptedInvoker{detection: map[string]string{
		"server config for summary": `{"host":"db1","port":"5432","database_name":"orders"}`,
	}}

	cfg := testConfig()
	cfg.Suffixes = []string{"-external-files", ""}
	p := newTestPipeline(search, inv, nil, errlog.New(), cfg)
	spec, err := p.Run(context.Background(), "billing")
	require.NoError(t, err)

	assert.Equal(t, "billing", spec.Metadata.Codebase)
	assert.Equal(t, []string{"billing-external-files", "billing"}, spec.Metadata.Collections)
	assert.Equal(t, "completed", spec.Summary.Status)
	assert.Equal(t, 1, spec.Summary.Statistics.ServerEntries)
	assert.True(t, spec.Summary.Coverage.Areas["server"])
	assert.False(t, spec.Summary.Coverage.Areas["database"])
	assert.Equal(t, 25.0, spec.Summary.Coverage.Percentage)
}

func TestRunNoDocumentsStatus(t *testing.T) {
	p := newTestPipeline(&fakeSearcher{}, &scriptedInvoker{}, nil, errlog.New(), testConfig())
	spec, err := p.Run(context.Background(), "empty-codebase")
	require.NoError(t, err)
	assert.Equal(t, "no_documents", spec.Summary.Status)
	assert.Equal(t, 0, spec.Summary.DocumentsProcessed)
}

func TestRunAppendsAggregatedServerEntry(t *testing.T) {
	content := "db config for payments service"
	search := &fakeSearcher{byQuery: map[string][]retrieval.Chunk{
		DefaultServerPrompts().VectorQuery: {serverChunk(content, "config.yaml")},
	}}
	inv := &scriptedInvoker{
		detection: map[string]string{
			content: `{"host":"db1.internal","port":"5432","database_name":"payments"}`,
		},
		server: map[string]string{
			content: `{"hosts":["db1.internal"],"ports":["5432"],"endpoints":["http://db1.internal:5432"],"config":{"env":"prod"}}`,
		},
	}

	p := newTestPipeline(search, inv, nil, errlog.New(), testConfig())
	spec, err := p.Run(context.Background(), "billing")
	require.NoError(t, err)

	// Detection record plus the category rollup entry.
	require.Len(t, spec.Servers, 2)
	assert.Equal(t, "db1.internal", spec.Servers[0]["host"])

	entry := spec.Servers[1]
	assert.Equal(t, []string{"db1.internal"}, entry["hosts"])
	assert.Equal(t, []string{"5432"}, entry["ports"])
	assert.Equal(t, []string{"http://db1.internal:5432"}, entry["endpoints"])
	assert.Equal(t, map[string]string{"env": "prod"}, entry["configuration"])
	assert.Equal(t, 2, spec.Summary.Statistics.ServerEntries)
}

func TestRunBuildsDatabaseOverview(t *testing.T) {
	content := "repository layer for orders"
	search := &fakeSearcher{byQuery: map[string][]retrieval.Chunk{
		DefaultDatabasePrompts().VectorQuery: {serverChunk(content, "repo.go")},
	}}
	inv := &scriptedInvoker{
		detection: map[string]string{content: "no"},
		sql: map[string]string{
			content: `{"queries":["SELECT id FROM orders"],"tables":["orders"],"connections":["jdbc:postgresql://db1/orders"]}`,
		},
	}

	p := newTestPipeline(search, inv, nil, errlog.New(), testConfig())
	spec, err := p.Run(context.Background(), "billing")
	require.NoError(t, err)

	assert.Equal(t, []string{"SELECT id FROM orders"}, spec.DatabaseOverview.Queries)
	assert.Equal(t, []string{"orders"}, spec.DatabaseOverview.Tables)
	assert.Equal(t, []string{"jdbc:postgresql://db1/orders"}, spec.DatabaseOverview.Connections)
	assert.Equal(t, 1, spec.Summary.Statistics.DatabaseConnections)
	assert.True(t, spec.Summary.Coverage.Areas["database"])
}

func TestRunServerAggregateFromRegexFallback(t *testing.T) {
	// The scripted invoker answers the server category with an empty
	// array, forcing the worker onto its regex path.
	content := `host = "db1.internal"
port = 5432`
	search := &fakeSearcher{byQuery: map[string][]retrieval.Chunk{
		DefaultServerPrompts().VectorQuery: {serverChunk(content, "settings.toml")},
	}}
	inv := &scriptedInvoker{detection: map[string]string{content: "no"}}

	p := newTestPipeline(search, inv, nil, errlog.New(), testConfig())
	spec, err := p.Run(context.Background(), "billing")
	require.NoError(t, err)

	require.Len(t, spec.Servers, 1)
	assert.Equal(t, []string{"db1.internal"}, spec.Servers[0]["hosts"])
	assert.Equal(t, []string{"5432"}, spec.Servers[0]["ports"])
}

func TestRunTagsContextWithProject(t *testing.T) {
	search := &fakeSearcher{}
	p := newTestPipeline(search, &scriptedInvoker{}, nil, errlog.New(), testConfig())

	_, err := p.Run(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, "billing", logging.ProjectIDFromContext(search.lastCtx))
}
