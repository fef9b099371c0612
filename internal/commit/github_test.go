package commit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/retry"
)

type fakeContents struct {
	existingSHA string
	getErr      error
	getStatus   int

	created *github.RepositoryContentFileOptions
	updated *github.RepositoryContentFileOptions

	createErr    error
	failuresLeft int
}

func (f *fakeContents) GetContents(_ context.Context, _, _, _ string, _ *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error) {
	if f.getErr != nil {
		resp := &github.Response{Response: &http.Response{StatusCode: f.getStatus}}
		return nil, nil, resp, f.getErr
	}
	if f.existingSHA == "" {
		resp := &github.Response{Response: &http.Response{StatusCode: http.StatusNotFound}}
		return nil, nil, resp, &github.ErrorResponse{Response: &http.Response{StatusCode: http.StatusNotFound}}
	}
	return &github.RepositoryContent{SHA: github.String(f.existingSHA)}, nil, nil, nil
}

func (f *fakeContents) CreateFile(_ context.Context, _, _, _ string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, nil, &github.ErrorResponse{
			Response: &http.Response{StatusCode: http.StatusBadGateway},
			Message:  "upstream error",
		}
	}
	if f.createErr != nil {
		return nil, nil, f.createErr
	}
	f.created = opts
	return commitResponse("abc123"), nil, nil
}

func (f *fakeContents) UpdateFile(_ context.Context, _, _, _ string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error) {
	f.updated = opts
	return commitResponse("def456"), nil, nil
}

func commitResponse(sha string) *github.RepositoryContentResponse {
	resp := &github.RepositoryContentResponse{}
	resp.Commit.SHA = github.String(sha)
	return resp
}

func testSink(contents contentsAPI) *GitHubSink {
	return &GitHubSink{
		contents: contents,
		owner:    "acme",
		repo:     "extractions",
		branch:   "main",
		basePath: "specs",
		policy:   retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, RateLimitBackoff: time.Millisecond},
		log:      logging.NewNop(),
	}
}

func TestCommitCreatesNewFile(t *testing.T) {
	contents := &fakeContents{}
	sink := testSink(contents)

	sha, err := sink.Commit(context.Background(), "billing", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)

	require.NotNil(t, contents.created)
	assert.Nil(t, contents.updated)
	assert.Contains(t, *contents.created.Message, "billing")
	assert.Equal(t, "main", *contents.created.Branch)
	assert.Contains(t, string(contents.created.Content), `"k": "v"`)
}

func TestCommitUpdatesExistingFile(t *testing.T) {
	contents := &fakeContents{existingSHA: "oldsha"}
	sink := testSink(contents)

	sha, err := sink.Commit(context.Background(), "billing", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "def456", sha)

	require.NotNil(t, contents.updated)
	assert.Equal(t, "oldsha", *contents.updated.SHA)
	assert.Nil(t, contents.created)
}

func TestCommitRetriesTransientFailure(t *testing.T) {
	contents := &fakeContents{failuresLeft: 2}
	sink := testSink(contents)

	sha, err := sink.Commit(context.Background(), "billing", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)
}

func TestCommitFailureReturnsError(t *testing.T) {
	contents := &fakeContents{failuresLeft: 10}
	sink := testSink(contents)

	_, err := sink.Commit(context.Background(), "billing", map[string]any{})
	require.Error(t, err)

	var statusErr *retry.StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestCommitUnencodableDocument(t *testing.T) {
	sink := testSink(&fakeContents{})
	_, err := sink.Commit(context.Background(), "billing", map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}
