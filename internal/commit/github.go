// Package commit pushes finished specification documents to a GitHub
// repository. The sink is fire-and-forget from the pipeline's point of
// view: a failed push is reported to the caller but never rolls back
// in-memory results.
package commit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/retry"
)

// Sink persists one codebase's specification document.
type Sink interface {
	Commit(ctx context.Context, codebase string, document any) (string, error)
}

// contentsAPI is the slice of the GitHub repositories service the sink
// uses. *github.RepositoriesService satisfies it.
type contentsAPI interface {
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
	CreateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
	UpdateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
}

// GitHubSink commits specification documents to a repository path as
// <base_path>/<codebase>.json, updating the file in place when it
// already exists.
type GitHubSink struct {
	contents contentsAPI
	owner    string
	repo     string
	branch   string
	basePath string
	policy   retry.Policy
	log      *logging.Logger
}

// NewGitHubSink builds a sink from configuration. The token must be set.
func NewGitHubSink(ctx context.Context, cfg config.GitHubConfig, policy retry.Policy, log *logging.Logger) (*GitHubSink, error) {
	if !cfg.Token.IsSet() {
		return nil, fmt.Errorf("github token not set")
	}
	if log == nil {
		log = logging.NewNop()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	return &GitHubSink{
		contents: client.Repositories,
		owner:    cfg.Owner,
		repo:     cfg.Repo,
		branch:   cfg.Branch,
		basePath: cfg.BasePath,
		policy:   policy,
		log:      log.Named("commit"),
	}, nil
}

// Commit pushes the document and returns the resulting commit SHA.
func (s *GitHubSink) Commit(ctx context.Context, codebase string, document any) (string, error) {
	payload, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode document for %s: %w", codebase, err)
	}

	filePath := path.Join(s.basePath, codebase+".json")
	message := fmt.Sprintf("Update extraction results for %s", codebase)

	var sha string
	err = s.policy.Do(ctx, s.log, "github commit", func(ctx context.Context) error {
		existing, err := s.existingSHA(ctx, filePath)
		if err != nil {
			return err
		}

		opts := &github.RepositoryContentFileOptions{
			Message: github.String(message),
			Content: payload,
			Branch:  github.String(s.branch),
		}

		var resp *github.RepositoryContentResponse
		if existing == "" {
			resp, _, err = s.contents.CreateFile(ctx, s.owner, s.repo, filePath, opts)
		} else {
			opts.SHA = github.String(existing)
			resp, _, err = s.contents.UpdateFile(ctx, s.owner, s.repo, filePath, opts)
		}
		if err != nil {
			return wrapGitHubErr(err)
		}
		if resp.Commit.SHA != nil {
			sha = *resp.Commit.SHA
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("commit %s: %w", filePath, err)
	}

	s.log.Info(ctx, "specification committed",
		zap.String("codebase", codebase),
		zap.String("path", filePath),
		zap.String("sha", sha),
	)
	return sha, nil
}

// existingSHA looks up the current blob SHA of the target file. A 404
// means the file does not exist yet and is not an error.
func (s *GitHubSink) existingSHA(ctx context.Context, filePath string) (string, error) {
	opts := &github.RepositoryContentGetOptions{Ref: s.branch}
	content, _, resp, err := s.contents.GetContents(ctx, s.owner, s.repo, filePath, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", wrapGitHubErr(err)
	}
	if content == nil || content.SHA == nil {
		return "", nil
	}
	return *content.SHA, nil
}

// wrapGitHubErr converts go-github errors into status-carrying errors so
// the shared retry policy can classify them.
func wrapGitHubErr(err error) error {
	if ghErr, ok := err.(*github.ErrorResponse); ok && ghErr.Response != nil {
		return &retry.StatusError{
			StatusCode: ghErr.Response.StatusCode,
			Service:    "github",
			Body:       ghErr.Message,
		}
	}
	return err
}
