// Package retrieval wraps the external vector-similarity search service.
//
// One extraction pass searches several collections (the codebase itself
// plus an "-external-files" companion) and merges the results. Retrieval
// is best-effort by contract: a failing collection contributes zero
// results, and Search never returns an error to its caller.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/errlog"
	"github.com/fyrsmithlabs/specforge/internal/logging"
)

const defaultTimeout = 60 * time.Second

// minChunkContent is the minimum trimmed content length for a retrieved
// chunk to survive merging; shorter ones are embedding noise.
const minChunkContent = 10

// fingerprintLen is how many leading bytes of content identify a chunk
// for cross-collection dedup.
const fingerprintLen = 200

// excludedFiles are build-system artifacts that pollute retrieval results
// and never carry extractable knowledge.
var excludedFiles = map[string]bool{
	"buildblock.yaml":  true,
	"buildblock.yml":   true,
	".buildblock.yaml": true,
	".buildblock.yml":  true,
}

// Chunk is one retrieved code snippet tagged with its origin.
type Chunk struct {
	Content         string
	SourcePath      string
	Collection      string
	SimilarityScore *float64
}

// Searcher is the retrieval interface consumed by the orchestrator.
type Searcher interface {
	Search(ctx context.Context, q Query) []Chunk
}

// Query describes one multi-collection retrieval pass.
type Query struct {
	// Codebase is the base collection name.
	Codebase string

	// Text is the similarity search query.
	Text string

	// Count is how many results to request per collection.
	Count int

	// Suffixes are appended to Codebase to form collection names; an
	// empty suffix means the main collection.
	Suffixes []string
}

// Config configures the client.
type Config struct {
	// BaseURL is the search endpoint, e.g. "http://search:5000/vector-search".
	BaseURL string
	Timeout time.Duration
}

// Client calls the vector search service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger
	errs       *errlog.Collector
}

// NewClient creates a retrieval client. errs may be nil when no error
// collection is wanted.
func NewClient(cfg Config, log *logging.Logger, errs *errlog.Collector) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vector search base URL required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logging.NewNop()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("retrieval"),
		errs:       errs,
	}, nil
}

// searchRequest is the wire payload for one collection.
type searchRequest struct {
	Codebase           string `json:"codebase"`
	Query              string `json:"query"`
	VectorResultsCount int    `json:"vector_results_count"`
}

// searchResponse is the service's reply.
type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	PageContent     string         `json:"page_content"`
	Metadata        resultMetadata `json:"metadata"`
	SimilarityScore *float64       `json:"similarity_score"`
}

type resultMetadata struct {
	Source string   `json:"source"`
	Score  *float64 `json:"score"`
}

// Search runs the query against every collection suffix, merges results,
// sorts by similarity score when scores are present, and drops duplicate
// and noise chunks. It always returns a (possibly empty) slice.
func (c *Client) Search(ctx context.Context, q Query) []Chunk {
	suffixes := q.Suffixes
	if len(suffixes) == 0 {
		suffixes = []string{""}
	}

	var merged []Chunk
	for _, suffix := range suffixes {
		collection := q.Codebase + suffix
		chunks := c.searchCollection(ctx, collection, q)
		c.log.Debug(ctx, "collection searched",
			zap.String("collection", collection),
			zap.Int("results", len(chunks)),
		)
		merged = append(merged, chunks...)
	}

	sortByScore(merged)
	return dedupeChunks(merged)
}

// searchCollection queries one collection. Every failure mode (transport
// error, non-200, malformed body) yields zero results and a log entry.
func (c *Client) searchCollection(ctx context.Context, collection string, q Query) []Chunk {
	payload, err := json.Marshal(searchRequest{
		Codebase:           collection,
		Query:              q.Text,
		VectorResultsCount: q.Count,
	})
	if err != nil {
		return nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.recordFailure(ctx, collection, q.Text, 0, err.Error(), "vector_connection_error")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure(ctx, collection, q.Text, resp.StatusCode, err.Error(), "vector_read_error")
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		c.recordFailure(ctx, collection, q.Text, resp.StatusCode, string(body),
			fmt.Sprintf("vector_search_%d", resp.StatusCode))
		return nil
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.recordFailure(ctx, collection, q.Text, resp.StatusCode, err.Error(), "vector_parse_error")
		return nil
	}

	chunks := make([]Chunk, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if isExcludedFile(r.Metadata.Source) {
			continue
		}
		score := r.SimilarityScore
		if score == nil {
			score = r.Metadata.Score
		}
		chunks = append(chunks, Chunk{
			Content:         r.PageContent,
			SourcePath:      r.Metadata.Source,
			Collection:      collection,
			SimilarityScore: score,
		})
	}
	return chunks
}

func (c *Client) recordFailure(ctx context.Context, collection, query string, status int, response, errType string) {
	c.log.Warn(ctx, "vector search failed",
		zap.String("collection", collection),
		zap.Int("status", status),
		zap.String("error_type", errType),
	)
	if c.errs != nil {
		c.errs.Append(errlog.Record{
			ErrorType:    errType,
			StatusCode:   status,
			ResponseText: response,
			FileSource:   "Codebase: " + collection,
			URLAttempted: c.baseURL,
			UserPrompt:   "Query: " + query,
		})
	}
}

// sortByScore orders chunks by descending similarity score when at least
// one chunk carries a score. Chunks without scores keep their relative
// retrieval order at the end.
func sortByScore(chunks []Chunk) {
	scored := false
	for _, ch := range chunks {
		if ch.SimilarityScore != nil {
			scored = true
			break
		}
	}
	if !scored {
		return
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		si, sj := chunks[i].SimilarityScore, chunks[j].SimilarityScore
		if si == nil {
			return false
		}
		if sj == nil {
			return true
		}
		return *si > *sj
	})
}

// dedupeChunks removes chunks whose leading content matches one already
// seen and drops near-empty chunks.
func dedupeChunks(chunks []Chunk) []Chunk {
	seen := make(map[string]bool, len(chunks))
	out := make([]Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if len(strings.TrimSpace(ch.Content)) <= minChunkContent {
			continue
		}
		fp := ch.Content
		if len(fp) > fingerprintLen {
			fp = fp[:fingerprintLen]
		}
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, ch)
	}
	return out
}

func isExcludedFile(source string) bool {
	return excludedFiles[strings.ToLower(path.Base(source))]
}

var _ Searcher = (*Client)(nil)
