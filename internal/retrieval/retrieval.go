// Package retrieval implements the Retrieval Gateway (C2): looks up
// best-practice records for a proposal's domain/division, falling back to
// a fixed stub list on failure so stage 1 can always produce a result
// (spec.md §4.4, stage 1).
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
)

// Gateway is the contract stage 1 depends on.
type Gateway interface {
	Retrieve(ctx context.Context, query Query) ([]domain.BestPracticeRecord, error)
}

// MethodRRF, MethodBM25, MethodKNN, and MethodCC are the ranking methods
// spec.md §6 ("EXTERNAL INTERFACES") names for the retrieve operation.
// MethodRRF is the default.
const (
	MethodRRF  = "rrf"
	MethodBM25 = "bm25"
	MethodKNN  = "knn"
	MethodCC   = "cc"
)

// Query carries the inputs spec.md §4.4 names for stage 1's retrieval call,
// plus the ranking Method spec.md §6 adds to the contract. An empty Method
// defaults to MethodRRF.
type Query struct {
	Domain          string
	Division        string
	ProposalContent string
	K               int
	Method          string
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("retrieval: baseURL required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: baseURL, timeout: timeout, httpClient: hc}, nil
}

type searchRequest struct {
	Domain          string `json:"domain"`
	Division        string `json:"division"`
	ProposalContent string `json:"proposal_content"`
	K               int    `json:"k"`
	Method          string `json:"method"`
}

type searchResponse struct {
	Records []domain.BestPracticeRecord `json:"records"`
}

func (c *Client) Retrieve(ctx context.Context, q Query) ([]domain.BestPracticeRecord, error) {
	k := q.K
	if k <= 0 {
		k = 5
	}
	method := strings.TrimSpace(q.Method)
	if method == "" {
		method = MethodRRF
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(searchRequest{
		Domain:          q.Domain,
		Division:        q.Division,
		ProposalContent: q.ProposalContent,
		K:               k,
		Method:          method,
	}); err != nil {
		return nil, fmt.Errorf("encode retrieval request: %w", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx2, http.MethodPost, c.baseURL+"/v1/best-practices/search", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read retrieval response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("retrieval gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out searchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode retrieval response: %w", err)
	}
	if len(out.Records) > k {
		out.Records = out.Records[:k]
	}
	return out.Records, nil
}

// Stub is the fixed degraded-mode record set substituted when the gateway
// is unreachable, so the pipeline can proceed rather than fail the job at
// stage 1 (spec.md §4.4, stage 1).
func Stub() []domain.BestPracticeRecord {
	return []domain.BestPracticeRecord{
		{
			Title:          "Generic Process Modernization",
			TechType:       "general",
			BusinessDomain: "general",
			Division:       "general",
			ProblemAsWas:   "Manual, inconsistent execution of a recurring business process.",
			SolutionToBe:   "Standardized, partially automated workflow with clear ownership.",
			Summary:        "A representative modernization effort used here because the best-practice catalog was unreachable.",
		},
	}
}
