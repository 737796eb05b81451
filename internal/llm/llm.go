// Package llm implements the LLM Gateway (C1): a single Complete operation
// every stage (C6) calls through, grounded on the teacher's inference
// client but trimmed to the one shape this pipeline needs — chat-style
// text completion, no embeddings/scoring/image/video.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Error distinguishes failures the caller may retry (network blips,
// 5xx, 429) from ones it should not (4xx other than 429, malformed
// response) — stages use Transient to decide whether their single
// in-stage retry (spec.md §4.6) is worth attempting.
type Error struct {
	StatusCode int
	Transient  bool
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm gateway error: status=%d message=%s", e.StatusCode, e.Message)
}

// Gateway is the contract the orchestrator and every stage depend on.
type Gateway interface {
	Complete(ctx context.Context, system, user string, opts ...CompleteOption) (string, error)
}

// completeOptions carries the optional completion-endpoint toggles from
// spec.md §6 ("EXTERNAL INTERFACES"): enable_sequential_thinking and
// use_tool_search. Neither changes this gateway's request/response shape;
// both are forwarded as extra fields a compliant backend may act on, and a
// backend that ignores them still returns a correct completion.
type completeOptions struct {
	enableSequentialThinking bool
	useToolSearch            bool
}

type CompleteOption func(*completeOptions)

// EnableSequentialThinking asks the backend to use extended/sequential
// reasoning before answering, if it supports it.
func EnableSequentialThinking(v bool) CompleteOption {
	return func(o *completeOptions) { o.enableSequentialThinking = v }
}

// UseToolSearch asks the backend to consult its tool-search capability
// while completing, if it supports it.
func UseToolSearch(v bool) CompleteOption {
	return func(o *completeOptions) { o.useToolSearch = v }
}

type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("llm: baseURL required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("llm: model required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      strings.TrimSpace(opts.Model),
		timeout:    timeout,
		maxRetries: maxRetries,
		httpClient: hc,
	}, nil
}

type completionRequest struct {
	Model                    string    `json:"model"`
	Messages                 []message `json:"messages"`
	Temperature              float64   `json:"temperature"`
	EnableSequentialThinking bool      `json:"enable_sequential_thinking,omitempty"`
	UseToolSearch            bool      `json:"use_tool_search,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	OutputText string `json:"output_text"`
}

// Complete sends one system/user completion request and returns the raw
// text. Every stage prompt is built by the caller; this gateway knows
// nothing about proposals, best-practice records, or stages.
func (c *Client) Complete(ctx context.Context, system, user string, opts ...CompleteOption) (string, error) {
	var o completeOptions
	for _, opt := range opts {
		opt(&o)
	}

	req := completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: strings.TrimSpace(system)},
			{Role: "user", Content: user},
		},
		Temperature:              0.2,
		EnableSequentialThinking: o.enableSequentialThinking,
		UseToolSearch:            o.useToolSearch,
	}

	var resp completionResponse
	if err := c.doJSON(ctx, req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.OutputText) == "" {
		return "", &Error{Transient: false, Message: "empty output_text"}
	}
	return resp.OutputText, nil
}

func (c *Client) doJSON(ctx context.Context, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx2.Err() != nil {
			return ctx2.Err()
		}

		req, err := http.NewRequestWithContext(ctx2, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(buf.Bytes()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &Error{Transient: true, Message: err.Error()}
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			if readErr != nil {
				return fmt.Errorf("read response: %w", readErr)
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if err := json.Unmarshal(raw, out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
				return nil
			}
			lastErr = &Error{
				StatusCode: resp.StatusCode,
				Transient:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
				Message:    strings.TrimSpace(string(raw)),
			}
		}

		var transient bool
		var apiErr *Error
		if errors.As(lastErr, &apiErr) {
			transient = apiErr.Transient
		}
		if !transient || attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx2.Done():
			return ctx2.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return lastErr
}
