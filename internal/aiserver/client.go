package aiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// AgentUsage is one sub-agent's reported model usage for a processed
// document.
type AgentUsage struct {
	Agent        string `json:"agent"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	ProcessingMS int64  `json:"processingMs"`
}

// ProcessRequest carries one document's extracted text to the AI server.
type ProcessRequest struct {
	DealID       string `json:"dealId"`
	DocumentID   string `json:"documentId"`
	JobType      string `json:"jobType"`
	FileName     string `json:"fileName"`
	DocumentText string `json:"documentText"`
}

// ProcessResult is the analysis returned by the AI server.
type ProcessResult struct {
	Result map[string]any `json:"result"`
	Agents []AgentUsage   `json:"agents"`
}

// Client talks to the external AI analysis server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Health polls the server's health endpoint until it answers or the attempts
// run out.
func (c *Client) Health(ctx context.Context) error {
	pinger := &http.Client{Timeout: 2 * time.Second}
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
			if err != nil {
				return err
			}
			resp, err := pinger.Do(req)
			if err != nil {
				return err
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(time.Second),
	)
}

// ProcessDocument submits a document for multi-agent analysis and returns the
// raw result map plus per-agent usage. Error text is passed through verbatim
// so callers can classify it.
func (c *Client) ProcessDocument(ctx context.Context, req ProcessRequest) (ProcessResult, error) {
	var out ProcessResult
	err := c.postJSON(ctx, "/api/process", req, &out)
	if err != nil {
		return ProcessResult{}, err
	}
	if out.Result == nil {
		return ProcessResult{}, fmt.Errorf("parse error: AI server returned no result")
	}
	return out, nil
}

// GenerateMemo asks the server to draft an investment memo for the deal.
func (c *Client) GenerateMemo(ctx context.Context, dealID string) (map[string]any, error) {
	var out struct {
		Memo map[string]any `json:"memo"`
	}
	payload := map[string]string{"dealId": dealID}
	if err := c.postJSON(ctx, "/api/memo", payload, &out); err != nil {
		return nil, err
	}
	return out.Memo, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("fetch %s: read: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 500 {
			msg = msg[:500]
		}
		return fmt.Errorf("AI server returned %d: %s", resp.StatusCode, msg)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse AI server response: %w", err)
	}
	return nil
}
