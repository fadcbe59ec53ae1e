// Package functions calls the remote reconciliation functions over HTTP.
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 512
)

// Request is the body every reconciliation function accepts. Dates are YYYY-MM-DD.
type Request struct {
	FromDate     string   `json:"from_date"`
	ToDate       string   `json:"to_date"`
	DryRun       bool     `json:"dry_run"`
	SelectedUIDs []string `json:"selected_uids,omitempty"`
	BatchID      string   `json:"batch_id,omitempty"`
}

// Response is the common reply envelope.
type Response struct {
	Success bool            `json:"success"`
	Stats   json.RawMessage `json:"stats,omitempty"`
	Changes json.RawMessage `json:"changes,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// TransportError covers failures where the call may not have reached the
// function or the platform answered 429/5xx. These are retried.
type TransportError struct {
	Function   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("function %s: http %d: %v", e.Function, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("function %s: %v", e.Function, e.Err)
}

func (e *TransportError) Unwrap() error   { return e.Err }
func (e *TransportError) Transient() bool { return true }

// ApplicationError is a reply with success=false or a 4xx status. Never retried.
type ApplicationError struct {
	Function   string
	StatusCode int
	Message    string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("function %s rejected request: %s", e.Function, e.Message)
}

func (e *ApplicationError) Transient() bool { return false }

// Client invokes named functions at BaseURL.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client. A nil httpClient gets a default with a timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// Invoke performs a single call. Callers wrap it in a retry policy.
func (c *Client) Invoke(ctx context.Context, function string, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+function, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, &TransportError{Function: function, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &TransportError{Function: function, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Response{}, &TransportError{Function: function, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", truncate(respBody))}
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		if resp.StatusCode >= 400 {
			return Response{}, &ApplicationError{Function: function, StatusCode: resp.StatusCode, Message: truncate(respBody)}
		}
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return out, &ApplicationError{Function: function, StatusCode: resp.StatusCode, Message: msg}
	}
	return out, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
