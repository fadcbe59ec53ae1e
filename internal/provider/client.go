// Package provider polls the payment gateway's transaction listing API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/ingest"
	"github.com/vanshika/payrecon/backend/internal/retry"
)

const (
	defaultPageSize = 100
	maxPages        = 1000
	requestTimeout  = 30 * time.Second
)

// StatusError is a non-2xx reply from the listing API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider api: http %d: %s", e.StatusCode, e.Body)
}

// Transient marks 429 and 5xx replies as retryable.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type networkError struct{ err error }

func (e *networkError) Error() string   { return "provider api: " + e.err.Error() }
func (e *networkError) Unwrap() error   { return e.err }
func (e *networkError) Transient() bool { return true }

// Client lists provider transactions for a date range.
type Client struct {
	baseURL  string
	shopID   string
	secret   string
	pageSize int
	parser   *ingest.Parser
	policy   retry.Policy
	sleep    retry.Sleeper
	http     *http.Client
}

// Config configures a Client.
type Config struct {
	BaseURL  string
	ShopID   string
	Secret   string
	PageSize int
	Policy   retry.Policy
}

// NewClient builds a polling client that maps records through parser.
func NewClient(cfg Config, parser *ingest.Parser, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		shopID:   cfg.ShopID,
		secret:   cfg.Secret,
		pageSize: cfg.PageSize,
		parser:   parser,
		policy:   cfg.Policy,
		sleep:    retry.ContextSleep,
		http:     httpClient,
	}
}

type listPage struct {
	Transactions []map[string]any `json:"transactions"`
	Pagination   struct {
		CurrentPage int  `json:"current_page"`
		TotalPages  int  `json:"total_pages"`
		HasNext     bool `json:"has_next"`
	} `json:"pagination"`
}

// Fetch pages through the listing for [from, to) and returns every record with a uid.
func (c *Client) Fetch(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for page := 1; page <= maxPages; page++ {
		var body []byte
		res := retry.Do(ctx, c.policy, c.sleep, func(ctx context.Context, n int) error {
			var err error
			body, err = c.get(ctx, from, to, page)
			return err
		})
		if res.Err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, res.Err)
		}

		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		var p listPage
		if err := decoder.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode page %d: %w", page, err)
		}
		for _, record := range p.Transactions {
			if tx, ok := c.parser.ParseRow(ingest.APIRow(record)); ok {
				out = append(out, tx)
			}
		}

		more := p.Pagination.HasNext || (p.Pagination.TotalPages > 0 && page < p.Pagination.TotalPages)
		if !more || len(p.Transactions) == 0 {
			return out, nil
		}
	}
	return out, fmt.Errorf("listing exceeded %d pages", maxPages)
}

func (c *Client) get(ctx context.Context, from, to time.Time, page int) ([]byte, error) {
	q := url.Values{}
	q.Set("created_at_from", from.UTC().Format(time.RFC3339))
	q.Set("created_at_to", to.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.shopID != "" {
		req.SetBasicAuth(c.shopID, c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &networkError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &networkError{err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(body))
		if len(text) > 256 {
			text = text[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: text}
	}
	return body, nil
}
