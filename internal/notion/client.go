package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL  = "https://api.notion.com/v1"
	DefaultVersion  = "2022-06-28"
	DefaultPageSize = 100

	// DefaultRequestsPerSecond matches the average rate Notion allows per
	// integration.
	DefaultRequestsPerSecond = 3
)

// Options tunes the client. Zero values fall back to the defaults above.
type Options struct {
	BaseURL           string
	Version           string
	PageSize          int
	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Client talks to the Notion REST API. It implements both the page listing
// and the page content collaborators of a backup run.
type Client struct {
	baseURL    string
	token      string
	version    string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Notion client authenticated with an integration token.
func NewClient(token string, opts Options) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    token,
		version:  opts.Version,
		pageSize: opts.PageSize,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.version == "" {
		c.version = DefaultVersion
	}
	if c.pageSize <= 0 || c.pageSize > DefaultPageSize {
		c.pageSize = DefaultPageSize
	}

	c.httpClient = opts.HTTPClient
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}

	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return c
}

// APIError is the error body Notion returns with non-2xx responses.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("notion: status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// listResponse is Notion's paginated list envelope.
type listResponse struct {
	Object     string            `json:"object"`
	Results    []json.RawMessage `json:"results"`
	NextCursor *string           `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

func (r *listResponse) cursor() string {
	if r.NextCursor == nil {
		return ""
	}
	return *r.NextCursor
}

// SearchResult is one page of the page search.
type SearchResult struct {
	Pages      []Page
	NextCursor string
	HasMore    bool
}

type searchRequest struct {
	Filter      searchFilter `json:"filter"`
	StartCursor string       `json:"start_cursor,omitempty"`
	PageSize    int          `json:"page_size,omitempty"`
}

type searchFilter struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// SearchPages fetches one page of results for the "object = page" search,
// starting at cursor. An empty cursor starts from the beginning.
func (c *Client) SearchPages(ctx context.Context, cursor string) (*SearchResult, error) {
	body, err := json.Marshal(searchRequest{
		Filter:      searchFilter{Property: "object", Value: "page"},
		StartCursor: cursor,
		PageSize:    c.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search: %w", err)
	}

	var resp listResponse
	if err := c.do(ctx, http.MethodPost, "/search", bytes.NewReader(body), &resp); err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}

	result := &SearchResult{
		NextCursor: resp.cursor(),
		HasMore:    resp.HasMore,
	}
	for _, raw := range resp.Results {
		page, err := ParsePage(raw)
		if err != nil {
			log.Printf("[Notion] Skipping unreadable search result: %v", err)
			continue
		}
		result.Pages = append(result.Pages, page)
	}
	return result, nil
}

// ListAllPages drains the page search until Notion reports no more results.
func (c *Client) ListAllPages(ctx context.Context) ([]Page, error) {
	var pages []Page
	cursor := ""
	for {
		result, err := c.SearchPages(ctx, cursor)
		if err != nil {
			return nil, err
		}
		pages = append(pages, result.Pages...)

		if !result.HasMore || result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}
	return pages, nil
}

// BlockList is the block-children payload of a page, kept in Notion's own
// list shape so it is written out untouched.
type BlockList struct {
	Object     string            `json:"object"`
	Results    []json.RawMessage `json:"results"`
	NextCursor *string           `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
	Type       string            `json:"type,omitempty"`
	Block      json.RawMessage   `json:"block,omitempty"`
}

// PageContent returns every child block of a page. Multiple result pages are
// merged into a single list.
func (c *Client) PageContent(ctx context.Context, pageID string) (any, error) {
	merged := &BlockList{Object: "list", Results: []json.RawMessage{}}
	cursor := ""
	for {
		query := url.Values{}
		query.Set("page_size", fmt.Sprintf("%d", c.pageSize))
		if cursor != "" {
			query.Set("start_cursor", cursor)
		}

		var resp BlockList
		path := "/blocks/" + url.PathEscape(pageID) + "/children?" + query.Encode()
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("list blocks for %s: %w", pageID, err)
		}

		merged.Results = append(merged.Results, resp.Results...)
		if resp.Type != "" {
			merged.Type = resp.Type
			merged.Block = resp.Block
		}

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		cursor = *resp.NextCursor
	}
	return merged, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
