package grid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config configures the fusion API client.
type Config struct {
	Token    string        // bearer token for the platform API
	BaseURL  string        // e.g. https://base.example.com/fusion/v1
	Timeout  time.Duration // per-request timeout
	PageSize int           // records per page, capped by the platform at 1000
}

// DefaultConfig returns sensible defaults for everything but the token.
func DefaultConfig(token string) Config {
	return Config{
		Token:    token,
		BaseURL:  "https://api.vika.cn/fusion/v1",
		Timeout:  30 * time.Second,
		PageSize: 100,
	}
}

// Client talks to the hosted base platform. Safe for concurrent use.
type Client struct {
	token      string
	baseURL    string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("host API error (status %d): %s", e.Status, e.Message)
}

// NewClient creates a fusion API client. A nil logger disables logging.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Client{
		token:    cfg.Token,
		baseURL:  cfg.BaseURL,
		pageSize: cfg.PageSize,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		// The platform allows 5 requests per second per token.
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		logger:  logger,
	}
}

// envelope is the fusion API response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fieldData struct {
	Fields []Field `json:"fields"`
}

type recordPage struct {
	Records   []Record `json:"records"`
	PageToken string   `json:"pageToken"`
}

// Fields returns the datasheet's field metadata in view order. Order is
// assigned from list position, which is the ordering the comparator's
// baseline policy depends on.
func (c *Client) Fields(ctx context.Context, datasheetID string) ([]Field, error) {
	endpoint := fmt.Sprintf("%s/datasheets/%s/fields", c.baseURL, url.PathEscape(datasheetID))

	var data fieldData
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &data); err != nil {
		return nil, fmt.Errorf("fetch fields for %s: %w", datasheetID, err)
	}
	for i := range data.Fields {
		data.Fields[i].Order = i
	}
	c.logger.Debug("fetched fields",
		zap.String("datasheet", datasheetID),
		zap.Int("count", len(data.Fields)))
	return data.Fields, nil
}

// Records fetches every record of the datasheet, folding the paginated
// responses into one slice in page order. The continuation token is opaque;
// an absent token ends the fold.
func (c *Client) Records(ctx context.Context, datasheetID string) ([]Record, error) {
	base := fmt.Sprintf("%s/datasheets/%s/records", c.baseURL, url.PathEscape(datasheetID))

	var all []Record
	pageToken := ""
	for {
		endpoint := fmt.Sprintf("%s?pageSize=%d", base, c.pageSize)
		if pageToken != "" {
			endpoint += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var page recordPage
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, fmt.Errorf("fetch records for %s: %w", datasheetID, err)
		}
		all = append(all, page.Records...)

		if page.PageToken == "" {
			break
		}
		pageToken = page.PageToken
	}
	c.logger.Debug("fetched records",
		zap.String("datasheet", datasheetID),
		zap.Int("count", len(all)))
	return all, nil
}

type recordUpdate struct {
	RecordID string               `json:"recordId"`
	Cells    map[string][]Segment `json:"fields"`
}

type updateRequest struct {
	Records []recordUpdate `json:"records"`
}

// UpdateRecord overwrites the given cells of one record. Cells not present
// in the map are left untouched by the platform.
func (c *Client) UpdateRecord(ctx context.Context, datasheetID, recordID string, cells map[string][]Segment) error {
	endpoint := fmt.Sprintf("%s/datasheets/%s/records", c.baseURL, url.PathEscape(datasheetID))

	body := updateRequest{Records: []recordUpdate{{RecordID: recordID, Cells: cells}}}
	if err := c.do(ctx, http.MethodPatch, endpoint, body, nil); err != nil {
		return fmt.Errorf("update record %s: %w", recordID, err)
	}
	c.logger.Debug("updated record",
		zap.String("datasheet", datasheetID),
		zap.String("record", recordID),
		zap.Int("fields", len(cells)))
	return nil
}

// do performs one API call with rate limiting and a retry loop for 429 and
// 5xx responses. out, when non-nil, receives the envelope's data payload.
func (c *Client) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &APIError{Status: resp.StatusCode, Message: string(respBody)}
			c.logger.Debug("retrying host call",
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return &APIError{Status: resp.StatusCode, Message: string(respBody)}
		}

		var env envelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if !env.Success {
			return &APIError{Status: env.Code, Message: env.Message}
		}
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("host call failed after %d attempts: %w", maxRetries+1, lastErr)
}
