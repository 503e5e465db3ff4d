package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout bounds each individual call to the preview backend.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 1 << 20

// TransportError reports a failed call to the preview backend. Status is
// the HTTP status code, zero when the request never produced a response.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("preview %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client calls the preview backend's internal API. Every request is rate
// limited and carries the HMAC headers produced by Signer.
type Client struct {
	baseURL string
	http    *http.Client
	signer  *Signer
	limiter *rate.Limiter
	now     func() time.Time
}

// ClientOption adjusts a Client at construction.
type ClientOption func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRateLimit overrides the outbound request rate and burst.
func WithRateLimit(rps rate.Limit, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rps, burst) }
}

// WithClientClock injects the timestamp source. Used by tests.
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// NewClient builds a client for the backend at baseURL signing with secret.
func NewClient(baseURL, secret string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("preview: backend URL is empty")
	}
	if secret == "" {
		return nil, errors.New("preview: signing secret is empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		signer:  NewSigner(secret),
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type provisionRequest struct {
	SessionToken string   `json:"sessionToken"`
	Features     []string `json:"features"`
	Tier         string   `json:"tier"`
}

type provisionResponse struct {
	Data struct {
		SchemaName string `json:"schemaName"`
	} `json:"data"`
}

type invalidateRequest struct {
	SessionToken string `json:"sessionToken"`
}

// Provision asks the backend to create an isolated schema for the session
// and returns the schema name it assigned.
func (c *Client) Provision(ctx context.Context, sessionToken string, features []string, tier string) (string, error) {
	if features == nil {
		features = []string{}
	}
	body, err := json.Marshal(provisionRequest{SessionToken: sessionToken, Features: features, Tier: tier})
	if err != nil {
		return "", &TransportError{Op: "provision", Err: fmt.Errorf("encode request: %w", err)}
	}
	respBody, err := c.do(ctx, "provision", http.MethodPost, "/internal/schemas/provision", body)
	if err != nil {
		return "", err
	}
	var out provisionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", &TransportError{Op: "provision", Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Data.SchemaName == "" {
		return "", &TransportError{Op: "provision", Err: errors.New("response missing data.schemaName")}
	}
	return out.Data.SchemaName, nil
}

// DropSchema asks the backend to remove a provisioned schema.
func (c *Client) DropSchema(ctx context.Context, schemaName string) error {
	if schemaName == "" {
		return &TransportError{Op: "drop", Err: errors.New("schema name is empty")}
	}
	_, err := c.do(ctx, "drop", http.MethodDelete, "/internal/schemas/"+url.PathEscape(schemaName), nil)
	return err
}

// Invalidate tells the backend the session is no longer valid.
func (c *Client) Invalidate(ctx context.Context, sessionToken string) error {
	body, err := json.Marshal(invalidateRequest{SessionToken: sessionToken})
	if err != nil {
		return &TransportError{Op: "invalidate", Err: fmt.Errorf("encode request: %w", err)}
	}
	_, err = c.do(ctx, "invalidate", http.MethodPost, "/internal/sessions/invalidate", body)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	timestamp := c.now().UnixMilli()
	signature := c.signer.Sign(method, path, string(body), timestamp)

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderSignature, signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.String()),
		}
	}
	return data, nil
}
