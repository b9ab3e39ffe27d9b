package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/claim-assistant/internal/infrastructure/resilience"
)

// Client is a JSON-over-HTTP caller shared by the outbound adapters.
type Client struct {
	service    string
	baseURL    string
	headers    http.Header
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Headers  map[string]string
	Executor *resilience.Executor
}

func New(service, baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	headers := make(http.Header, len(opts.Headers))
	for key, value := range opts.Headers {
		if strings.TrimSpace(value) == "" {
			continue
		}
		headers.Set(key, value)
	}
	return &Client{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    headers,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

// Response carries the parts of a reply adapters need beyond the body.
type Response struct {
	StatusCode int
	Header     http.Header
}

// Do sends payload (when non-nil) as JSON and decodes the reply into out
// (when non-nil). Path may be absolute, in which case the base URL is ignored.
// The operation's kind decides whether the executor retries the call.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, payload, out any, op resilience.Operation) (*Response, error) {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", op.Name, err)
		}
		body = encoded
	}
	return c.exchange(ctx, method, path, query, "application/json", body, out, op)
}

// Upload posts raw bytes with the given content type and decodes a JSON reply.
func (c *Client) Upload(ctx context.Context, path string, query url.Values, contentType string, data []byte, out any, op resilience.Operation) (*Response, error) {
	if data == nil {
		data = []byte{}
	}
	return c.exchange(ctx, http.MethodPost, path, query, contentType, data, out, op)
}

func (c *Client) exchange(ctx context.Context, method, path string, query url.Values, contentType string, body []byte, out any, op resilience.Operation) (*Response, error) {
	if op.Service == "" {
		op.Service = c.service
	}
	var result *Response
	call := func(ctx context.Context) error {
		resp, err := c.send(ctx, method, c.resolve(path, query), contentType, body, out, op.Name)
		if err != nil {
			return err
		}
		result = resp
		return nil
	}

	if err := c.executor.Execute(ctx, op, call, Classify); err != nil {
		return nil, WrapKind(op.Service+" "+op.Name, err)
	}
	return result, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}
	if len(query) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + query.Encode()
}

func (c *Client) send(ctx context.Context, method, target, contentType string, body []byte, out any, operation string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s request: %w", c.service, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, c.statusError(operation, resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone()}, nil
}

func (c *Client) statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Service:    c.service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
