package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/b4/internal/domain"
)

// Response is a completed exchange with a document store. Any status,
// including 4xx and 5xx, is a Response rather than an error.
type Response struct {
	Status int
	Body   []byte
}

// Recorder observes remote call latency
type Recorder interface {
	ObserveCall(store, method string, d time.Duration)
}

// Options configures a Client
type Options struct {
	HTTPClient *http.Client // nil uses a client with the transport defaults
	Logger     *slog.Logger
	Recorder   Recorder
}

// Client talks JSON to one document store database
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
}

// NewClient creates a client for the database at baseURL. name labels
// the store in logs and metrics.
func NewClient(name, baseURL string, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		recorder:   opts.Recorder,
	}
}

// Name returns the store label
func (c *Client) Name() string { return c.name }

// DocURL returns the URL of the document with the given ID
func (c *Client) DocURL(id string) string {
	return c.baseURL + "/" + url.PathEscape(id)
}

// Create POSTs a new document to the database
func (c *Client) Create(ctx context.Context, doc any) (Response, error) {
	return c.Do(ctx, http.MethodPost, c.baseURL, doc)
}

// Get fetches a document by ID
func (c *Client) Get(ctx context.Context, id string) (Response, error) {
	return c.Do(ctx, http.MethodGet, c.DocURL(id), nil)
}

// Put replaces the document with the given ID
func (c *Client) Put(ctx context.Context, id string, doc any) (Response, error) {
	return c.Do(ctx, http.MethodPut, c.DocURL(id), doc)
}

// Do performs one request. A nil payload sends no body. The returned
// error is a *TransportError when the exchange itself failed.
func (c *Client) Do(ctx context.Context, method, reqURL string, payload any) (Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("failed to encode %s payload: %w", method, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, time.Since(start))
		code := classify(err)
		c.logger.Error("docstore request failed", "store", c.name, "method", method, "url", reqURL, "code", code, "error", err)
		return Response{}, &TransportError{Op: method, URL: reqURL, Code: code, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	c.observe(method, elapsed)
	if err != nil {
		code := classify(err)
		c.logger.Error("docstore response read failed", "store", c.name, "method", method, "url", reqURL, "code", code, "error", err)
		return Response{}, &TransportError{Op: method, URL: reqURL, Code: code, Err: err}
	}

	c.logger.Debug("docstore request",
		"store", c.name,
		"method", method,
		"url", reqURL,
		"status", resp.StatusCode,
		"duration", elapsed,
	)

	return Response{Status: resp.StatusCode, Body: data}, nil
}

// Decode parses a response body into v. A body that does not parse is a
// transport-class failure.
func Decode(resp Response, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return &TransportError{
			Op:   "decode",
			Code: CodeBadResponse,
			Err:  fmt.Errorf("%w: %w", domain.ErrMalformed, err),
		}
	}
	return nil
}

func (c *Client) observe(method string, d time.Duration) {
	if c.recorder != nil {
		c.recorder.ObserveCall(c.name, method, d)
	}
}

// CheckJSON reports a body that is not JSON as a transport-class failure,
// so it is never relayed to a client as if it were.
func CheckJSON(resp Response) error {
	if !json.Valid(resp.Body) {
		return &TransportError{
			Op:   "decode",
			Code: CodeBadResponse,
			Err:  fmt.Errorf("%w: status %d body is not JSON", domain.ErrMalformed, resp.Status),
		}
	}
	return nil
}
