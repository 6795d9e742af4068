package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/commercekit/files-proxy/auth"
	"github.com/commercekit/files-proxy/instrumentation"
)

const (
	// DefaultAPIVersion is the Files API version segment.
	DefaultAPIVersion = "v2"

	// defaultRequestTimeout bounds upstream calls when no custom HTTP
	// client is supplied.
	defaultRequestTimeout = 30 * time.Second

	// maxResponseBodySize caps buffered JSON response bodies. Downloads
	// stream and are not subject to this limit.
	maxResponseBodySize = 16 * 1024 * 1024
)

// Config holds the configuration for an upstream client.
type Config struct {
	// BaseURL is the platform base URL, e.g. https://euwest.api.elasticpath.com.
	BaseURL string

	// APIVersion is the version path segment. Defaults to "v2".
	APIVersion string

	// HTTPClient performs the calls. Defaults to a client with a 30s
	// timeout when nil.
	HTTPClient *http.Client

	// Logger for structured logging. Defaults to slog.Default when nil.
	Logger *slog.Logger

	// Instrumentation records upstream call metrics. Optional.
	Instrumentation *instrumentation.Instrumentation
}

// Client issues calls against the Files API. Safe for concurrent use; it
// holds no per-request state.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
	inst       *instrumentation.Instrumentation
}

// Response is the tagged result of a successful upstream call.
type Response struct {
	// StatusCode is the upstream HTTP status.
	StatusCode int

	// JSON is the response body for JSON responses. Nil when NoContent.
	JSON json.RawMessage

	// NoContent is true for 204 responses, which carry no body.
	NoContent bool

	// Header holds the upstream response headers.
	Header http.Header
}

// FileUpload describes one file part of a multipart create request.
type FileUpload struct {
	// FieldName is the multipart field name, normally "file".
	FieldName string

	// FileName is the original file name.
	FileName string

	// ContentType is the part's MIME type.
	ContentType string

	// Content supplies the file bytes.
	Content io.Reader
}

// DownloadResult is a streamed file download. The caller owns Body and must
// close it.
type DownloadResult struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	Header        http.Header
}

// NewClient creates an upstream client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiVersion: apiVersion,
		httpClient: httpClient,
		logger:     logger,
		inst:       cfg.Instrumentation,
	}, nil
}

// BaseURL returns the configured platform base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// buildURL joins base URL, version segment, path, and query parameters.
func (c *Client) buildURL(path string, params url.Values) string {
	u := c.baseURL + "/" + c.apiVersion + "/" + strings.TrimPrefix(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Get performs a GET against the given API path.
func (c *Client) Get(ctx context.Context, path string, params url.Values, token string) (*Response, error) {
	return c.doJSON(ctx, http.MethodGet, path, params, nil, token)
}

// Post performs a JSON POST against the given API path.
func (c *Client) Post(ctx context.Context, path string, body any, token string) (*Response, error) {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, token)
}

// Delete performs a DELETE against the given API path. A 204 response
// yields a NoContent result, not a JSON parse error.
func (c *Client) Delete(ctx context.Context, path string, token string) (*Response, error) {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, token)
}

// doJSON builds and executes a JSON request.
func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, body any, token string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path, params), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.execute(ctx, req)
}

// Upload performs a multipart POST. Content-Type is left to the multipart
// writer so the transport sets the boundary.
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, file *FileUpload, token string) (*Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %q: %w", name, err)
		}
	}

	if file != nil {
		fieldName := file.FieldName
		if fieldName == "" {
			fieldName = "file"
		}
		part, err := writer.CreateFormFile(fieldName, file.FileName)
		if err != nil {
			return nil, fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, fmt.Errorf("failed to copy file content: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path, nil), &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.execute(ctx, req)
}

// execute runs the request and shapes the response.
func (c *Client) execute(ctx context.Context, req *http.Request) (*Response, error) {
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.inst.RecordUpstreamCall(ctx, req.Method, 0, time.Since(start))
		c.logger.Error("Upstream transport failure",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"error", err)
		return nil, &Error{
			Body: synthesizeErrorBody(0, err.Error()),
			Err:  err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	c.inst.RecordUpstreamCall(ctx, req.Method, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
		body := json.RawMessage(raw)
		if len(bytes.TrimSpace(raw)) == 0 || !json.Valid(raw) {
			body = synthesizeErrorBody(resp.StatusCode, "")
		}
		c.logger.Warn("Upstream returned error status",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"status", resp.StatusCode)
		return nil, &Error{StatusCode: resp.StatusCode, Body: body}
	}

	if resp.StatusCode == http.StatusNoContent {
		return &Response{
			StatusCode: resp.StatusCode,
			NoContent:  true,
			Header:     resp.Header,
		}, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Body:       synthesizeErrorBody(resp.StatusCode, err.Error()),
			Err:        err,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		JSON:       raw,
		Header:     resp.Header,
	}, nil
}

// ValidateToken probes whether the upstream accepts the given token by
// listing a single file. Any non-2xx or network failure is interpreted as
// an invalid token.
func (c *Client) ValidateToken(ctx context.Context, token string) error {
	params := url.Values{}
	params.Set("page[limit]", "1")

	if _, err := c.Get(ctx, "files", params, token); err != nil {
		c.logger.Debug("Token validation probe failed", "error", err)
		return auth.ErrInvalidToken
	}
	return nil
}

// Download fetches a file's download link with the same bearer token,
// streaming the body back to the caller.
func (c *Client) Download(ctx context.Context, downloadURL, token string) (*DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.inst.RecordUpstreamCall(ctx, http.MethodGet, 0, time.Since(start))
		return nil, &Error{
			Body: synthesizeErrorBody(0, err.Error()),
			Err:  err,
		}
	}

	c.inst.RecordUpstreamCall(ctx, http.MethodGet, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
		_ = resp.Body.Close()
		body := json.RawMessage(raw)
		if len(bytes.TrimSpace(raw)) == 0 || !json.Valid(raw) {
			body = synthesizeErrorBody(resp.StatusCode, "")
		}
		return nil, &Error{StatusCode: resp.StatusCode, Body: body}
	}

	return &DownloadResult{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Header:        resp.Header,
	}, nil
}
