// Package mcptool exposes the files proxy's operations as Model Context
// Protocol tools over stdio. Every tool accepts an optional token argument
// that takes precedence over ambient resolution, mirroring the HTTP
// surface's forwarded-token semantics.
package mcptool

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/commercekit/files-proxy/auth"
	"github.com/commercekit/files-proxy/upstream"
)

// serverName identifies the MCP server to clients.
const serverName = "files-proxy"

// maxDownloadSize caps file content returned inline through a tool result.
const maxDownloadSize = 32 * 1024 * 1024

// Config holds the dependencies for the MCP tool server.
type Config struct {
	// Resolver determines the effective token per tool call.
	Resolver *auth.Resolver

	// Issuer backs the get_client_credentials_token tool.
	Issuer *auth.Issuer

	// Upstream issues the proxied API calls.
	Upstream *upstream.Client

	// Version is reported to MCP clients.
	Version string

	// Logger for structured logging. Defaults to slog.Default when nil.
	Logger *slog.Logger
}

// Server is the MCP tool server.
type Server struct {
	resolver *auth.Resolver
	issuer   *auth.Issuer
	upstream *upstream.Client
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// New creates the MCP tool server and registers its tools.
func New(cfg Config) (*Server, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Issuer == nil {
		return nil, fmt.Errorf("issuer is required")
	}
	if cfg.Upstream == nil {
		return nil, fmt.Errorf("upstream client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		resolver: cfg.Resolver,
		issuer:   cfg.Issuer,
		upstream: cfg.Upstream,
		logger:   logger,
		mcp: server.NewMCPServer(serverName, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s, nil
}

// ServeStdio runs the server over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	tokenArg := mcp.WithString("token",
		mcp.Description("Optional bearer token; takes precedence over the service token"))

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List files with optional filtering and pagination"),
		mcp.WithNumber("page_limit", mcp.Description("Number of items per page (1-100)")),
		mcp.WithNumber("page_offset", mcp.Description("Page offset")),
		mcp.WithString("filter_name", mcp.Description("Filter by file name")),
		mcp.WithNumber("filter_width", mcp.Description("Filter by image width")),
		mcp.WithNumber("filter_height", mcp.Description("Filter by image height")),
		mcp.WithNumber("filter_file_size", mcp.Description("Filter by file size in bytes")),
		tokenArg,
	), s.handleListFiles)

	s.mcp.AddTool(mcp.NewTool("get_file",
		mcp.WithDescription("Get a file resource by ID"),
		mcp.WithString("file_id", mcp.Required(), mcp.Description("The file ID")),
		tokenArg,
	), s.handleGetFile)

	s.mcp.AddTool(mcp.NewTool("create_file",
		mcp.WithDescription("Create a file from base64 content or from a source URL"),
		mcp.WithString("file_name", mcp.Description("File name for uploaded content")),
		mcp.WithString("file_content", mcp.Description("Base64-encoded file content")),
		mcp.WithString("content_type", mcp.Description("MIME type of the uploaded content")),
		mcp.WithString("file_url", mcp.Description("Source URL; alternative to file_content")),
		mcp.WithBoolean("public_status", mcp.Description("Whether the file is public (default true)")),
		tokenArg,
	), s.handleCreateFile)

	s.mcp.AddTool(mcp.NewTool("delete_file",
		mcp.WithDescription("Delete a file by ID"),
		mcp.WithString("file_id", mcp.Required(), mcp.Description("The file ID")),
		tokenArg,
	), s.handleDeleteFile)

	s.mcp.AddTool(mcp.NewTool("download_file",
		mcp.WithDescription("Download a file's content, returned base64-encoded"),
		mcp.WithString("file_id", mcp.Required(), mcp.Description("The file ID")),
		tokenArg,
	), s.handleDownloadFile)

	s.mcp.AddTool(mcp.NewTool("get_client_credentials_token",
		mcp.WithDescription("Get a service access token via the client-credentials flow"),
		mcp.WithBoolean("force_refresh", mcp.Description("Exchange even if a valid token is cached")),
	), s.handleGetToken)
}

func (s *Server) handleListFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := url.Values{}
	params.Set("page[limit]", strconv.Itoa(clampLimit(req.GetInt("page_limit", 10))))
	params.Set("page[offset]", strconv.Itoa(max(req.GetInt("page_offset", 0), 0)))

	if name := req.GetString("filter_name", ""); name != "" {
		params.Set("filter[name]", name)
	}
	for arg, key := range map[string]string{
		"filter_width":     "filter[width]",
		"filter_height":    "filter[height]",
		"filter_file_size": "filter[file_size]",
	} {
		if value := req.GetInt(arg, 0); value > 0 {
			params.Set(key, strconv.Itoa(value))
		}
	}

	token, err := s.resolver.Resolve(ctx, req.GetString("token", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.upstream.Get(ctx, "files", params, token)
	if err != nil {
		return upstreamToolError(err), nil
	}
	return mcp.NewToolResultText(string(resp.JSON)), nil
}

func (s *Server) handleGetFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileID, err := req.RequireString("file_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	token, err := s.resolver.Resolve(ctx, req.GetString("token", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.upstream.Get(ctx, "files/"+fileID, nil, token)
	if err != nil {
		return upstreamToolError(err), nil
	}
	return mcp.NewToolResultText(string(resp.JSON)), nil
}

func (s *Server) handleCreateFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content := req.GetString("file_content", "")
	fileURL := req.GetString("file_url", "")

	switch {
	case content == "" && fileURL == "":
		return mcp.NewToolResultError("either file_content or file_url must be provided"), nil
	case content != "" && fileURL != "":
		return mcp.NewToolResultError("provide either file_content or file_url, not both"), nil
	}

	fields := map[string]string{
		"public_status": strconv.FormatBool(req.GetBool("public_status", true)),
	}
	if name := req.GetString("file_name", ""); name != "" {
		fields["file_name"] = name
	}
	if fileURL != "" {
		fields["file_url"] = fileURL
	}

	var upload *upstream.FileUpload
	if content != "" {
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("file_content is not valid base64: %v", err)), nil
		}
		contentType := req.GetString("content_type", "application/octet-stream")
		upload = &upstream.FileUpload{
			FieldName:   "file",
			FileName:    req.GetString("file_name", "upload"),
			ContentType: contentType,
			Content:     bytes.NewReader(decoded),
		}
	}

	token, err := s.resolver.Resolve(ctx, req.GetString("token", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.upstream.Upload(ctx, "files", fields, upload, token)
	if err != nil {
		return upstreamToolError(err), nil
	}
	return mcp.NewToolResultText(string(resp.JSON)), nil
}

func (s *Server) handleDeleteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileID, err := req.RequireString("file_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	token, err := s.resolver.Resolve(ctx, req.GetString("token", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.upstream.Delete(ctx, "files/"+fileID, token)
	if err != nil {
		return upstreamToolError(err), nil
	}

	if resp.NoContent {
		result, _ := json.Marshal(map[string]string{
			"status":  "success",
			"message": "file " + fileID + " deleted",
		})
		return mcp.NewToolResultText(string(result)), nil
	}
	return mcp.NewToolResultText(string(resp.JSON)), nil
}

func (s *Server) handleDownloadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileID, err := req.RequireString("file_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	token, err := s.resolver.Resolve(ctx, req.GetString("token", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.upstream.Get(ctx, "files/"+fileID, nil, token)
	if err != nil {
		return upstreamToolError(err), nil
	}

	var resource struct {
		Data struct {
			Name     string `json:"name"`
			MimeType string `json:"mime_type"`
			Links    struct {
				Download string `json:"download"`
			} `json:"links"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.JSON, &resource); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("malformed file resource: %v", err)), nil
	}
	if resource.Data.Links.Download == "" {
		return mcp.NewToolResultError("download link not found"), nil
	}

	download, err := s.upstream.Download(ctx, resource.Data.Links.Download, token)
	if err != nil {
		return upstreamToolError(err), nil
	}
	defer func() { _ = download.Body.Close() }()

	content, err := io.ReadAll(io.LimitReader(download.Body, maxDownloadSize))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("download interrupted: %v", err)), nil
	}

	result, err := json.Marshal(map[string]any{
		"name":      resource.Data.Name,
		"mime_type": resource.Data.MimeType,
		"size":      len(content),
		"content":   base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

func (s *Server) handleGetToken(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.issuer.Issue(ctx, req.GetBool("force_refresh", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body, err := json.Marshal(map[string]any{
		"access_token": result.Token.Value,
		"token_type":   result.TokenType,
		"expires_in":   result.ExpiresIn,
		"cached":       result.Cached,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

// upstreamToolError shapes an upstream failure as a tool error carrying the
// upstream envelope.
func upstreamToolError(err error) *mcp.CallToolResult {
	var upstreamErr *upstream.Error
	if errors.As(err, &upstreamErr) && len(upstreamErr.Body) > 0 {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", upstreamErr.Error(), upstreamErr.Body))
	}
	return mcp.NewToolResultError(err.Error())
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}
