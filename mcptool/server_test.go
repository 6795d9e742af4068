package mcptool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/commercekit/files-proxy/auth"
	"github.com/commercekit/files-proxy/internal/testutil"
	"github.com/commercekit/files-proxy/upstream"
)

func newTestServer(t *testing.T, backendHandler http.HandlerFunc) (*Server, *testutil.TokenEndpoint) {
	t.Helper()

	backend := httptest.NewServer(backendHandler)
	t.Cleanup(backend.Close)

	tokens := testutil.NewTokenEndpoint()
	t.Cleanup(tokens.Close)
	tokens.SetResponse("service-token", 3600)

	logger := slog.New(slog.DiscardHandler)

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		TokenURL:     tokens.URL(),
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}

	resolver, err := auth.NewResolver(auth.ResolverConfig{Issuer: issuer, Logger: logger})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	client, err := upstream.NewClient(upstream.Config{BaseURL: backend.URL, Logger: logger})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	srv, err := New(Config{
		Resolver: resolver,
		Issuer:   issuer,
		Upstream: client,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, tokens
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("tool result content is %T, want text", result.Content[0])
	}
	return text.Text
}

func TestServer_ListFiles(t *testing.T) {
	var gotLimit, gotName, gotAuth string
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("page[limit]")
		gotName = r.URL.Query().Get("filter[name]")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	result, err := srv.handleListFiles(context.Background(), callRequest("list_files", map[string]any{
		"page_limit":  25,
		"filter_name": "logo.png",
	}))
	if err != nil {
		t.Fatalf("handleListFiles() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}

	if gotLimit != "25" {
		t.Errorf("page[limit] = %q, want 25", gotLimit)
	}
	if gotName != "logo.png" {
		t.Errorf("filter[name] = %q", gotName)
	}
	if gotAuth != "Bearer service-token" {
		t.Errorf("Authorization = %q, want the service token", gotAuth)
	}
	if resultText(t, result) != `{"data":[]}` {
		t.Errorf("result = %s", resultText(t, result))
	}
}

func TestServer_ExplicitTokenWins(t *testing.T) {
	var gotAuth string
	srv, tokens := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	result, err := srv.handleListFiles(context.Background(), callRequest("list_files", map[string]any{
		"token": "caller-token",
	}))
	if err != nil {
		t.Fatalf("handleListFiles() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}
	if gotAuth != "Bearer caller-token" {
		t.Errorf("Authorization = %q, want the explicit token", gotAuth)
	}
	if tokens.Exchanges() != 0 {
		t.Errorf("exchanges = %d, want 0 with an explicit token", tokens.Exchanges())
	}
}

func TestServer_GetFile_RequiresID(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the upstream")
	})

	result, err := srv.handleGetFile(context.Background(), callRequest("get_file", nil))
	if err != nil {
		t.Fatalf("handleGetFile() error = %v", err)
	}
	if !result.IsError {
		t.Error("missing file_id should produce a tool error")
	}
}

func TestServer_CreateFile_SourceValidation(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"neither source", map[string]any{}},
		{"both sources", map[string]any{
			"file_content": base64.StdEncoding.EncodeToString([]byte("x")),
			"file_url":     "https://example.com/a.png",
		}},
		{"invalid base64", map[string]any{"file_content": "not-base64!!!"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				t.Error("request must not reach the upstream")
			})

			result, err := srv.handleCreateFile(context.Background(), callRequest("create_file", tt.args))
			if err != nil {
				t.Fatalf("handleCreateFile() error = %v", err)
			}
			if !result.IsError {
				t.Error("invalid source combination should produce a tool error")
			}
		})
	}
}

func TestServer_CreateFile_Upload(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile() error = %v", err)
		}
		defer func() { _ = file.Close() }()
		if header.Filename != "logo.png" {
			t.Errorf("filename = %q", header.Filename)
		}
		content, _ := io.ReadAll(file)
		if string(content) != "png-bytes" {
			t.Errorf("content = %q", content)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"new-file"}}`))
	})

	result, err := srv.handleCreateFile(context.Background(), callRequest("create_file", map[string]any{
		"file_name":    "logo.png",
		"file_content": base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		"content_type": "image/png",
	}))
	if err != nil {
		t.Fatalf("handleCreateFile() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}
}

func TestServer_DeleteFile_NoContent(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	result, err := srv.handleDeleteFile(context.Background(), callRequest("delete_file", map[string]any{
		"file_id": "file-123",
	}))
	if err != nil {
		t.Fatalf("handleDeleteFile() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if body["status"] != "success" {
		t.Errorf("status = %q, want success", body["status"])
	}
}

func TestServer_DownloadFile(t *testing.T) {
	var backendURL string
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/files/file-123":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"id":"file-123","name":"logo.png","mime_type":"image/png","links":{"download":"` + backendURL + `/stored/logo.png"}}}`))
		case "/stored/logo.png":
			_, _ = w.Write([]byte("png-bytes"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	// The handler under test serves both the resource and its download link.
	backendURL = srv.upstream.BaseURL()

	result, err := srv.handleDownloadFile(context.Background(), callRequest("download_file", map[string]any{
		"file_id": "file-123",
	}))
	if err != nil {
		t.Fatalf("handleDownloadFile() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}

	var body struct {
		Name    string `json:"name"`
		Size    int    `json:"size"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if body.Name != "logo.png" {
		t.Errorf("name = %q", body.Name)
	}
	decoded, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		t.Fatalf("content is not base64: %v", err)
	}
	if string(decoded) != "png-bytes" {
		t.Errorf("content = %q", decoded)
	}
	if body.Size != len("png-bytes") {
		t.Errorf("size = %d", body.Size)
	}
}

func TestServer_DownloadFile_NoLink(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"file-123","name":"logo.png","links":{}}}`))
	})

	result, err := srv.handleDownloadFile(context.Background(), callRequest("download_file", map[string]any{
		"file_id": "file-123",
	}))
	if err != nil {
		t.Fatalf("handleDownloadFile() error = %v", err)
	}
	if !result.IsError {
		t.Error("missing download link should produce a tool error")
	}
}

func TestServer_GetToken(t *testing.T) {
	srv, tokens := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	tokens.SetResponse("minted-token", 3600)

	result, err := srv.handleGetToken(context.Background(), callRequest("get_client_credentials_token", nil))
	if err != nil {
		t.Fatalf("handleGetToken() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
		Cached      bool   `json:"cached"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if body.AccessToken != "minted-token" {
		t.Errorf("access_token = %q", body.AccessToken)
	}
	if body.Cached {
		t.Error("first issue should not be cached")
	}

	second, err := srv.handleGetToken(context.Background(), callRequest("get_client_credentials_token", nil))
	if err != nil {
		t.Fatalf("handleGetToken() error = %v", err)
	}
	if err := json.Unmarshal([]byte(resultText(t, second)), &body); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if !body.Cached {
		t.Error("second issue should be served from cache")
	}
	if tokens.Exchanges() != 1 {
		t.Errorf("exchanges = %d, want 1", tokens.Exchanges())
	}
}
