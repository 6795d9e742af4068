package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/commercekit/files-proxy/auth"
	"github.com/commercekit/files-proxy/instrumentation"
	"github.com/commercekit/files-proxy/security"
	"github.com/commercekit/files-proxy/upstream"
)

// Query parameter bounds for list requests.
const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// HandlerConfig holds the dependencies for the HTTP handler.
type HandlerConfig struct {
	// Config is the validated proxy configuration.
	Config *Config

	// Resolver determines the effective token per request.
	Resolver *auth.Resolver

	// Upstream issues the proxied API calls.
	Upstream *upstream.Client

	// RateLimiter applies per-IP limits. Nil disables limiting.
	RateLimiter *security.RateLimiter

	// Auditor records security events. Optional.
	Auditor *security.Auditor

	// Logger for structured logging. Defaults to slog.Default when nil.
	Logger *slog.Logger

	// Instrumentation records request metrics. Optional.
	Instrumentation *instrumentation.Instrumentation
}

// Handler serves the proxy's HTTP routes.
type Handler struct {
	config      *Config
	resolver    *auth.Resolver
	upstream    *upstream.Client
	rateLimiter *security.RateLimiter
	auditor     *security.Auditor
	logger      *slog.Logger
	inst        *instrumentation.Instrumentation
}

// NewHandler creates the HTTP handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Upstream == nil {
		return nil, fmt.Errorf("upstream client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		config:      cfg.Config,
		resolver:    cfg.Resolver,
		upstream:    cfg.Upstream,
		rateLimiter: cfg.RateLimiter,
		auditor:     cfg.Auditor,
		logger:      logger,
		inst:        cfg.Instrumentation,
	}, nil
}

// Router builds the route table with the middleware chain applied.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(security.RequestIDMiddleware, h.loggingMiddleware)

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	files := r.PathPrefix("/" + h.config.APIVersion + "/files").Subrouter()
	files.Use(h.rateLimitMiddleware, h.bearerTokenMiddleware)
	files.HandleFunc("", h.handleListFiles).Methods(http.MethodGet)
	files.HandleFunc("", h.handleCreateFile).Methods(http.MethodPost)
	files.HandleFunc("/{fileID}", h.handleGetFile).Methods(http.MethodGet)
	files.HandleFunc("/{fileID}", h.handleDeleteFile).Methods(http.MethodDelete)
	files.HandleFunc("/{fileID}/download", h.handleDownloadFile).Methods(http.MethodGet)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleListFiles proxies GET /files, translating the proxy's flat query
// parameters into the platform's bracketed pagination and filter forms.
func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	params := url.Values{}
	params.Set("page[limit]", strconv.Itoa(pageLimit(r)))
	params.Set("page[offset]", strconv.Itoa(pageOffset(r)))

	for query, upstreamKey := range map[string]string{
		"filter_name":      "filter[name]",
		"filter_width":     "filter[width]",
		"filter_height":    "filter[height]",
		"filter_file_size": "filter[file_size]",
	} {
		if value := r.URL.Query().Get(query); value != "" {
			params.Set(upstreamKey, value)
		}
	}

	token, ok := h.resolveToken(w, r)
	if !ok {
		return
	}

	resp, err := h.upstream.Get(r.Context(), "files", params, token)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.writeUpstreamResponse(w, resp)
}

// handleCreateFile proxies POST /files. Exactly one of a multipart file
// part or a file_url form field must be supplied.
func (h *Handler) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxFileSize)

	if err := r.ParseMultipartForm(h.config.MaxFileSize); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart request: %v", err))
		return
	}

	fileURL := r.FormValue("file_url")
	file, header, err := r.FormFile("file")
	hasFile := err == nil

	switch {
	case !hasFile && fileURL == "":
		h.writeError(w, http.StatusBadRequest, "either file or file_url must be provided")
		return
	case hasFile && fileURL != "":
		_ = file.Close()
		h.writeError(w, http.StatusBadRequest, "provide either file or file_url, not both")
		return
	}

	fields := map[string]string{
		"public_status": publicStatus(r),
	}
	if name := r.FormValue("file_name"); name != "" {
		fields["file_name"] = name
	}
	if fileURL != "" {
		fields["file_url"] = fileURL
	}

	var upload *upstream.FileUpload
	if hasFile {
		defer func() { _ = file.Close() }()
		upload = &upstream.FileUpload{
			FieldName:   "file",
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     file,
		}
	}

	token, ok := h.resolveToken(w, r)
	if !ok {
		return
	}

	resp, err := h.upstream.Upload(r.Context(), "files", fields, upload, token)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.writeUpstreamResponse(w, resp)
}

func (h *Handler) handleGetFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileID"]

	token, ok := h.resolveToken(w, r)
	if !ok {
		return
	}

	resp, err := h.upstream.Get(r.Context(), "files/"+fileID, nil, token)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.writeUpstreamResponse(w, resp)
}

func (h *Handler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileID"]

	token, ok := h.resolveToken(w, r)
	if !ok {
		return
	}

	resp, err := h.upstream.Delete(r.Context(), "files/"+fileID, token)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.writeUpstreamResponse(w, resp)
}

// handleDownloadFile fetches the file resource, follows its download link
// with the same token, and streams the bytes back.
func (h *Handler) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileID"]

	token, ok := h.resolveToken(w, r)
	if !ok {
		return
	}

	resp, err := h.upstream.Get(r.Context(), "files/"+fileID, nil, token)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}

	var resource fileResource
	if err := json.Unmarshal(resp.JSON, &resource); err != nil {
		h.writeError(w, http.StatusBadGateway, fmt.Sprintf("malformed file resource: %v", err))
		return
	}
	if resource.Data.Links.Download == "" {
		h.writeError(w, http.StatusNotFound, "download link not found")
		return
	}

	download, err := h.upstream.Download(r.Context(), resource.Data.Links.Download, token)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	defer func() { _ = download.Body.Close() }()

	contentType := resource.Data.MimeType
	if contentType == "" {
		contentType = download.ContentType
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resource.Data.Name))
	if download.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(download.ContentLength, 10))
	}

	if _, err := io.Copy(w, download.Body); err != nil {
		// Headers are gone; nothing to do but log.
		h.logger.Warn("Download stream interrupted",
			"file_id", fileID,
			"request_id", security.GetRequestID(r.Context()),
			"error", err)
	}
}

// resolveToken resolves the effective token for this request, writing the
// error response itself when resolution fails.
func (h *Handler) resolveToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, err := h.resolver.Resolve(r.Context(), "")
	if err != nil {
		var authErr *auth.AuthenticationError
		switch {
		case errors.Is(err, auth.ErrMissingCredentials):
			h.writeError(w, http.StatusInternalServerError, "service credentials are not configured")
		case errors.As(err, &authErr):
			h.writeError(w, http.StatusBadGateway, "upstream authentication failed: "+authErr.Description)
		default:
			h.writeError(w, http.StatusInternalServerError, "failed to resolve credentials")
		}
		return "", false
	}
	return token, true
}

// writeUpstreamResponse passes a successful upstream response through with
// its status and body.
func (h *Handler) writeUpstreamResponse(w http.ResponseWriter, resp *upstream.Response) {
	security.SetSecurityHeaders(w)

	if resp.NoContent {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.JSON)
}

// writeUpstreamError maps an upstream failure to the caller: same status
// and envelope for HTTP errors, 502 for transport failures.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, err error) {
	var upstreamErr *upstream.Error
	if !errors.As(err, &upstreamErr) {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := upstreamErr.StatusCode
	if upstreamErr.IsNetwork() {
		status = http.StatusBadGateway
	}

	security.SetSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(upstreamErr.Body)
}

// writeError writes a normalized error envelope.
func (h *Handler) writeError(w http.ResponseWriter, status int, title string) {
	security.SetSecurityHeaders(w)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Errors: []errorObject{{Status: status, Title: title}},
	})
}

// pageLimit returns the clamped page_limit query value.
func pageLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("page_limit"))
	if err != nil || limit < 1 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

// pageOffset returns the non-negative page_offset query value.
func pageOffset(r *http.Request) int {
	offset, err := strconv.Atoi(r.URL.Query().Get("page_offset"))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// publicStatus returns the public_status form value normalized to
// "true"/"false", defaulting to public.
func publicStatus(r *http.Request) string {
	value := r.FormValue("public_status")
	if value == "" {
		return "true"
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return "true"
	}
	return strconv.FormatBool(parsed)
}
