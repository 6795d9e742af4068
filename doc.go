// Package proxy is the HTTP surface of the files proxy: a thin,
// bearer-authenticated gateway in front of a commerce platform's Files API.
// It extracts caller credentials into request-scoped context, resolves the
// effective token per request, and forwards list/get/create/delete/download
// operations upstream, passing responses and error envelopes through with
// their original status codes.
package proxy
