package proxy

// fileResource is the subset of a file resource the proxy itself inspects.
// Everything else passes through as raw JSON.
type fileResource struct {
	Data struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		MimeType string `json:"mime_type"`
		Links    struct {
			Self     string `json:"self"`
			Download string `json:"download"`
		} `json:"links"`
	} `json:"data"`
}

// errorEnvelope is the normalized error body returned to callers, matching
// the upstream platform's JSON:API error shape.
type errorEnvelope struct {
	Errors []errorObject `json:"errors"`
}

type errorObject struct {
	Status int    `json:"status,omitempty"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}
