package model

// ListResponse wraps the rows of a list endpoint.
type ListResponse struct {
	Resource []map[string]interface{} `json:"resource"`
	Meta     *ResponseMeta            `json:"meta,omitempty"`
}

// ResponseMeta describes the page that was returned. Scope names the tenant
// filter the rows were read under ("all", "none" or "tenant:<code>").
type ResponseMeta struct {
	Count  int     `json:"count"`
	Total  *int64  `json:"total,omitempty"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Scope  string  `json:"scope,omitempty"`
	TookMs float64 `json:"took_ms,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the status code again, a human-readable message and,
// for access failures, the decision context (kind, module, required
// permissions, requested and actual customer codes).
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// NewErrorResponse builds the error envelope.
func NewErrorResponse(code int, message string, ctx map[string]interface{}) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message, Context: ctx}}
}
