package handler

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/openapi"
)

// OpenAPIHandler serves the generated OpenAPI document.
type OpenAPIHandler struct {
	version string

	once sync.Once
	doc  *openapi3.T
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(version string) *OpenAPIHandler {
	return &OpenAPIHandler{version: version}
}

// ServeSpec returns the API document. The catalog is static, so the
// document is built once with the first request's host as server URL.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		h.doc = openapi.Generate(scheme+"://"+r.Host, h.version, model.Resources())
	})
	writeJSON(w, http.StatusOK, h.doc)
}
