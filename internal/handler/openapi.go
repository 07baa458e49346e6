package handler

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// OpenAPIHandler serves an OpenAPI document whose server URL follows the
// host the request was addressed to.
type OpenAPIHandler struct {
	generate func(baseURL string) *openapi3.T
}

// NewOpenAPIHandler creates a handler around a document generator such as
// openapi.GenerateAuthSpec.
func NewOpenAPIHandler(generate func(baseURL string) *openapi3.T) *OpenAPIHandler {
	return &OpenAPIHandler{generate: generate}
}

// ServeSpec writes the document as JSON.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.generate(baseURL(r)))
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
