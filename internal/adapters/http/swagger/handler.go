// Package swagger serves the API description and the dataset schema.
package swagger

import (
	"context"
	"net/http"

	"github.com/okian/placement/internal/dataset"
)

// Register attaches the documentation routes to mux.
// Routes:
//
//	GET /openapi.yaml         -> embedded OpenAPI spec
//	GET /schema/dataset.json  -> JSON Schema for POST /dataset bodies
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("/openapi.yaml", serveBytes("application/yaml; charset=utf-8", OpenAPI))
	mux.HandleFunc("/schema/dataset.json", serveBytes("application/schema+json", dataset.Schema()))
}

func serveBytes(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}
}
