//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

type swaggerInfo struct{}

func (swaggerInfo) ReadDoc() string { return swaggerDoc }

// Minimal embedded spec; `make swagger-gen` regenerates the full document
// from the annotations in cmd/pocketllm.
const swaggerDoc = `{
  "swagger": "2.0",
  "info": {
    "title": "pocketllm API",
    "description": "HTTP API for local LLM model downloads and chat.",
    "version": "1.0"
  },
  "basePath": "/"
}`

func init() {
	swag.Register(swag.Name, swaggerInfo{})
}

// MountSwagger serves the swagger UI at /swagger/ when built with
// -tags=swagger.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
