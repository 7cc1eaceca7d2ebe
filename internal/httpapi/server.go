package httpapi

import (
	"net/http"

	"atmos-server/internal/config"
)

func NewServer(config config.Config, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:    config.HTTPAddr,
		Handler: requestLogger(mux),
	}
}
