package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yegors/agent-desktop/pkg/logger"
)

// StaticFileHandler serves the built frontend. Paths that don't match a
// file on disk fall back to index.html so client-side routing works.
type StaticFileHandler struct {
	dir    string
	fs     http.Handler
	logger *logger.Logger
}

// NewStaticFileHandler creates a new static file handler
func NewStaticFileHandler(dir string, logger *logger.Logger) *StaticFileHandler {
	return &StaticFileHandler{
		dir:    dir,
		fs:     http.FileServer(http.Dir(dir)),
		logger: logger.Named("static"),
	}
}

// ServeHTTP implements http.Handler
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqPath := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
	full := filepath.Join(h.dir, reqPath)

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		// SPA fallback
		http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
		return
	}

	h.fs.ServeHTTP(w, r)
}
