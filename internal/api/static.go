package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yegors/tracon-sim/pkg/logger"
)

// StaticFileHandler serves the scope UI from a directory. Unknown paths fall
// back to index.html so client-side routes resolve.
type StaticFileHandler struct {
	root   string
	logger *logger.Logger
}

// NewStaticFileHandler creates a handler for dir
func NewStaticFileHandler(dir string, log *logger.Logger) (*StaticFileHandler, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &StaticFileHandler{root: root, logger: log.Named("static-handler")}, nil
}

// ServeHTTP serves a file without caching
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(filepath.Clean("/"+r.URL.Path), "/")
	full := filepath.Join(h.root, rel)
	if full != h.root && !strings.HasPrefix(full, h.root+string(filepath.Separator)) {
		h.logger.Warn("Rejected path outside static root", logger.String("path", r.URL.Path))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if info, err := os.Stat(full); err != nil || info.IsDir() {
		full = filepath.Join(h.root, "index.html")
		if _, err := os.Stat(full); err != nil {
			http.NotFound(w, r)
			return
		}
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	http.ServeFile(w, r, full)
}
