// Package handler contains the HTTP handlers of the reservation API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the request (path params, JSON or form body)
//  2. Call the service layer with the viewer resolved by the auth middleware
//  3. Write the response through writeJSON or WriteError
//
// Handlers hold no business rules; those live in internal/service.
package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// FrontendHandler serves the single-page app: existing files under the
// static directory as-is, and index.html for every other path so the
// client-side router can take over.
type FrontendHandler struct {
	dir    string
	logger *slog.Logger
}

// NewFrontendHandler fails if dir has no index.html.
func NewFrontendHandler(dir string, logger *slog.Logger) (*FrontendHandler, error) {
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
		return nil, err
	}
	return &FrontendHandler{dir: dir, logger: logger}, nil
}

// HandleApp serves GET /*.
func (h *FrontendHandler) HandleApp(w http.ResponseWriter, r *http.Request) {
	// path.Clean on a rooted path removes any "..", so the join stays in dir.
	name := filepath.Join(h.dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))

	info, err := os.Stat(name)
	switch {
	case err == nil && !info.IsDir():
		http.ServeFile(w, r, name)
		return
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		h.logger.Warn("stat static file", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
}
