//go:build dev

package resources

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
)

// staticDir locates static/ next to this source file so edits show up on reload.
func staticDir() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return filepath.Join("internal", "ui", "resources", "static")
	}
	return filepath.Join(filepath.Dir(filename), "static")
}

// Handler serves assets from the working tree without caching.
func Handler() http.Handler {
	dir := staticDir()
	slog.Info("static assets served from filesystem", "path", dir)
	fs := http.StripPrefix(Prefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		fs.ServeHTTP(w, r)
	})
}
