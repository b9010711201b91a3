package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// handleAssets serves problem images from dir under prefix. Directories and
// missing files are 404; there is no index fallback.
func handleAssets(prefix, dir string) http.Handler {
	fileServer := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(r.URL.Path, prefix)
		path := filepath.Join(dir, filepath.Clean("/"+rel))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			writeError(w, http.StatusNotFound, "asset not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}
