package web

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

type Server struct {
	Dir string
}

// Handler serves the static chat UI. Paths that do not match a file fall
// back to index.html so client-side routes resolve.
func (s *Server) Handler() http.Handler {
	fs := http.FileServer(http.Dir(s.Dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		if r.URL.Path != "/" && !strings.Contains(filepath.Base(r.URL.Path), ".") {
			if _, err := os.Stat(filepath.Join(s.Dir, filepath.Clean(r.URL.Path))); os.IsNotExist(err) {
				http.ServeFile(w, r, filepath.Join(s.Dir, "index.html"))
				return
			}
		}
		fs.ServeHTTP(w, r)
	})
}
