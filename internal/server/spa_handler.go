package server

import (
	"net/http"
	"os"
	"strings"
)

// SPAMiddleware serves the single-page web UI for every path the backend does
// not own. Unknown paths fall back to index.html so client-side routes survive
// a page reload.
func SPAMiddleware(next http.Handler, staticPath, indexPath string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") ||
			strings.HasPrefix(r.URL.Path, "/feeds/") ||
			r.URL.Path == "/healthz" ||
			r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		// Known client-side routes go straight to the app shell.
		if r.URL.Path == "/" || r.URL.Path == "/monitors" || r.URL.Path == "/inbox" {
			http.ServeFile(w, r, indexPath)
			return
		}

		// Static asset if it exists, index.html otherwise.
		if _, err := os.Stat(staticPath + r.URL.Path); os.IsNotExist(err) {
			http.ServeFile(w, r, indexPath)
			return
		}

		http.FileServer(http.Dir(staticPath)).ServeHTTP(w, r)
	})
}
