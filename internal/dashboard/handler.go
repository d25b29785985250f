package dashboard

import (
	"io/fs"
	"net/http"
	"strings"
)

// Handler serves the embedded dashboard bundle. Requests for paths the
// bundle does not contain fall back to index.html so deep links into
// client routes render; backend paths always 404 here so the API mux
// keeps them.
func Handler() http.Handler {
	if bundle == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "dashboard bundle not built", http.StatusNotFound)
		})
	}

	assets, err := fs.Sub(bundle, "dist")
	if err != nil {
		panic("dashboard: dist subtree missing from bundle: " + err.Error())
	}
	files := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if backendPath(r.URL.Path) {
			http.NotFound(w, r)
			return
		}

		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" {
			name = "index.html"
		}
		if f, err := assets.Open(name); err == nil {
			f.Close()
			files.ServeHTTP(w, r)
			return
		}

		// Client-side route: hand back the shell.
		r.URL.Path = "/"
		files.ServeHTTP(w, r)
	})
}

// backendPath reports whether the request belongs to the API or the
// operational probes rather than the SPA.
func backendPath(p string) bool {
	return strings.HasPrefix(p, "/api/") ||
		p == "/healthz" || p == "/readyz" || p == "/metrics"
}
