// Package dashboard serves the embedded single-page tank dashboard. The
// page subscribes to /ws for live snapshots and posts operator commands
// to the REST API.
package dashboard

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed index.html
var content embed.FS

// Handler returns an http.Handler serving the embedded page, with
// index.html at the root path.
func Handler() http.Handler {
	sub, _ := fs.Sub(content, ".")
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			r.URL.Path = "/index.html"
		}
		fileServer.ServeHTTP(w, r)
	})
}
