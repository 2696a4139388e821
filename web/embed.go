// Package web embeds the FitMind chat client. The client is a single page
// that opens /ws/chat for the conversation and posts product clicks to the
// REST API.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

const indexFile = "index.html"

// SPAHandler serves the embedded client. Existing files are served as is.
// A missing path with a file extension is a broken asset link and gets 404;
// any other path is a client route and gets index.html, marked no-cache so a
// redeploy is picked up on the next load.
func SPAHandler() http.Handler {
	client, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: embedded client missing: " + err.Error())
	}
	assets := http.FileServerFS(client)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name != "" && name != indexFile {
			if _, err := fs.Stat(client, name); err == nil {
				assets.ServeHTTP(w, r)
				return
			}
			if path.Ext(name) != "" {
				http.NotFound(w, r)
				return
			}
		}

		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFileFS(w, r, client, indexFile)
	})
}
