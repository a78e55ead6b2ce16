// Package frontend serves the embedded browser status page.
package frontend

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFiles embed.FS

// pageFS is the static directory rooted so "/" maps to index.html.
var pageFS = mustSub(staticFiles, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Handler serves the status page at "/" and its files under "/assets/".
func Handler() http.Handler {
	return http.FileServerFS(pageFS)
}
