package endpoints

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/web"
)

// StaticEndpoint serves the embedded story browser. Client-side routes
// such as /stories/{id} fall back to index.html; unmatched /api paths and
// missing asset files get a plain 404 so API clients never receive HTML.
type StaticEndpoint struct{}

var _ api.Endpoint = (*StaticEndpoint)(nil)

func (e *StaticEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/{path...}", e.handler
}

func (e *StaticEndpoint) RequiresInit() bool {
	return false
}

func (e *StaticEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}

func (e *StaticEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "unknown api route: "+r.URL.Path)
		return
	}

	distFS, err := web.DistFS()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "frontend not available")
		return
	}

	filePath := strings.TrimPrefix(r.URL.Path, "/")
	if filePath == "" {
		filePath = "index.html"
	}

	if f, err := distFS.Open(filePath); err == nil {
		f.Close()
		if filePath != "index.html" {
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}
		http.FileServer(http.FS(distFS)).ServeHTTP(w, r)
		return
	}

	// A missing file with an extension is a broken asset link, not a page.
	if path.Ext(filePath) != "" {
		http.NotFound(w, r)
		return
	}

	index, err := fs.ReadFile(distFS, "index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "frontend not available")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(index)
}
