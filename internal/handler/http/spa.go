package http

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	apperrors "github.com/storefront/catalog/pkg/errors"
	"github.com/storefront/catalog/pkg/httputil"
)

// spaHandler serves the built storefront from root. Paths that do not name a
// file fall through to index.html so client-side routes such as
// /product/{id} load the app.
func spaHandler(root string) http.Handler {
	fsys := os.DirFS(root)
	files := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			httputil.WriteError(w, r, apperrors.NotFound("Route"), nil)
			return
		}

		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" {
			name = "."
		}

		info, err := fs.Stat(fsys, name)
		if err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		http.ServeFileFS(w, r, fsys, "index.html")
	})
}
