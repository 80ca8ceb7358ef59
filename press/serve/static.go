package serve

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Static returns a handler serving the files in dir.  Every response carries an entity tag derived from the size and
// modification time of the file, so it is invalidated whenever the file is rewritten.  HTML pages get the live reload
// client injected before their closing body tag.
func Static(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(`/` + r.URL.Path)
		if strings.HasSuffix(r.URL.Path, `/`) {
			name = path.Join(name, `index.html`)
		}
		full := filepath.Join(dir, filepath.FromSlash(name))
		info, err := os.Stat(full)
		if errors.Is(err, fs.ErrNotExist) && path.Ext(name) == `` {
			full += `.html`
			info, err = os.Stat(full)
		}
		switch {
		case errors.Is(err, fs.ErrNotExist):
			http.NotFound(w, r)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		case info.IsDir():
			http.Redirect(w, r, r.URL.Path+`/`, http.StatusMovedPermanently)
			return
		}

		w.Header().Set(`ETag`, ETag(info))
		w.Header().Set(`Cache-Control`, `no-cache`)
		if strings.EqualFold(filepath.Ext(full), `.html`) {
			data, err := os.ReadFile(full)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			http.ServeContent(w, r, full, info.ModTime(), bytes.NewReader(Inject(data)))
			return
		}
		f, err := os.Open(full)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer f.Close()
		http.ServeContent(w, r, full, info.ModTime(), f)
	})
}

// ETag returns a strong entity tag for the file.
func ETag(info fs.FileInfo) string {
	return fmt.Sprintf(`"%x-%x"`, info.Size(), info.ModTime().UnixNano())
}

// ClientTag is the script element injected into HTML pages.
const ClientTag = `<script src="` + Prefix + `reload.js"></script>`

// Inject inserts the live reload client before the last closing body tag, or appends it if there is none.
func Inject(page []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(page), []byte(`</body>`))
	if i < 0 {
		return append(append([]byte(nil), page...), ClientTag...)
	}
	out := make([]byte, 0, len(page)+len(ClientTag))
	out = append(out, page[:i]...)
	out = append(out, ClientTag...)
	return append(out, page[i:]...)
}
