package httpserver

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/webdav"
)

// davHandler exposes the files directory read-only over WebDAV so it can be
// mounted from a file manager. Uploads still go through /upload.
func (s *Server) davHandler() http.Handler {
	dav := &webdav.Handler{
		Prefix:     "/dav",
		FileSystem: flatFS{dir: webdav.Dir(s.cfg.FilesDir)},
		LockSystem: webdav.NewMemLS(),
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, "PROPFIND":
			dav.ServeHTTP(w, r)
		default:
			w.Header().Set("Allow", "GET, HEAD, OPTIONS, PROPFIND")
			writeError(w, http.StatusMethodNotAllowed, "read-only")
		}
	})
}

// flatFS is a read-only webdav.FileSystem that only shows the root
// directory and the regular files directly inside it.
type flatFS struct {
	dir webdav.Dir
}

const writeFlags = os.O_WRONLY | os.O_RDWR | os.O_CREATE | os.O_TRUNC | os.O_APPEND

func (f flatFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return os.ErrPermission
}

func (f flatFS) RemoveAll(ctx context.Context, name string) error {
	return os.ErrPermission
}

func (f flatFS) Rename(ctx context.Context, oldName, newName string) error {
	return os.ErrPermission
}

func (f flatFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&writeFlags != 0 {
		return nil, os.ErrPermission
	}
	isRoot, err := f.check(name)
	if err != nil {
		return nil, err
	}
	file, err := f.dir.OpenFile(ctx, name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	if isRoot {
		return flatDir{File: file}, nil
	}
	return file, nil
}

func (f flatFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	if _, err := f.check(name); err != nil {
		return nil, err
	}
	return f.dir.Stat(ctx, name)
}

// check accepts the root and single-segment names of regular files.
func (f flatFS) check(name string) (isRoot bool, err error) {
	clean := path.Clean("/" + name)
	if clean == "/" {
		return true, nil
	}
	if strings.Contains(clean[1:], "/") {
		return false, os.ErrNotExist
	}
	st, err := os.Lstat(filepath.Join(string(f.dir), clean[1:]))
	if err != nil {
		return false, err
	}
	if !st.Mode().IsRegular() {
		return false, os.ErrNotExist
	}
	return false, nil
}

// flatDir hides everything but regular files from directory listings.
type flatDir struct {
	webdav.File
}

func (d flatDir) Readdir(count int) ([]fs.FileInfo, error) {
	infos, err := d.File.Readdir(count)
	out := infos[:0]
	for _, fi := range infos {
		if fi.Mode().IsRegular() {
			out = append(out, fi)
		}
	}
	return out, err
}
