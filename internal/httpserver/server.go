package httpserver

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"

	"lanbox/internal/auth"
	"lanbox/internal/config"
	"lanbox/internal/store"
	"lanbox/internal/upload"
)

const defaultMime = "application/octet-stream"

type Options struct {
	Config config.Config
}

type Server struct {
	cfg      config.Config
	store    *store.Store
	uploads  *upload.Receiver
	thumbDir string
}

// New wires the store and upload receiver. FilesDir and TmpDir must exist
// (see fsutil.EnsureDirs); only the thumbnail cache dir is created here.
func New(opts Options) (*Server, error) {
	st := store.New(opts.Config.FilesDir)
	thumbDir := filepath.Join(opts.Config.TmpDir, "thumbs")
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return nil, err
	}
	return &Server{
		cfg:      opts.Config,
		store:    st,
		uploads:  upload.New(opts.Config.TmpDir, opts.Config.MaxUpload, st),
		thumbDir: thumbDir,
	}, nil
}

// Handler builds the full pipeline:
// request id -> access log -> CORS preflight -> access guard -> router.
func (s *Server) Handler() http.Handler {
	// SkipClean keeps "/files/../../x" on the download route so the name is
	// sanitized there instead of being redirected.
	r := mux.NewRouter().SkipClean(true)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	}).Methods(http.MethodGet, http.MethodHead)

	r.Handle("/files", gzhttp.GzipHandler(http.HandlerFunc(s.handleList))).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/files/{name:.+}", s.handleDownload).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/thumbs/{name:.+}", s.handleThumb).Methods(http.MethodGet, http.MethodHead)
	r.PathPrefix("/dav/").Handler(s.davHandler())

	var h http.Handler = auth.Guard(s.cfg, r)
	h = corsHandler(s.cfg, h)
	h = loggingMiddleware(h)
	h = requestIDMiddleware(h)
	return h
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(map[string]string{"error": msg})
}

// knownTypes pins the types of common camera and document formats so the
// listing does not depend on the host's mime tables.
var knownTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
}

// contentTypeForName infers a MIME type from the extension: knownTypes
// first, then the system table, then application/octet-stream.
func contentTypeForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return defaultMime
	}
	if ct, ok := knownTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return defaultMime
}
