package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	// decoders
	_ "image/gif"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"lanbox/internal/fsutil"
	"lanbox/internal/store"
)

const (
	thumbMax     = 256
	thumbQuality = 82

	// thumbMaxPixels bounds the decoded source; decoders allocate the full
	// frame from the header before reading pixel data.
	thumbMaxPixels = 50_000_000
)

var (
	errNotImage    = errors.New("not an image")
	errImageTooBig = errors.New("image too large to preview")
)

// handleThumb serves a cached JPEG preview of a stored image.
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	name, err := fsutil.BaseName(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	st, err := s.store.Stat(name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("rid=%s msg=thumb_stat name=%q err=%v", RequestIDFromContext(r.Context()), name, err)
		}
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	cachePath := filepath.Join(s.thumbDir, fmt.Sprintf("%s-%d.jpg", name, st.ModTime().UnixNano()))
	if b, err := os.ReadFile(cachePath); err == nil {
		serveThumb(w, b)
		return
	}

	b, err := thumbnail(s.store.Path(name), thumbMax)
	if err != nil {
		writeError(w, http.StatusNotFound, "no preview")
		return
	}
	_ = os.WriteFile(cachePath, b, 0o644)
	serveThumb(w, b)
}

func serveThumb(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(b)
}

// thumbnail sniffs absPath, decodes it if it is a supported image and
// returns a JPEG scaled to fit max x max.
func thumbnail(absPath string, max int) ([]byte, error) {
	mt, err := mimetype.DetectFile(absPath)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, errNotImage
	}
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out bytes.Buffer
	if err := renderThumb(&out, f, max); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func renderThumb(dst io.Writer, src io.ReadSeeker, max int) error {
	cfg, _, err := image.DecodeConfig(src)
	if err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return os.ErrInvalid
	}
	if int64(cfg.Width)*int64(cfg.Height) > thumbMaxPixels {
		return errImageTooBig
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	img, _, err := image.Decode(src)
	if err != nil {
		return err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return os.ErrInvalid
	}
	nw, nh := fitWithin(w, h, max)

	canvas := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), img, b, draw.Over, nil)
	return jpeg.Encode(dst, canvas, &jpeg.Options{Quality: thumbQuality})
}

// fitWithin scales w x h down (never up) so the longer side is at most max.
func fitWithin(w, h, max int) (int, int) {
	if max <= 0 {
		max = thumbMax
	}
	nw, nh := w, h
	if w >= h && w > max {
		nw = max
		nh = int(float64(h) * (float64(max) / float64(w)))
	} else if h > w && h > max {
		nh = max
		nw = int(float64(w) * (float64(max) / float64(h)))
	}
	return maxInt(nw, 1), maxInt(nh, 1)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
