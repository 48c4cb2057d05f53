package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"lanbox/internal/fsutil"
	"lanbox/internal/store"
)

// FieldName is the multipart field that carries the file.
const FieldName = "file"

// EnvelopeSlack is added to the size limit when capping the whole request
// body, leaving room for multipart headers and boundaries.
const EnvelopeSlack = 1 << 20

const scratchPrefix, scratchSuffix = "upload-", ".part"

// Validation errors; the request is rejected and nothing is stored.
var (
	ErrNoFile          = errors.New("no file")
	ErrUnsupportedType = errors.New("Unsupported mime type")
	ErrTooLarge        = errors.New("File too large")
	ErrMalformed       = errors.New("malformed multipart body")
	ErrBadName         = fsutil.ErrInvalidName
)

// ErrRelocate wraps failures moving the scratch file into the store.
var ErrRelocate = errors.New("cannot move")

var validationErrs = []error{ErrNoFile, ErrUnsupportedType, ErrTooLarge, ErrMalformed, ErrBadName}

// Validation returns the validation error that err wraps, or nil when err
// is a server-side failure.
func Validation(err error) error {
	for _, v := range validationErrs {
		if errors.Is(err, v) {
			return v
		}
	}
	return nil
}

// Result describes a stored upload.
type Result struct {
	Name        string // resolved stored name
	Original    string // client-supplied filename, as sent
	ContentType string // declared media type
	Size        int64
}

// Receiver streams one multipart file into scratch and relocates it into
// the store.
type Receiver struct {
	scratchDir string
	maxBytes   int64
	store      *store.Store
}

func New(scratchDir string, maxBytes int64, st *store.Store) *Receiver {
	return &Receiver{scratchDir: scratchDir, maxBytes: maxBytes, store: st}
}

// MaxBytes is the per-file size limit.
func (rc *Receiver) MaxBytes() int64 {
	return rc.maxBytes
}

// BodyLimit caps the whole request body: the file limit plus
// EnvelopeSlack, saturating at math.MaxInt64.
func (rc *Receiver) BodyLimit() int64 {
	return addSat(rc.maxBytes, EnvelopeSlack)
}

func addSat(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// AllowedType reports whether a declared Content-Type may be uploaded:
// image/* or application/octet-stream. An empty value counts as
// application/octet-stream.
func AllowedType(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "image/") || mt == "application/octet-stream"
}

// Receive reads the request's multipart body. The first file part named
// "file" is accepted; other parts are skipped and anything after it is
// ignored. The scratch file is always removed unless relocation succeeds.
func (rc *Receiver) Receive(ctx context.Context, r *http.Request) (*Result, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, ErrNoFile
	}

	var part *multipart.Part
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoFile
		}
		if err != nil {
			return nil, classifyReadErr(err)
		}
		if p.FormName() == FieldName && rawFilename(p) != "" {
			part = p
			break
		}
		_ = p.Close()
	}
	defer part.Close()

	res := &Result{
		Original:    rawFilename(part),
		ContentType: part.Header.Get("Content-Type"),
	}
	if res.ContentType == "" {
		res.ContentType = "application/octet-stream"
	}
	if !AllowedType(res.ContentType) {
		return nil, ErrUnsupportedType
	}
	candidate, err := fsutil.CandidateName(res.Original)
	if err != nil {
		return nil, err
	}

	scratch, n, err := rc.writeScratch(part)
	if err != nil {
		return nil, err
	}
	stored := false
	defer func() {
		if !stored {
			_ = os.Remove(scratch)
		}
	}()
	res.Size = n

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := rc.store.Place(scratch, candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelocate, err)
	}
	stored = true
	res.Name = name
	return res, nil
}

// writeScratch copies at most maxBytes+1 bytes so an oversized part is
// detected without reading the rest of it.
func (rc *Receiver) writeScratch(src io.Reader) (path string, n int64, err error) {
	path = filepath.Join(rc.scratchDir, scratchPrefix+uuid.NewString()+scratchSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrRelocate, err)
	}
	n, err = io.Copy(f, io.LimitReader(src, addSat(rc.maxBytes, 1)))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > rc.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return "", 0, err
		}
		return "", 0, classifyReadErr(err)
	}
	return path, n, nil
}

func classifyReadErr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return ErrTooLarge
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// rawFilename returns the filename parameter without the path stripping
// Part.FileName applies, so backslash paths are sanitized the same way as
// slash paths.
func rawFilename(p *multipart.Part) string {
	_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	if err != nil {
		return p.FileName()
	}
	return params["filename"]
}

// SweepScratch removes upload scratch files older than maxAge, left behind
// by interrupted processes. It returns how many files were removed.
func SweepScratch(dir string, maxAge time.Duration, now time.Time) (int, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range ents {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, scratchPrefix) || !strings.HasSuffix(name, scratchSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if os.Remove(filepath.Join(dir, name)) == nil {
			removed++
		}
	}
	return removed, nil
}
