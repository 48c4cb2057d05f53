package httpserver

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"lanbox/internal/fsutil"
	"lanbox/internal/store"
	"lanbox/internal/upload"
)

type listItem struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Mtime int64  `json:"mtime"` // unix milliseconds
	Mime  string `json:"mime"`
}

type uploadResp struct {
	OK   bool   `json:"ok"`
	Name string `json:"name"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ents, err := s.store.List()
	if err != nil {
		log.Printf("rid=%s msg=list_failed err=%v", RequestIDFromContext(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "cannot list")
		return
	}
	items := make([]listItem, 0, len(ents))
	for _, e := range ents {
		items = append(items, listItem{
			Name:  e.Name,
			Size:  e.Size,
			Mtime: e.ModTime.UnixMilli(),
			Mime:  contentTypeForName(e.Name),
		})
	}
	writeJSON(w, items)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name, err := fsutil.BaseName(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	f, st, err := s.store.Open(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		log.Printf("rid=%s msg=open_failed name=%q err=%v", RequestIDFromContext(r.Context()), name, err)
		writeError(w, http.StatusInternalServerError, "cannot read")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentTypeForName(name))
	w.Header().Set("Content-Disposition", attachment(name))
	// ServeContent copies in chunks and handles Range / If-Modified-Since.
	http.ServeContent(w, r, name, st.ModTime(), f)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	rid := RequestIDFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.BodyLimit())

	res, err := s.uploads.Receive(r.Context(), r)
	if err != nil {
		if verr := upload.Validation(err); verr != nil {
			log.Printf("rid=%s msg=upload_rejected err=%v", rid, err)
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		log.Printf("rid=%s msg=upload_failed err=%v", rid, err)
		writeError(w, http.StatusInternalServerError, upload.ErrRelocate.Error())
		return
	}
	log.Printf("rid=%s msg=stored name=%q original=%q type=%s size=%d", rid, res.Name, res.Original, res.ContentType, res.Size)
	writeJSON(w, uploadResp{OK: true, Name: res.Name})
}

// attachment builds a Content-Disposition value asking clients to save
// the file. Quotes and backslashes in name are escaped.
func attachment(name string) string {
	name = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "", "\n", "").Replace(name)
	return fmt.Sprintf(`attachment; filename="%s"`, name)
}
