package handler

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// FilesHandler serves converted output files.
type FilesHandler struct {
	dir string
}

// NewFilesHandler creates a handler serving files from dir.
func NewFilesHandler(dir string) *FilesHandler {
	return &FilesHandler{dir: dir}
}

// Serve handles GET /api/v1/files/{filename}.
func (h *FilesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if !safeFilename(name) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	path := filepath.Join(h.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to open file")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		w.Header().Set("Content-Type", "audio/mpeg")
	case ".mp4":
		w.Header().Set("Content-Type", "video/mp4")
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func safeFilename(name string) bool {
	if name == "" || name == "." || strings.Contains(name, "..") {
		return false
	}
	if strings.ContainsAny(name, `/\"`) {
		return false
	}
	return filepath.Base(name) == name
}
