package httpserver

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/blackmichael/postboard/internal/storage"
)

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	rc, err := s.postService.OpenImage(r.Context(), path.Join(storage.ImagesDir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrInvalidPath) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("failed to open image", "name", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	// Uploads are untrusted: only raster images render inline, and nothing
	// served from here may run script.
	contentType := mime.TypeByExtension(path.Ext(name))
	if !inlineImage(contentType) {
		contentType = "application/octet-stream"
		w.Header().Set("Content-Disposition", "attachment")
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
	// Names are never reused, so a stored image never changes.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("failed to stream image", "name", name, "error", err)
	}
}

func inlineImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") && mediaType != "image/svg+xml"
}
