package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/blackmichael/postboard/internal/auth"
	"github.com/blackmichael/postboard/internal/domain"
)

// postResponse is the JSON form of a post. Absent optional fields render as
// null.
type postResponse struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	ImageURL    *string   `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toPostResponse(p *domain.Post) postResponse {
	return postResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: nullable(p.Description),
		ImageURL:    nullable(p.ImageURL),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.postService.ListPosts(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "failed to list posts")
		return
	}

	resp := make([]postResponse, len(posts))
	for i := range posts {
		resp[i] = toPostResponse(&posts[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}

	post, err := s.postService.GetPost(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to get post")
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAPIRequest(w, r)
	if !ok {
		return
	}
	defer req.cleanup()

	post, err := s.postService.CreatePost(r.Context(), req.raw)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to create post")
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}

	req, ok := s.decodeAPIRequest(w, r)
	if !ok {
		return
	}
	defer req.cleanup()

	post, err := s.postService.UpdatePost(r.Context(), id, req.raw)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to update post")
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}

	if err := s.postService.DeletePost(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		s.writeServiceError(w, r, err, "failed to delete post")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeAPIRequest(w http.ResponseWriter, r *http.Request) (*decodedRequest, bool) {
	req, err := decodePostRequest(w, r, s.postService.Rules())
	if err == nil {
		return req, true
	}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr)
	case errors.Is(err, errUnsupportedMedia):
		writeError(w, http.StatusUnsupportedMediaType, "UnsupportedMediaType", err.Error())
	default:
		s.logger.Warn("malformed request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "BadRequest", "malformed request body")
	}
	return nil, false
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Unauthenticated", "Unauthenticated.")
	default:
		s.logger.Error(message, "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", message)
	}
}

func writeValidationError(w http.ResponseWriter, verr *domain.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"message": verr.Summary(),
		"errors":  verr.Fields,
	})
}

// parseID reads the {id} path value. Anything that is not a positive integer
// cannot name a post.
func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
