package httpserver

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/blackmichael/postboard/internal/auth"
	"github.com/blackmichael/postboard/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// maxOldInput bounds each value echoed back through the flash cookie.
const maxOldInput = 1024

type pageRenderer struct {
	pages map[string]*template.Template
}

func newPageRenderer() (*pageRenderer, error) {
	p := &pageRenderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{"index.html", "show.html"} {
		t, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		p.pages[name] = t
	}
	return p, nil
}

func (p *pageRenderer) render(w http.ResponseWriter, status int, name string, data any) error {
	t, ok := p.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

type formValues struct {
	Title       string
	Description string
}

type indexPage struct {
	Flash flash
	Posts []domain.Post
	Form  formValues
}

type showPage struct {
	Flash flash
	Post  *domain.Post
	Form  formValues
}

func (s *Server) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	f := takeFlash(w, r)

	posts, err := s.postService.ListPosts(r.Context())
	if err != nil {
		s.pageError(w, r, http.StatusInternalServerError, err)
		return
	}

	data := indexPage{
		Flash: f,
		Posts: posts,
		Form:  formValues{Title: f.Old["title"], Description: f.Old["description"]},
	}
	if err := s.pages.render(w, http.StatusOK, "index.html", data); err != nil {
		s.logger.Error("failed to render page", "page", "index", "error", err)
	}
}

func (s *Server) handleShowPage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	post, err := s.postService.GetPost(r.Context(), id)
	if err != nil {
		s.pageServiceError(w, r, err)
		return
	}
	f := takeFlash(w, r)

	form := formValues{Title: post.Title, Description: post.Description}
	if f.Old != nil {
		form = formValues{Title: f.Old["title"], Description: f.Old["description"]}
	}

	data := showPage{Flash: f, Post: post, Form: form}
	if err := s.pages.render(w, http.StatusOK, "show.html", data); err != nil {
		s.logger.Error("failed to render page", "page", "show", "id", id, "error", err)
	}
}

func (s *Server) handleStorePage(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePageRequest(w, r, "/posts")
	if !ok {
		return
	}
	defer req.cleanup()

	post, err := s.postService.CreatePost(r.Context(), req.raw)
	if err != nil {
		s.pageActionError(w, r, err, req.raw, "/posts")
		return
	}

	setFlash(w, flash{Status: "Post created."})
	http.Redirect(w, r, fmt.Sprintf("/posts/%d", post.ID), http.StatusSeeOther)
}

// handleFormOverride dispatches HTML form posts that tunnel PATCH, PUT or
// DELETE through the _method field.
func (s *Server) handleFormOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	req, ok := s.decodePageRequest(w, r, fmt.Sprintf("/posts/%d", id))
	if !ok {
		return
	}
	defer req.cleanup()

	switch req.method {
	case http.MethodPatch, http.MethodPut:
		s.updateFromPage(w, r, id, req.raw)
	case http.MethodDelete:
		s.deleteFromPage(w, r, id)
	default:
		w.Header().Set("Allow", "GET, PATCH, PUT, DELETE")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	req, ok := s.decodePageRequest(w, r, fmt.Sprintf("/posts/%d", id))
	if !ok {
		return
	}
	defer req.cleanup()

	s.updateFromPage(w, r, id, req.raw)
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.deleteFromPage(w, r, id)
}

func (s *Server) updateFromPage(w http.ResponseWriter, r *http.Request, id int64, raw domain.RawPost) {
	target := fmt.Sprintf("/posts/%d", id)

	if _, err := s.postService.UpdatePost(r.Context(), id, raw); err != nil {
		s.pageActionError(w, r, err, raw, target)
		return
	}

	setFlash(w, flash{Status: "Post updated."})
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) deleteFromPage(w http.ResponseWriter, r *http.Request, id int64) {
	err := s.postService.DeletePost(r.Context(), auth.ActorFromContext(r.Context()), id)
	if err != nil {
		s.pageActionError(w, r, err, domain.RawPost{}, "/posts")
		return
	}

	setFlash(w, flash{Status: "Post deleted."})
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

func (s *Server) decodePageRequest(w http.ResponseWriter, r *http.Request, fallback string) (*decodedRequest, bool) {
	req, err := decodePostRequest(w, r, s.postService.Rules())
	if err == nil {
		return req, true
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		setFlash(w, flash{Errors: verr.Fields})
		redirectBack(w, r, fallback)
		return nil, false
	}

	s.logger.Warn("malformed form submission", "path", r.URL.Path, "error", err)
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	return nil, false
}

// pageActionError maps a failed create, update or delete onto the page flow:
// validation errors go back to the form, unauthenticated actors go to login.
func (s *Server) pageActionError(w http.ResponseWriter, r *http.Request, err error, raw domain.RawPost, fallback string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		setFlash(w, flash{Errors: verr.Fields, Old: oldInput(raw)})
		redirectBack(w, r, fallback)
	case errors.Is(err, domain.ErrUnauthenticated):
		http.Redirect(w, r, s.cfg.LoginURL, http.StatusSeeOther)
	default:
		s.pageServiceError(w, r, err)
	}
}

func (s *Server) pageServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	s.pageError(w, r, http.StatusInternalServerError, err)
}

func (s *Server) pageError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logger.Error("page request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, http.StatusText(status), status)
}

// redirectBack sends the browser to the page it came from when the Referer
// points at this host, otherwise to fallback.
func redirectBack(w http.ResponseWriter, r *http.Request, fallback string) {
	target := fallback
	if ref, err := url.Parse(r.Referer()); err == nil && r.Referer() != "" {
		sameHost := ref.Host == "" || ref.Host == r.Host
		if sameHost && strings.HasPrefix(ref.Path, "/") && !strings.HasPrefix(ref.Path, "//") {
			target = ref.Path
			if ref.RawQuery != "" {
				target += "?" + ref.RawQuery
			}
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func oldInput(raw domain.RawPost) map[string]string {
	old := make(map[string]string)
	for _, key := range []string{"title", "description"} {
		if v, ok := raw.Values[key]; ok {
			old[key] = truncate(v, maxOldInput)
		}
	}
	return old
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
