package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/blackmichael/postboard/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestClient_ListPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/posts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":1,"title":"a","description":null,"image_url":"images/x.jpg"},{"id":2,"title":"b","description":"d","image_url":null}]`)
	}))
	defer srv.Close()

	posts, err := NewClient(srv.URL + "/").ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "images/x.jpg", posts[0].ImageURL)
	assert.Empty(t, posts[0].Description)
	assert.Equal(t, "d", posts[1].Description)
}

func TestClient_CreatePostMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "hello", r.FormValue("title"))
		_, hasDesc := r.MultipartForm.Value["description"]
		assert.False(t, hasDesc)

		f, fh, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "photo.png", fh.Filename)
		assert.Equal(t, "PNGDATA", string(data))

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":5,"title":"hello","image_url":"images/abc.png"}`)
	}))
	defer srv.Close()

	post, err := NewClient(srv.URL).CreatePost(context.Background(), PostInput{
		Title: ptr("hello"),
		Image: &Image{Filename: "photo.png", Content: strings.NewReader("PNGDATA")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), post.ID)
	assert.Equal(t, "images/abc.png", post.ImageURL)
}

func TestClient_ValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"message": "The title field is required.",
			"errors":  map[string][]string{"title": {"The title field is required."}},
		})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).UpdatePost(context.Background(), 3, PostInput{Title: ptr("")})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, []string{"The title field is required."}, apiErr.Fields["title"])
	assert.Contains(t, err.Error(), "title: The title field is required.")
}

func TestClient_DeletePost(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.Error(t, c.DeletePost(context.Background(), 9))

	c.SetToken("tok")
	require.NoError(t, c.DeletePost(context.Background(), 9))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/api/posts/9", gotPath)
}

func TestClient_PlainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetPost(context.Background(), 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestWatcher_ReceivesEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := events.NewHub(nil, logger)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /api/posts/events", hub)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	received := make(chan Event, 1)
	w, err := NewClient(srv.URL).NewWatcher(func(ev Event) { received <- ev }, logger)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(w.url, "ws://"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, hub.PublishPostEvent(context.Background(), domain.PostEvent{
		Type:       domain.EventPostCreated,
		Post:       domain.Post{ID: 4, Title: "watched"},
		OccurredAt: time.Now().UTC(),
	}))

	select {
	case ev := <-received:
		assert.Equal(t, "post.created", ev.Type)
		assert.Equal(t, int64(4), ev.Post.ID)
		assert.Equal(t, "watched", ev.Post.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_StopsWhileReconnecting(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := NewClient("http://127.0.0.1:1").NewWatcher(func(Event) {}, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Start(ctx), context.DeadlineExceeded)
}
