package httpserver

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validationResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func TestAPI_ListPosts(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodGet, "/api/posts", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]postResponse](t, resp))

	first := env.seed(t, "first")
	desc := "second description"
	second := env.seed(t, "second", func(f *domain.PostFields) { f.Description = &desc })

	resp = env.do(t, http.MethodGet, "/api/posts", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	posts := decode[[]postResponse](t, resp)
	require.Len(t, posts, 2)
	assert.Equal(t, first.ID, posts[0].ID)
	assert.Nil(t, posts[0].Description)
	assert.Nil(t, posts[0].ImageURL)
	assert.Equal(t, second.ID, posts[1].ID)
	require.NotNil(t, posts[1].Description)
	assert.Equal(t, desc, *posts[1].Description)
}

func TestAPI_CreatePostWithImage(t *testing.T) {
	env := newTestEnv(t, 0)

	body, ct := multipartBody(t, map[string]string{
		"title":       "test title",
		"description": "test description",
	}, jpegFile("my_image.jpg", 128))
	resp := env.do(t, http.MethodPost, "/api/posts", body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[postResponse](t, resp)

	posts := env.posts(t)
	require.Len(t, posts, 1)
	stored := posts[0]

	assert.Equal(t, stored.ID, created.ID)
	assert.Equal(t, "test title", stored.Title)
	assert.Equal(t, "test description", stored.Description)
	assert.Regexp(t, `^images/[0-9a-f]{32}\.jpg$`, stored.ImageURL)
	require.NotNil(t, created.ImageURL)
	assert.Equal(t, stored.ImageURL, *created.ImageURL)
	assert.True(t, env.imageExists(stored.ImageURL))
}

func TestAPI_CreatePostWithoutImage(t *testing.T) {
	env := newTestEnv(t, 0)

	body, ct := formBody(map[string]string{"title": "plain", "image": ""})
	resp := env.do(t, http.MethodPost, "/api/posts", body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[postResponse](t, resp)

	assert.Equal(t, "plain", created.Title)
	assert.Nil(t, created.Description)
	assert.Nil(t, created.ImageURL)
	assert.Len(t, env.posts(t), 1)
}

func TestAPI_CreatePostJSON(t *testing.T) {
	env := newTestEnv(t, 0)

	body, ct := jsonBody(t, map[string]any{"title": "from json", "description": "d", "image": nil})
	resp := env.do(t, http.MethodPost, "/api/posts", body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "from json", decode[postResponse](t, resp).Title)
}

func TestAPI_CreatePostValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    func(t *testing.T) (string, string)
		field   string
		message string
	}{
		{
			name: "title required",
			body: func(*testing.T) (string, string) {
				return "title=&description=test+description&image=", "application/x-www-form-urlencoded"
			},
			field:   "title",
			message: "The title field is required.",
		},
		{
			name: "image must be a file",
			body: func(*testing.T) (string, string) {
				return "title=title&description=test+description&image=jdjdhf", "application/x-www-form-urlencoded"
			},
			field:   "image",
			message: "The image field must be a file.",
		},
		{
			name: "json image must be a file",
			body: func(*testing.T) (string, string) {
				return `{"title":"title","image":{"name":"x.jpg"}}`, "application/json"
			},
			field:   "image",
			message: "The image field must be a file.",
		},
		{
			name: "title too long",
			body: func(*testing.T) (string, string) {
				return `{"title":"` + strings.Repeat("a", 256) + `"}`, "application/json"
			},
			field:   "title",
			message: "The title field must not be greater than 255 characters.",
		},
		{
			name: "json title must be a string",
			body: func(*testing.T) (string, string) {
				return `{"title":42}`, "application/json"
			},
			field:   "title",
			message: "The title field must be a string.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 0)

			body, ct := tt.body(t)
			resp := env.do(t, http.MethodPost, "/api/posts", strings.NewReader(body), ct)
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

			got := decode[validationResponse](t, resp)
			assert.Equal(t, tt.message, got.Message)
			assert.Equal(t, []string{tt.message}, got.Errors[tt.field])
			assert.Empty(t, env.posts(t))
		})
	}
}

func TestAPI_CreatePostImageTooLarge(t *testing.T) {
	env := newTestEnv(t, 1024)

	body, ct := multipartBody(t, map[string]string{"title": "big"}, jpegFile("big.jpg", 2048))
	resp := env.do(t, http.MethodPost, "/api/posts", body, ct)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	got := decode[validationResponse](t, resp)
	assert.Equal(t, []string{"The image field must not be greater than 1 kilobytes."}, got.Errors["image"])
	assert.Empty(t, env.posts(t))

	stored, err := env.images.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAPI_CreatePostBodyOverLimit(t *testing.T) {
	env := newTestEnv(t, 1024)

	// Larger than the image limit plus the form allowance.
	body, ct := multipartBody(t, map[string]string{"title": "huge"}, jpegFile("huge.jpg", 1024+formOverhead+1))
	resp := env.do(t, http.MethodPost, "/api/posts", body, ct)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decode[validationResponse](t, resp).Errors, "image")
	assert.Empty(t, env.posts(t))
}

func TestAPI_CreatePostUnsupportedMedia(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodPost, "/api/posts", strings.NewReader("title"), "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestAPI_CreatePostMalformedJSON(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodPost, "/api/posts", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetPost(t *testing.T) {
	env := newTestEnv(t, 0)
	post := env.seed(t, "hello")

	resp := env.do(t, http.MethodGet, "/api/posts/"+itoa(post.ID), nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[postResponse](t, resp)
	assert.Equal(t, post.ID, got.ID)
	assert.Equal(t, "hello", got.Title)

	for _, path := range []string{"/api/posts/999", "/api/posts/abc", "/api/posts/-1"} {
		resp := env.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestAPI_UpdatePost(t *testing.T) {
	env := newTestEnv(t, 0)
	desc := "original description"
	post := env.seed(t, "original", func(f *domain.PostFields) { f.Description = &desc })

	body, ct := multipartBody(t, map[string]string{
		"title":       "title edited",
		"description": "test description edited",
	}, jpegFile("my_image.jpg", 32))
	resp := env.do(t, http.MethodPatch, "/api/posts/"+itoa(post.ID), body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[postResponse](t, resp)
	assert.Equal(t, post.ID, got.ID)
	assert.Equal(t, "title edited", got.Title)
	require.NotNil(t, got.Description)
	assert.Equal(t, "test description edited", *got.Description)
	require.NotNil(t, got.ImageURL)
	assert.True(t, strings.HasPrefix(*got.ImageURL, "images/"))
	assert.True(t, env.imageExists(*got.ImageURL))
	assert.Len(t, env.posts(t), 1)
}

func TestAPI_UpdatePostPartial(t *testing.T) {
	env := newTestEnv(t, 0)
	desc := "keep me"
	post := env.seed(t, "before", func(f *domain.PostFields) { f.Description = &desc })

	body, ct := jsonBody(t, map[string]string{"title": "after"})
	resp := env.do(t, http.MethodPut, "/api/posts/"+itoa(post.ID), body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[postResponse](t, resp)
	assert.Equal(t, "after", got.Title)
	require.NotNil(t, got.Description)
	assert.Equal(t, "keep me", *got.Description)

	body, ct = jsonBody(t, map[string]string{"title": "  "})
	resp = env.do(t, http.MethodPatch, "/api/posts/"+itoa(post.ID), body, ct)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "after", env.posts(t)[0].Title)
}

func TestAPI_UpdatePostReplacesImage(t *testing.T) {
	env := newTestEnv(t, 0)

	body, ct := multipartBody(t, map[string]string{"title": "with image"}, jpegFile("a.jpg", 16))
	resp := env.do(t, http.MethodPost, "/api/posts", body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[postResponse](t, resp)
	oldImage := *created.ImageURL

	body, ct = multipartBody(t, nil, &testFile{field: "image", name: "b.png", contentType: "image/png", content: []byte("png")})
	resp = env.do(t, http.MethodPatch, "/api/posts/"+itoa(created.ID), body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[postResponse](t, resp)

	require.NotNil(t, updated.ImageURL)
	assert.NotEqual(t, oldImage, *updated.ImageURL)
	assert.True(t, strings.HasSuffix(*updated.ImageURL, ".png"))
	assert.True(t, env.imageExists(*updated.ImageURL))
	assert.False(t, env.imageExists(oldImage))
}

func TestAPI_UpdateMissingPost(t *testing.T) {
	env := newTestEnv(t, 0)

	body, ct := multipartBody(t, map[string]string{"title": "x"}, jpegFile("a.jpg", 16))
	resp := env.do(t, http.MethodPatch, "/api/posts/42", body, ct)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	stored, err := env.images.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAPI_DeletePost(t *testing.T) {
	env := newTestEnv(t, 0)

	body, ct := multipartBody(t, map[string]string{"title": "doomed"}, jpegFile("a.jpg", 16))
	resp := env.do(t, http.MethodPost, "/api/posts", body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[postResponse](t, resp)
	path := "/api/posts/" + itoa(created.ID)

	resp = env.do(t, http.MethodDelete, path, nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Len(t, env.posts(t), 1)

	resp = env.do(t, http.MethodDelete, path, nil, "", withBearer("not-a-token"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Len(t, env.posts(t), 1)

	resp = env.do(t, http.MethodDelete, path, nil, "", withBearer(env.token(t)))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, env.posts(t))
	assert.False(t, env.imageExists(*created.ImageURL))

	resp = env.do(t, http.MethodDelete, path, nil, "", withBearer(env.token(t)))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CORS(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodOptions, "/api/posts", nil, "",
		withHeader("Origin", "https://blog.example"),
		withHeader("Access-Control-Request-Method", http.MethodPost),
	)
	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAPI_EventStream(t *testing.T) {
	env := newTestEnv(t, 0)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/posts/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	body, ct := jsonBody(t, map[string]string{"title": "live"})
	resp := env.do(t, http.MethodPost, "/api/posts", body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string `json:"type"`
		Post struct {
			Title string `json:"title"`
		} `json:"post"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "post.created", msg.Type)
	assert.Equal(t, "live", msg.Post.Title)
}
