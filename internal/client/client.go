// Package client is a Go client for the postboard JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client talks to a postboard server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates a client for the server at baseURL (e.g.
// http://localhost:8080).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetToken sets the bearer token sent with every request. Deleting posts
// requires one.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the server address the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post is a post as returned by the API. Absent optional fields are empty.
type Post struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Image is a file to upload with a post.
type Image struct {
	Filename string
	Content  io.Reader
}

// PostInput holds the fields of a create or update. Nil fields are not sent.
type PostInput struct {
	Title       *string
	Description *string
	Image       *Image
}

// APIError is a non-2xx response. Fields is set for validation failures.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string][]string
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "API error (status %d): %s", e.StatusCode, e.Message)
	for _, name := range names {
		for _, msg := range e.Fields[name] {
			fmt.Fprintf(&b, "\n  %s: %s", name, msg)
		}
	}
	return b.String()
}

// ListPosts returns every post.
func (c *Client) ListPosts(ctx context.Context) ([]Post, error) {
	var posts []Post
	if err := c.do(ctx, http.MethodGet, "/api/posts", nil, "", &posts); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// GetPost returns a single post.
func (c *Client) GetPost(ctx context.Context, id int64) (*Post, error) {
	var post Post
	if err := c.do(ctx, http.MethodGet, postPath(id), nil, "", &post); err != nil {
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	return &post, nil
}

// CreatePost creates a post. Title is required by the server.
func (c *Client) CreatePost(ctx context.Context, in PostInput) (*Post, error) {
	body, contentType, err := encodeForm(in)
	if err != nil {
		return nil, err
	}

	var post Post
	if err := c.do(ctx, http.MethodPost, "/api/posts", body, contentType, &post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return &post, nil
}

// UpdatePost changes the given fields of a post.
func (c *Client) UpdatePost(ctx context.Context, id int64, in PostInput) (*Post, error) {
	body, contentType, err := encodeForm(in)
	if err != nil {
		return nil, err
	}

	var post Post
	if err := c.do(ctx, http.MethodPatch, postPath(id), body, contentType, &post); err != nil {
		return nil, fmt.Errorf("update post %d: %w", id, err)
	}
	return &post, nil
}

// DeletePost deletes a post. The client must carry a token.
func (c *Client) DeletePost(ctx context.Context, id int64) error {
	if c.token == "" {
		return fmt.Errorf("not authenticated: call SetToken first")
	}
	if err := c.do(ctx, http.MethodDelete, postPath(id), nil, "", nil); err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}
	return nil
}

func postPath(id int64) string {
	return "/api/posts/" + strconv.FormatInt(id, 10)
}

// encodeForm renders in as multipart/form-data so an image can travel with
// the text fields.
func encodeForm(in PostInput) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if in.Title != nil {
		if err := mw.WriteField("title", *in.Title); err != nil {
			return nil, "", fmt.Errorf("write title: %w", err)
		}
	}
	if in.Description != nil {
		if err := mw.WriteField("description", *in.Description); err != nil {
			return nil, "", fmt.Errorf("write description: %w", err)
		}
	}
	if in.Image != nil {
		part, err := mw.CreateFormFile("image", in.Image.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("create image part: %w", err)
		}
		if _, err := io.Copy(part, in.Image.Content); err != nil {
			return nil, "", fmt.Errorf("copy image: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	var payload struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Message == "" {
		return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{StatusCode: status, Message: payload.Message, Fields: payload.Errors}
}
