package domain

import (
	"context"
	"io"
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	// CreatePost inserts a new post, assigning its ID and timestamps.
	CreatePost(ctx context.Context, fields PostFields) (*Post, error)

	// UpdatePost applies the non-nil fields to the post with the given ID and
	// returns the updated post. Returns ErrNotFound if no such post exists.
	UpdatePost(ctx context.Context, id int64, fields PostFields) (*Post, error)

	// GetPost returns a single post or ErrNotFound.
	GetPost(ctx context.Context, id int64) (*Post, error)

	// ListPosts returns every post in insertion order.
	ListPosts(ctx context.Context) ([]Post, error)

	// DeletePost removes a post by ID. Returns ErrNotFound if absent.
	DeletePost(ctx context.Context, id int64) error

	// ImagePaths returns every image path currently referenced by a post.
	ImagePaths(ctx context.Context) ([]string, error)
}

// ImageStore writes and reads post images.
type ImageStore interface {
	// Store durably writes the upload under the images prefix and returns its
	// relative path. Every call creates a new file.
	Store(ctx context.Context, upload *Upload) (string, error)

	// Open returns a reader for a previously stored path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Remove deletes a stored path. Removing a missing path is not an error.
	Remove(ctx context.Context, path string) error

	// List returns every stored image.
	List(ctx context.Context) ([]StoredImage, error)
}

// EventPublisher receives post change notifications after they are persisted.
type EventPublisher interface {
	PublishPostEvent(ctx context.Context, event PostEvent) error
}
