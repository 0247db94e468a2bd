// Package domain holds the post model, its validation rules and the service
// that keeps the repository and image storage consistent.
package domain

import (
	"io"
	"time"
)

// Post is a blog post as stored by a PostRepository.
type Post struct {
	// ID is assigned by the repository on create and never changes.
	ID int64

	// Title is never empty for a persisted post.
	Title string

	// Description is optional; empty means absent.
	Description string

	// ImageURL is the storage-relative path of the post image (e.g.
	// images/3f2a....jpg), or empty when no image was uploaded.
	ImageURL string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PostFields carries column values for a create or a partial update. A nil
// field is left untouched on update.
type PostFields struct {
	Title       *string
	Description *string
	ImageURL    *string
}

// Upload is an uploaded file as handed over by a presentation adapter.
type Upload struct {
	// Filename is the client-supplied name, used only for its extension.
	Filename string

	// ContentType is the declared MIME type, if any.
	ContentType string

	// Size is the payload length in bytes.
	Size int64

	// Content streams the payload. The adapter owns closing it.
	Content io.Reader
}

// RawPost is the untrusted field mapping of a create or update request. Only
// keys present in the request appear in the maps.
type RawPost struct {
	Values map[string]string
	Files  map[string]*Upload
}

// PostInput is the outcome of a successful validation.
type PostInput struct {
	Title       *string
	Description *string
	Image       *Upload
}

// StoredImage describes a file held by an ImageStore.
type StoredImage struct {
	Path    string
	ModTime time.Time
}
