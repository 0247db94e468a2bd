// Package sqlite implements domain.PostRepository on SQLite using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT    NOT NULL CHECK (title <> ''),
	description TEXT,
	image_url   TEXT,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
)`

const postColumns = `id, title, description, image_url, created_at, updated_at`

// Repository implements domain.PostRepository using SQLite.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository opens the SQLite database at path, verifies the connection
// and returns a new Repository. The pool is limited to one connection so
// writes are serialized by database/sql rather than by SQLITE_BUSY retries.
func NewRepository(path string) (*Repository, error) {
	dsn := path
	if !strings.Contains(dsn, "_pragma") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Migrate creates the posts table if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create posts table: %w", err)
	}
	return nil
}

// CreatePost inserts a new post.
func (r *Repository) CreatePost(ctx context.Context, fields domain.PostFields) (*domain.Post, error) {
	if fields.Title == nil {
		return nil, fmt.Errorf("create post: title is required")
	}
	now := r.now().UTC().UnixMilli()

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO posts (title, description, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+postColumns,
		*fields.Title,
		nullable(fields.Description),
		nullable(fields.ImageURL),
		now,
		now,
	)
	post, err := scanPost(row)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

// UpdatePost applies the non-nil fields and bumps updated_at.
func (r *Repository) UpdatePost(ctx context.Context, id int64, fields domain.PostFields) (*domain.Post, error) {
	var (
		sets []string
		args []any
	)
	if fields.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *fields.Title)
	}
	if fields.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullable(fields.Description))
	}
	if fields.ImageURL != nil {
		sets = append(sets, "image_url = ?")
		args = append(args, nullable(fields.ImageURL))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now().UTC().UnixMilli(), id)

	row := r.db.QueryRowContext(ctx,
		`UPDATE posts SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING `+postColumns,
		args...,
	)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update post %d: %w", id, err)
	}
	return post, nil
}

// GetPost retrieves a post by ID.
func (r *Repository) GetPost(ctx context.Context, id int64) (*domain.Post, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select post %d: %w", id, err)
	}
	return post, nil
}

// ListPosts returns all posts ordered by ID.
func (r *Repository) ListPosts(ctx context.Context) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []domain.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// DeletePost removes a post by ID.
func (r *Repository) DeletePost(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ImagePaths returns every non-null image_url.
func (r *Repository) ImagePaths(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT image_url FROM posts WHERE image_url IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query image paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan image path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate image paths: %w", err)
	}
	return paths, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (*domain.Post, error) {
	var (
		p                     domain.Post
		description, imageURL sql.NullString
		createdAt, updatedAt  int64
	)
	if err := s.Scan(&p.ID, &p.Title, &description, &imageURL, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Description = description.String
	p.ImageURL = imageURL.String
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &p, nil
}

// nullable stores empty optional text as NULL.
func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
