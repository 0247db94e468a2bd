// Package postgres implements domain.PostRepository on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	title       VARCHAR(255) NOT NULL CHECK (title <> ''),
	description TEXT,
	image_url   VARCHAR(255),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const postColumns = `id, title, description, image_url, created_at, updated_at`

// Repository implements domain.PostRepository using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository connects to PostgreSQL at the given URL with query tracing
// enabled, verifies the connection, and returns a new Repository. The caller
// should call Close when the repository is no longer needed.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{pool: pool, now: time.Now}, nil
}

// Close closes the connection pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Migrate creates the posts table if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create posts table: %w", err)
	}
	return nil
}

// CreatePost inserts a new post.
func (r *Repository) CreatePost(ctx context.Context, fields domain.PostFields) (*domain.Post, error) {
	if fields.Title == nil {
		return nil, fmt.Errorf("create post: title is required")
	}
	now := r.now().UTC()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO posts (title, description, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING `+postColumns,
		*fields.Title,
		nullable(fields.Description),
		nullable(fields.ImageURL),
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
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if fields.Title != nil {
		set("title", *fields.Title)
	}
	if fields.Description != nil {
		set("description", nullable(fields.Description))
	}
	if fields.ImageURL != nil {
		set("image_url", nullable(fields.ImageURL))
	}
	set("updated_at", r.now().UTC())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE posts SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), postColumns)

	post, err := scanPost(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update post %d: %w", id, err)
	}
	return post, nil
}

// GetPost retrieves a post by ID.
func (r *Repository) GetPost(ctx context.Context, id int64) (*domain.Post, error) {
	post, err := scanPost(r.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select post %d: %w", id, err)
	}
	return post, nil
}

// ListPosts returns all posts ordered by ID.
func (r *Repository) ListPosts(ctx context.Context) ([]domain.Post, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+postColumns+` FROM posts ORDER BY id`)
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
	tag, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ImagePaths returns every non-null image_url.
func (r *Repository) ImagePaths(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT image_url FROM posts WHERE image_url IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query image paths: %w", err)
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect image paths: %w", err)
	}
	return paths, nil
}

func scanPost(row pgx.Row) (*domain.Post, error) {
	var (
		p                     domain.Post
		description, imageURL *string
	)
	if err := row.Scan(&p.ID, &p.Title, &description, &imageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if description != nil {
		p.Description = *description
	}
	if imageURL != nil {
		p.ImageURL = *imageURL
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// nullable stores empty optional text as NULL.
func nullable(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
