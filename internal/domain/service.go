package domain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// PostService is the core domain service. It validates post input, stores
// images, persists posts and announces changes.
type PostService struct {
	repo      PostRepository
	images    ImageStore
	publisher EventPublisher
	rules     Rules
	logger    *slog.Logger
	now       func() time.Time
}

// NewPostService creates a PostService. publisher may be nil.
func NewPostService(repo PostRepository, images ImageStore, publisher EventPublisher, rules Rules, logger *slog.Logger) (*PostService, error) {
	if repo == nil {
		return nil, fmt.Errorf("post repository is required")
	}
	if images == nil {
		return nil, fmt.Errorf("image store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostService{
		repo:      repo,
		images:    images,
		publisher: publisher,
		rules:     rules,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Rules returns the validation limits the service applies.
func (s *PostService) Rules() Rules {
	return s.rules
}

// ListPosts returns every post.
func (s *PostService) ListPosts(ctx context.Context) ([]Post, error) {
	posts, err := s.repo.ListPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// GetPost returns a single post or ErrNotFound.
func (s *PostService) GetPost(ctx context.Context, id int64) (*Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	return post, nil
}

// OpenImage streams a stored image.
func (s *PostService) OpenImage(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.images.Open(ctx, path)
}

// CreatePost validates raw, stores the image if one was sent and inserts the
// post. A validation failure is returned as *ValidationError with nothing
// written.
func (s *PostService) CreatePost(ctx context.Context, raw RawPost) (*Post, error) {
	in, err := ValidateStore(raw, s.rules)
	if err != nil {
		return nil, err
	}

	fields := PostFields{Title: in.Title, Description: in.Description}

	imagePath, err := s.storeImage(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	if imagePath != "" {
		fields.ImageURL = &imagePath
	}

	post, err := s.repo.CreatePost(ctx, fields)
	if err != nil {
		s.discardImage(ctx, imagePath, "create failed")
		return nil, fmt.Errorf("create post: %w", err)
	}

	s.logger.Info("post created", "id", post.ID, "image_url", post.ImageURL)
	s.publish(ctx, EventPostCreated, post)
	return post, nil
}

// UpdatePost applies the sent fields to an existing post. The post is looked
// up before any image is written so a missing ID never leaves a file behind.
func (s *PostService) UpdatePost(ctx context.Context, id int64, raw RawPost) (*Post, error) {
	in, err := ValidateUpdate(raw, s.rules)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}

	fields := PostFields{Title: in.Title, Description: in.Description}

	imagePath, err := s.storeImage(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	if imagePath != "" {
		fields.ImageURL = &imagePath
	}

	post, err := s.repo.UpdatePost(ctx, id, fields)
	if err != nil {
		s.discardImage(ctx, imagePath, "update failed")
		return nil, fmt.Errorf("update post %d: %w", id, err)
	}

	if imagePath != "" && existing.ImageURL != "" && existing.ImageURL != imagePath {
		s.discardImage(ctx, existing.ImageURL, "image replaced")
	}

	s.logger.Info("post updated", "id", post.ID, "image_url", post.ImageURL)
	s.publish(ctx, EventPostUpdated, post)
	return post, nil
}

// DeletePost removes a post on behalf of actorID. An empty actorID yields
// ErrUnauthenticated and leaves the post untouched.
func (s *PostService) DeletePost(ctx context.Context, actorID string, id int64) error {
	if actorID == "" {
		return ErrUnauthenticated
	}

	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return fmt.Errorf("get post %d: %w", id, err)
	}

	if err := s.repo.DeletePost(ctx, id); err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}

	if post.ImageURL != "" {
		s.discardImage(ctx, post.ImageURL, "post deleted")
	}

	s.logger.Info("post deleted", "id", id, "actor", actorID)
	s.publish(ctx, EventPostDeleted, post)
	return nil
}

// SweepOrphanedImages removes stored images that no post references and that
// are older than grace. The grace period keeps files whose post row is still
// being written. Returns the number of files removed.
func (s *PostService) SweepOrphanedImages(ctx context.Context, grace time.Duration) (int, error) {
	stored, err := s.images.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list images: %w", err)
	}
	if len(stored) == 0 {
		return 0, nil
	}

	paths, err := s.repo.ImagePaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("list image paths: %w", err)
	}
	referenced := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		referenced[p] = struct{}{}
	}

	cutoff := s.now().Add(-grace)
	removed := 0
	for _, img := range stored {
		if _, ok := referenced[img.Path]; ok {
			continue
		}
		if img.ModTime.After(cutoff) {
			continue
		}
		if err := s.images.Remove(ctx, img.Path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", img.Path, err)
		}
		removed++
	}
	return removed, nil
}

// StartSweepJob runs SweepOrphanedImages immediately and then at the given
// interval. It blocks until ctx is cancelled.
func (s *PostService) StartSweepJob(ctx context.Context, interval, grace time.Duration) {
	s.runSweep(ctx, grace)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSweep(ctx, grace)
		}
	}
}

func (s *PostService) runSweep(ctx context.Context, grace time.Duration) {
	removed, err := s.SweepOrphanedImages(ctx, grace)
	if err != nil {
		s.logger.Error("image sweep failed", "removed", removed, "error", err)
	} else if removed > 0 {
		s.logger.Info("image sweep complete", "removed", removed)
	}
}

func (s *PostService) storeImage(ctx context.Context, upload *Upload) (string, error) {
	if upload == nil {
		return "", nil
	}
	path, err := s.images.Store(ctx, upload)
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return path, nil
}

// discardImage removes a file that no committed post points at. Failures are
// only logged; the sweeper collects whatever is left.
func (s *PostService) discardImage(ctx context.Context, path, reason string) {
	if path == "" {
		return
	}
	if err := s.images.Remove(context.WithoutCancel(ctx), path); err != nil {
		s.logger.Warn("failed to remove image", "path", path, "reason", reason, "error", err)
		return
	}
	s.logger.Debug("image removed", "path", path, "reason", reason)
}

func (s *PostService) publish(ctx context.Context, typ EventType, post *Post) {
	if s.publisher == nil {
		return
	}
	event := PostEvent{Type: typ, Post: *post, OccurredAt: s.now().UTC()}
	if err := s.publisher.PublishPostEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish post event", "type", typ, "id", post.ID, "error", err)
	}
}
