// Package storage implements domain.ImageStore on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/google/uuid"
)

// ImagesDir is the prefix every stored image path starts with.
const ImagesDir = "images"

// ErrInvalidPath is returned for paths outside the images prefix.
var ErrInvalidPath = errors.New("invalid image path")

// fallbackExt maps common image content types to an extension when the
// uploaded filename has none.
var fallbackExt = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// Local stores images below a root directory.
type Local struct {
	root    string
	newName func() string
	syncDir func(dir string) error
}

// NewLocal creates the images directory under root if needed.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, ImagesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	return &Local{
		root: root,
		newName: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
		syncDir: syncDir,
	}, nil
}

// Root returns the directory the store writes below.
func (l *Local) Root() string {
	return l.root
}

// Store writes the upload to images/<random hex><ext>. The file is written to
// a temporary name, synced and renamed, so the returned path always refers to
// a complete file.
func (l *Local) Store(ctx context.Context, upload *domain.Upload) (string, error) {
	if upload == nil || upload.Content == nil {
		return "", fmt.Errorf("store image: empty upload")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rel := path.Join(ImagesDir, l.newName()+extension(upload))
	dir := filepath.Join(l.root, ImagesDir)

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, upload.Content); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close image: %w", err)
	}
	final := filepath.Join(l.root, filepath.FromSlash(rel))
	if err := os.Rename(tmpName, final); err != nil {
		return "", fmt.Errorf("rename image: %w", err)
	}
	committed = true

	// A failed Store leaves no file behind.
	if err := l.syncDir(dir); err != nil {
		os.Remove(final)
		return "", fmt.Errorf("sync images dir: %w", err)
	}
	return rel, nil
}

// Open returns the stored file at rel.
func (l *Local) Open(_ context.Context, rel string) (io.ReadCloser, error) {
	full, err := l.resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	return f, nil
}

// Remove deletes the file at rel. A missing file is not an error.
func (l *Local) Remove(_ context.Context, rel string) error {
	full, err := l.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// List returns every committed image. Temporary upload files are skipped.
func (l *Local) List(_ context.Context) ([]domain.StoredImage, error) {
	entries, err := os.ReadDir(filepath.Join(l.root, ImagesDir))
	if err != nil {
		return nil, fmt.Errorf("read images dir: %w", err)
	}

	images := make([]domain.StoredImage, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		images = append(images, domain.StoredImage{
			Path:    path.Join(ImagesDir, e.Name()),
			ModTime: info.ModTime(),
		})
	}
	return images, nil
}

// resolve maps a relative image path to a filesystem path, rejecting anything
// that is not a plain file name directly below the images prefix.
func (l *Local) resolve(rel string) (string, error) {
	dir, name := path.Split(rel)
	if dir != ImagesDir+"/" || name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") || strings.ContainsRune(name, '\\') {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return filepath.Join(l.root, ImagesDir, name), nil
}

func extension(u *domain.Upload) string {
	ext := strings.ToLower(filepath.Ext(u.Filename))
	if ext == "" || !isSafeExt(ext) {
		ct, _, _ := strings.Cut(u.ContentType, ";")
		return fallbackExt[strings.TrimSpace(strings.ToLower(ct))]
	}
	return ext
}

func isSafeExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
