// Package posts persists blog posts as one markdown file per slug plus an
// index of every post's metadata and content.
package posts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BorisDmv/md-blog-api/internal/logging"
	"github.com/BorisDmv/md-blog-api/internal/models"
	"github.com/BorisDmv/md-blog-api/internal/slugify"
)

var _ Index = (*JSONIndex)(nil)

// Store is the single writer for the posts directory and its index. Every
// mutation holds mu for the whole file+index sequence.
type Store struct {
	dir   string
	index Index
	log   logging.Logger
	now   func() time.Time

	mu sync.Mutex
}

type Option func(*Store)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(log logging.Logger) Option {
	return func(s *Store) { s.log = log }
}

// Open prepares dir and returns a store writing through index. A JSONIndex
// whose file does not exist yet is seeded empty.
func Open(dir string, index Index, opts ...Option) (*Store, error) {
	if index == nil {
		return nil, errors.New("posts: nil index")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create posts dir: %w", err)
	}
	if ji, ok := index.(*JSONIndex); ok {
		if err := ji.EnsureExists(); err != nil {
			return nil, err
		}
	}

	s := &Store{
		dir:   dir,
		index: index,
		log:   logging.Nop(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(slug string) string {
	return filepath.Join(s.dir, slug+".md")
}

// Create writes the markdown file and inserts the index entry. Timestamps
// are set to now.
func (s *Store) Create(ctx context.Context, post models.Post) (models.Post, error) {
	if !slugify.Valid(post.Slug) {
		return models.Post{}, fmt.Errorf("%w: %q", ErrInvalidSlug, post.Slug)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.index.Get(ctx, post.Slug); err == nil {
		return models.Post{}, fmt.Errorf("create %q: %w", post.Slug, ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return models.Post{}, fmt.Errorf("create %q: %w", post.Slug, err)
	}

	now := s.now()
	post.CreatedAt = now
	post.UpdatedAt = now

	if err := s.writeMarkdown(post.Slug, post.Content); err != nil {
		return models.Post{}, fmt.Errorf("create %q: %w", post.Slug, err)
	}
	if err := s.index.Insert(ctx, post); err != nil {
		if rmErr := os.Remove(s.path(post.Slug)); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.log.Error("rollback of markdown file failed", "slug", post.Slug, "error", rmErr)
		}
		return models.Post{}, fmt.Errorf("create %q: %w", post.Slug, err)
	}

	s.log.Info("post created", "slug", post.Slug, "author", post.Author)
	return post, nil
}

// Update replaces title, content and author of an indexed post. created_at is
// kept from the existing entry. A slug missing from the index is ErrNotFound
// and nothing is written.
func (s *Store) Update(ctx context.Context, post models.Post) (models.Post, error) {
	if !slugify.Valid(post.Slug) {
		return models.Post{}, fmt.Errorf("update %q: %w", post.Slug, ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.index.Get(ctx, post.Slug)
	if err != nil {
		return models.Post{}, fmt.Errorf("update %q: %w", post.Slug, err)
	}

	post.CreatedAt = existing.CreatedAt
	post.UpdatedAt = s.now()

	previous, readErr := os.ReadFile(s.path(post.Slug))
	if err := s.writeMarkdown(post.Slug, post.Content); err != nil {
		return models.Post{}, fmt.Errorf("update %q: %w", post.Slug, err)
	}
	if err := s.index.Replace(ctx, post); err != nil {
		if readErr == nil {
			if restoreErr := writeFileAtomic(s.path(post.Slug), previous, 0o644); restoreErr != nil {
				s.log.Error("restore of markdown file failed", "slug", post.Slug, "error", restoreErr)
			}
		}
		return models.Post{}, fmt.Errorf("update %q: %w", post.Slug, err)
	}

	s.log.Info("post updated", "slug", post.Slug, "author", post.Author)
	return post, nil
}

// Delete removes the index entry and the markdown file. It is ErrNotFound
// only when neither exists.
func (s *Store) Delete(ctx context.Context, slug string) error {
	if !slugify.Valid(slug) {
		return fmt.Errorf("delete %q: %w", slug, ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	indexErr := s.index.Remove(ctx, slug)
	if indexErr != nil && !errors.Is(indexErr, ErrNotFound) {
		return fmt.Errorf("delete %q: %w", slug, indexErr)
	}

	fileErr := os.Remove(s.path(slug))
	switch {
	case fileErr == nil:
	case errors.Is(fileErr, fs.ErrNotExist):
		if errors.Is(indexErr, ErrNotFound) {
			return fmt.Errorf("delete %q: %w", slug, ErrNotFound)
		}
		s.log.Warn("indexed post had no markdown file", "slug", slug)
	default:
		return fmt.Errorf("delete %q: %w: %v", slug, ErrFileIO, fileErr)
	}

	s.log.Info("post deleted", "slug", slug)
	return nil
}

// List returns every indexed post in insertion order.
func (s *Store) List(ctx context.Context) ([]models.Post, error) {
	posts, err := s.index.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// Read returns the raw markdown stored for slug.
func (s *Store) Read(ctx context.Context, slug string) (string, error) {
	if !slugify.Valid(slug) {
		return "", fmt.Errorf("read %q: %w", slug, ErrNotFound)
	}
	data, err := os.ReadFile(s.path(slug))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read %q: %w", slug, ErrNotFound)
		}
		return "", fmt.Errorf("read %q: %w: %v", slug, ErrFileIO, err)
	}
	return string(data), nil
}

// Exists reports whether slug is indexed or has a markdown file.
func (s *Store) Exists(ctx context.Context, slug string) (bool, error) {
	if _, err := s.index.Get(ctx, slug); err == nil {
		return true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if _, err := os.Stat(s.path(slug)); err == nil {
		return true, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("%w: %v", ErrFileIO, err)
	}
	return false, nil
}

func (s *Store) writeMarkdown(slug, content string) error {
	if err := writeFileAtomic(s.path(slug), []byte(content), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrFileIO, err)
	}
	return nil
}
