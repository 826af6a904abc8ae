package posts

import (
	"context"

	"github.com/BorisDmv/md-blog-api/internal/models"
)

// Index holds the metadata and content of every post, keyed by slug. It
// mirrors the markdown files; Store keeps the two in step.
//
// Implementations return ErrNotFound for unknown slugs and ErrExists when
// Insert hits an existing slug. List returns posts in insertion order.
type Index interface {
	List(ctx context.Context) ([]models.Post, error)
	Get(ctx context.Context, slug string) (models.Post, error)
	Insert(ctx context.Context, post models.Post) error
	Replace(ctx context.Context, post models.Post) error
	Remove(ctx context.Context, slug string) error
	ReplaceAll(ctx context.Context, posts []models.Post) error
}
