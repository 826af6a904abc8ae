package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/BorisDmv/md-blog-api/internal/models"
)

// JSONIndex keeps the index as a pretty-printed JSON array in a single file.
// Every mutation is a read-modify-write of the whole file under mu, finished
// with an atomic rename.
type JSONIndex struct {
	path string
	mu   sync.Mutex
}

func NewJSONIndex(path string) *JSONIndex {
	return &JSONIndex{path: path}
}

func (ix *JSONIndex) Path() string {
	return ix.path
}

// EnsureExists seeds an empty array when the index file is missing.
func (ix *JSONIndex) EnsureExists() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, err := os.Stat(ix.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrIndexRead, err)
	}
	return ix.write(nil)
}

func (ix *JSONIndex) List(ctx context.Context) ([]models.Post, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.read()
}

func (ix *JSONIndex) Get(ctx context.Context, slug string) (models.Post, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	posts, err := ix.read()
	if err != nil {
		return models.Post{}, err
	}
	if i := indexOf(posts, slug); i >= 0 {
		return posts[i], nil
	}
	return models.Post{}, ErrNotFound
}

func (ix *JSONIndex) Insert(ctx context.Context, post models.Post) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	posts, err := ix.readOrEmpty()
	if err != nil {
		return err
	}
	if indexOf(posts, post.Slug) >= 0 {
		return ErrExists
	}
	return ix.write(append(posts, post))
}

func (ix *JSONIndex) Replace(ctx context.Context, post models.Post) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	posts, err := ix.read()
	if err != nil {
		return err
	}
	i := indexOf(posts, post.Slug)
	if i < 0 {
		return ErrNotFound
	}
	posts[i] = post
	return ix.write(posts)
}

func (ix *JSONIndex) Remove(ctx context.Context, slug string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	posts, err := ix.read()
	if err != nil {
		return err
	}
	i := indexOf(posts, slug)
	if i < 0 {
		return ErrNotFound
	}
	return ix.write(append(posts[:i], posts[i+1:]...))
}

func (ix *JSONIndex) ReplaceAll(ctx context.Context, posts []models.Post) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.write(posts)
}

// read fails with ErrIndexRead when the file is missing; a missing index is
// not the same as an empty one.
func (ix *JSONIndex) read() ([]models.Post, error) {
	data, err := os.ReadFile(ix.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexRead, err)
	}
	var posts []models.Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexParse, err)
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}

// readOrEmpty treats a missing file as an empty index, for inserts.
func (ix *JSONIndex) readOrEmpty() ([]models.Post, error) {
	if _, err := os.Stat(ix.path); errors.Is(err, fs.ErrNotExist) {
		return []models.Post{}, nil
	}
	return ix.read()
}

func (ix *JSONIndex) write(posts []models.Post) error {
	if posts == nil {
		posts = []models.Post{}
	}
	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexSerialize, err)
	}
	if err := writeFileAtomic(ix.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	return nil
}

func indexOf(posts []models.Post, slug string) int {
	for i := range posts {
		if posts[i].Slug == slug {
			return i
		}
	}
	return -1
}
