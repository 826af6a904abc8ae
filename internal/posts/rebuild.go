package posts

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/frontmatter"

	"github.com/BorisDmv/md-blog-api/internal/models"
	"github.com/BorisDmv/md-blog-api/internal/slugify"
)

type frontMatter struct {
	Title   string    `yaml:"title"`
	Author  string    `yaml:"author"`
	Date    time.Time `yaml:"date"`
	Updated time.Time `yaml:"updated"`
}

// Rebuild regenerates the whole index from the markdown files in the posts
// directory. Slugs already indexed keep their metadata; new files take it
// from optional YAML front matter, falling back to the first "# " heading,
// defaultAuthor and the file's modification time. It returns the number of
// indexed posts.
func (s *Store) Rebuild(ctx context.Context, defaultAuthor string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := map[string]models.Post{}
	if existing, err := s.index.List(ctx); err == nil {
		for _, p := range existing {
			known[p.Slug] = p
		}
	} else {
		s.log.Warn("existing index unreadable, rebuilding from files only", "error", err)
	}

	paths, err := filepath.Glob(filepath.Join(s.dir, "*.md"))
	if err != nil {
		return 0, fmt.Errorf("rebuild: %w", err)
	}
	sort.Strings(paths)

	rebuilt := make([]models.Post, 0, len(paths))
	for _, path := range paths {
		slug := strings.TrimSuffix(filepath.Base(path), ".md")
		if !slugify.Valid(slug) {
			s.log.Warn("skipping markdown file with invalid slug", "path", path)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("rebuild %q: %w: %v", slug, ErrFileIO, err)
		}

		if prev, ok := known[slug]; ok {
			prev.Content = string(data)
			rebuilt = append(rebuilt, prev)
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			return 0, fmt.Errorf("rebuild %q: %w: %v", slug, ErrFileIO, err)
		}
		rebuilt = append(rebuilt, postFromFile(slug, data, info.ModTime().UTC(), defaultAuthor))
	}

	sort.SliceStable(rebuilt, func(i, j int) bool {
		return rebuilt[i].CreatedAt.Before(rebuilt[j].CreatedAt)
	})

	if err := s.index.ReplaceAll(ctx, rebuilt); err != nil {
		return 0, fmt.Errorf("rebuild: %w", err)
	}
	s.log.Info("index rebuilt", "posts", len(rebuilt))
	return len(rebuilt), nil
}

func postFromFile(slug string, data []byte, modified time.Time, defaultAuthor string) models.Post {
	var meta frontMatter
	body, err := frontmatter.Parse(bytes.NewReader(data), &meta)
	if err != nil {
		body = data
		meta = frontMatter{}
	}

	post := models.Post{
		Slug:      slug,
		Title:     meta.Title,
		Author:    meta.Author,
		CreatedAt: meta.Date.UTC(),
		UpdatedAt: meta.Updated.UTC(),
		Content:   string(data),
	}
	if post.Title == "" {
		post.Title = firstHeading(body)
	}
	if post.Title == "" {
		post.Title = slug
	}
	if post.Author == "" {
		post.Author = defaultAuthor
	}
	if meta.Date.IsZero() {
		post.CreatedAt = modified
	}
	if meta.Updated.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	return post
}

func firstHeading(body []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
