package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BorisDmv/md-blog-api/internal/models"
	"github.com/BorisDmv/md-blog-api/internal/posts"
)

var _ posts.Index = (*SQLite)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS posts (
	position INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLite is a posts.Index stored in a single SQLite file. Timestamps are
// kept as unix nanoseconds.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. ":memory:" works for tests.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection: SQLite has a single writer and ":memory:" is per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create posts table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (models.Post, error) {
	var (
		post             models.Post
		created, updated int64
	)
	if err := row.Scan(&post.Slug, &post.Title, &post.Author, &post.Content, &created, &updated); err != nil {
		return models.Post{}, err
	}
	post.CreatedAt = time.Unix(0, created).UTC()
	post.UpdatedAt = time.Unix(0, updated).UTC()
	return post, nil
}

func (s *SQLite) List(ctx context.Context) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slug, title, author, content, created_at, updated_at
		FROM posts
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", posts.ErrIndexRead, err)
	}
	defer rows.Close()

	out := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan post: %v", posts.ErrIndexParse, err)
		}
		out = append(out, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", posts.ErrIndexRead, err)
	}
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, slug string) (models.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT slug, title, author, content, created_at, updated_at
		FROM posts
		WHERE slug = ?`, slug)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Post{}, posts.ErrNotFound
		}
		return models.Post{}, fmt.Errorf("%w: get post by slug: %v", posts.ErrIndexRead, err)
	}
	return post, nil
}

func (s *SQLite) Insert(ctx context.Context, post models.Post) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (slug, title, author, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO NOTHING`,
		post.Slug, post.Title, post.Author, post.Content,
		post.CreatedAt.UnixNano(), post.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: insert post: %v", posts.ErrIndexWrite, err)
	}
	return requireRow(res, posts.ErrExists)
}

func (s *SQLite) Replace(ctx context.Context, post models.Post) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET title = ?, author = ?, content = ?, created_at = ?, updated_at = ?
		WHERE slug = ?`,
		post.Title, post.Author, post.Content,
		post.CreatedAt.UnixNano(), post.UpdatedAt.UnixNano(), post.Slug)
	if err != nil {
		return fmt.Errorf("%w: update post: %v", posts.ErrIndexWrite, err)
	}
	return requireRow(res, posts.ErrNotFound)
}

func (s *SQLite) Remove(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("%w: delete post: %v", posts.ErrIndexWrite, err)
	}
	return requireRow(res, posts.ErrNotFound)
}

func (s *SQLite) ReplaceAll(ctx context.Context, all []models.Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", posts.ErrIndexWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM posts`); err != nil {
		return fmt.Errorf("%w: clear posts: %v", posts.ErrIndexWrite, err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO posts (slug, title, author, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %v", posts.ErrIndexWrite, err)
	}
	defer stmt.Close()
	for _, p := range all {
		if _, err := stmt.ExecContext(ctx, p.Slug, p.Title, p.Author, p.Content,
			p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano()); err != nil {
			return fmt.Errorf("%w: insert %s: %v", posts.ErrIndexWrite, p.Slug, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", posts.ErrIndexWrite, err)
	}
	return nil
}

func requireRow(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", posts.ErrIndexWrite, err)
	}
	if n == 0 {
		return none
	}
	return nil
}
