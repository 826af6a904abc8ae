package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BorisDmv/md-blog-api/internal/models"
	"github.com/BorisDmv/md-blog-api/internal/posts"
)

var _ posts.Index = (*Postgres)(nil)

const postgresSchema = `CREATE TABLE IF NOT EXISTS posts (
    position BIGSERIAL,
    slug TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    author TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);`

// Postgres is a posts.Index stored in a Postgres table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and creates the posts table if missing.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create posts table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Postgres) List(ctx context.Context) ([]models.Post, error) {
	const query = `
		SELECT slug, title, author, content, created_at, updated_at
		FROM posts
		ORDER BY position
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", posts.ErrIndexRead, err)
	}
	defer rows.Close()

	out := []models.Post{}
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(
			&post.Slug,
			&post.Title,
			&post.Author,
			&post.Content,
			&post.CreatedAt,
			&post.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan post: %v", posts.ErrIndexParse, err)
		}
		out = append(out, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", posts.ErrIndexRead, err)
	}
	return out, nil
}

func (s *Postgres) Get(ctx context.Context, slug string) (models.Post, error) {
	const query = `
		SELECT slug, title, author, content, created_at, updated_at
		FROM posts
		WHERE slug = $1
	`
	var post models.Post
	err := s.pool.QueryRow(ctx, query, slug).Scan(
		&post.Slug,
		&post.Title,
		&post.Author,
		&post.Content,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, posts.ErrNotFound
		}
		return models.Post{}, fmt.Errorf("%w: get post by slug: %v", posts.ErrIndexRead, err)
	}
	return post, nil
}

func (s *Postgres) Insert(ctx context.Context, post models.Post) error {
	const query = `
		INSERT INTO posts (slug, title, author, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query, post.Slug, post.Title, post.Author, post.Content, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return posts.ErrExists
		}
		return fmt.Errorf("%w: insert post: %v", posts.ErrIndexWrite, err)
	}
	return nil
}

func (s *Postgres) Replace(ctx context.Context, post models.Post) error {
	const query = `
		UPDATE posts
		SET title = $2, author = $3, content = $4, created_at = $5, updated_at = $6
		WHERE slug = $1
	`
	tag, err := s.pool.Exec(ctx, query, post.Slug, post.Title, post.Author, post.Content, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: update post: %v", posts.ErrIndexWrite, err)
	}
	if tag.RowsAffected() == 0 {
		return posts.ErrNotFound
	}
	return nil
}

func (s *Postgres) Remove(ctx context.Context, slug string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("%w: delete post: %v", posts.ErrIndexWrite, err)
	}
	if tag.RowsAffected() == 0 {
		return posts.ErrNotFound
	}
	return nil
}

func (s *Postgres) ReplaceAll(ctx context.Context, all []models.Post) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", posts.ErrIndexWrite, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM posts`); err != nil {
		return fmt.Errorf("%w: clear posts: %v", posts.ErrIndexWrite, err)
	}
	rows := make([][]any, 0, len(all))
	for _, p := range all {
		rows = append(rows, []any{p.Slug, p.Title, p.Author, p.Content, p.CreatedAt, p.UpdatedAt})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"posts"},
		[]string{"slug", "title", "author", "content", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("%w: copy posts: %v", posts.ErrIndexWrite, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", posts.ErrIndexWrite, err)
	}
	return nil
}
