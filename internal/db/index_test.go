package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BorisDmv/md-blog-api/internal/models"
	"github.com/BorisDmv/md-blog-api/internal/posts"
)

func testPost(slug string, created time.Time) models.Post {
	return models.Post{
		Slug:      slug,
		Title:     "Title " + slug,
		Author:    "alice",
		Content:   "# " + slug,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// exerciseIndex runs the behaviour every posts.Index must share.
func exerciseIndex(t *testing.T, ix posts.Index) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if err := ix.ReplaceAll(ctx, nil); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, err := ix.List(ctx)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}

	for i, slug := range []string{"zeta", "alpha", "mid"} {
		if err := ix.Insert(ctx, testPost(slug, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("insert %s: %v", slug, err)
		}
	}
	if err := ix.Insert(ctx, testPost("alpha", base)); !errors.Is(err, posts.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, err = ix.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	order := []string{"zeta", "alpha", "mid"}
	if len(got) != len(order) {
		t.Fatalf("expected %d posts, got %d", len(order), len(got))
	}
	for i, slug := range order {
		if got[i].Slug != slug {
			t.Fatalf("position %d: expected %s, got %s", i, slug, got[i].Slug)
		}
	}

	one, err := ix.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if one.Title != "Title alpha" || !one.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected post: %#v", one)
	}
	if _, err := ix.Get(ctx, "missing"); !errors.Is(err, posts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	one.Title = "Renamed"
	one.UpdatedAt = base.Add(time.Hour)
	if err := ix.Replace(ctx, one); err != nil {
		t.Fatalf("replace: %v", err)
	}
	again, _ := ix.Get(ctx, "alpha")
	if again.Title != "Renamed" || !again.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("replace not applied: %#v", again)
	}
	if err := ix.Replace(ctx, testPost("missing", base)); !errors.Is(err, posts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on replace, got %v", err)
	}

	if err := ix.Remove(ctx, "zeta"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := ix.Remove(ctx, "zeta"); !errors.Is(err, posts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}

	all := []models.Post{testPost("b", base), testPost("a", base.Add(time.Second))}
	if err := ix.ReplaceAll(ctx, all); err != nil {
		t.Fatalf("replace all: %v", err)
	}
	got, _ = ix.List(ctx)
	if len(got) != 2 || got[0].Slug != "b" || got[1].Slug != "a" {
		t.Fatalf("unexpected list after replace all: %#v", got)
	}
}
