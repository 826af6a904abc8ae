package models

import "time"

// Post is a stored blog post. Content is the raw markdown, the same bytes
// that live in the post's markdown file.
type Post struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Content   string    `json:"content"`
}

// PostSummary is the list view of a post, without content.
type PostSummary struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p Post) Summary() PostSummary {
	return PostSummary{
		Slug:      p.Slug,
		Title:     p.Title,
		Author:    p.Author,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
