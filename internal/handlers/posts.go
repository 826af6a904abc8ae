package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/BorisDmv/md-blog-api/internal/auth"
	"github.com/BorisDmv/md-blog-api/internal/logging"
	"github.com/BorisDmv/md-blog-api/internal/markdown"
	"github.com/BorisDmv/md-blog-api/internal/models"
	"github.com/BorisDmv/md-blog-api/internal/posts"
	"github.com/BorisDmv/md-blog-api/internal/slugify"
)

// PostStore is the persistence the handlers need; *posts.Store implements it.
type PostStore interface {
	List(ctx context.Context) ([]models.Post, error)
	Read(ctx context.Context, slug string) (string, error)
	Exists(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, post models.Post) (models.Post, error)
	Update(ctx context.Context, post models.Post) (models.Post, error)
	Delete(ctx context.Context, slug string) error
}

// Renderer turns markdown into HTML.
type Renderer interface {
	Render(source string) (string, error)
}

const createAttempts = 3

type PostsHandler struct {
	store    PostStore
	renderer Renderer
	log      logging.Logger
}

type ListPostsResponse struct {
	Success bool                 `json:"success"`
	Posts   []models.PostSummary `json:"posts"`
}

type PreviewRequest struct {
	Content string `json:"content"`
}

type PostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (p PostRequest) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&p.Content, validation.Required),
	)
}

type AdminResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Slug    string `json:"slug,omitempty"`
}

func NewPostsHandler(store PostStore, renderer Renderer, log logging.Logger) *PostsHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &PostsHandler{store: store, renderer: renderer, log: log}
}

// List returns summaries of every indexed post.
func (h *PostsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.List(r.Context())
	if err != nil {
		h.log.Error("list posts", "error", err)
		message := "failed to read posts index"
		if errors.Is(err, posts.ErrIndexParse) {
			message = "failed to parse posts index"
		}
		respondError(w, http.StatusInternalServerError, message)
		return
	}

	summaries := make([]models.PostSummary, 0, len(all))
	for _, p := range all {
		summaries = append(summaries, p.Summary())
	}
	respondJSON(w, http.StatusOK, ListPostsResponse{Success: true, Posts: summaries})
}

// Get renders a post's markdown as an HTML fragment.
func (h *PostsHandler) Get(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	source, err := h.store.Read(r.Context(), slug)
	if err != nil {
		if errors.Is(err, posts.ErrNotFound) {
			h.log.Debug("post not found", "slug", slug)
			respondHTML(w, http.StatusNotFound, markdown.NotFoundPage())
			return
		}
		h.log.Error("read post", "slug", slug, "error", err)
		respondHTML(w, http.StatusInternalServerError, markdown.ErrorPage())
		return
	}

	html, err := h.renderer.Render(source)
	if err != nil {
		h.log.Error("render post", "slug", slug, "error", err)
		respondHTML(w, http.StatusInternalServerError, markdown.ErrorPage())
		return
	}
	respondHTML(w, http.StatusOK, html)
}

// Preview renders markdown from the request body without storing it.
func (h *PostsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	html, err := h.renderer.Render(req.Content)
	if err != nil {
		h.log.Error("render preview", "error", err)
		respondHTML(w, http.StatusInternalServerError, markdown.ErrorPage())
		return
	}
	respondHTML(w, http.StatusOK, html)
}

// Create stores a new post under a slug derived from its title. The author
// is the authenticated subject.
func (h *PostsHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}
	author := authorFrom(r)

	var (
		created models.Post
		err     error
	)
	for attempt := 0; attempt < createAttempts; attempt++ {
		var slug string
		slug, err = slugify.Unique(req.Title, func(s string) (bool, error) {
			return h.store.Exists(r.Context(), s)
		})
		if err != nil {
			break
		}
		created, err = h.store.Create(r.Context(), models.Post{
			Slug:    slug,
			Title:   req.Title,
			Author:  author,
			Content: req.Content,
		})
		if !errors.Is(err, posts.ErrExists) {
			break
		}
	}
	if err != nil {
		h.log.Error("create post", "title", req.Title, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create post")
		return
	}

	respondJSON(w, http.StatusOK, AdminResponse{
		Success: true,
		Message: "Post created successfully",
		Slug:    created.Slug,
	})
}

// Update replaces the title and content of an existing post.
func (h *PostsHandler) Update(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	req, ok := h.decodePost(w, r)
	if !ok {
		return
	}

	updated, err := h.store.Update(r.Context(), models.Post{
		Slug:    slug,
		Title:   req.Title,
		Author:  authorFrom(r),
		Content: req.Content,
	})
	if err != nil {
		if errors.Is(err, posts.ErrNotFound) {
			respondError(w, http.StatusNotFound, posts.ErrNotFound.Error())
			return
		}
		h.log.Error("update post", "slug", slug, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to update post")
		return
	}

	respondJSON(w, http.StatusOK, AdminResponse{
		Success: true,
		Message: "Post updated successfully",
		Slug:    updated.Slug,
	})
}

// Delete removes a post and its markdown file.
func (h *PostsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := h.store.Delete(r.Context(), slug); err != nil {
		if errors.Is(err, posts.ErrNotFound) {
			respondError(w, http.StatusNotFound, posts.ErrNotFound.Error())
			return
		}
		h.log.Error("delete post", "slug", slug, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete post")
		return
	}

	respondJSON(w, http.StatusOK, AdminResponse{
		Success: true,
		Message: "Post deleted successfully",
		Slug:    slug,
	})
}

func (h *PostsHandler) decodePost(w http.ResponseWriter, r *http.Request) (PostRequest, bool) {
	var req PostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return PostRequest{}, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return PostRequest{}, false
	}
	return req, true
}

// authorFrom reads the subject RequireRole stored in the context.
func authorFrom(r *http.Request) string {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject
}
