package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gwi.com/myblog/internal/core"
)

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// queryInt reads an integer query parameter, returning 0 when absent or malformed.
func queryInt(r *http.Request, name string) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return n
}

func (h *APIHandler) ListPostsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	featured, _ := strconv.ParseBool(q.Get("featured"))
	page, err := h.blogService.ListPosts(r.Context(), core.PostQuery{
		Query:      q.Get("q"),
		CategoryID: queryInt(r, "category"),
		TagID:      queryInt(r, "tag"),
		Featured:   featured,
		Page:       int(queryInt(r, "page")),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *APIHandler) PopularPostsHandler(w http.ResponseWriter, r *http.Request) {
	posts, err := h.blogService.PopularPosts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (h *APIHandler) GetPostHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "postID")
	if !ok {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	detail, err := h.blogService.GetPostDetail(r.Context(), id, viewerFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *APIHandler) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	var req core.PostInput
	if !decodeJSON(w, r, &req) {
		return
	}
	post, err := h.blogService.CreatePost(r.Context(), viewerFrom(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (h *APIHandler) UpdatePostHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "postID")
	if !ok {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	var req core.PostInput
	if !decodeJSON(w, r, &req) {
		return
	}
	post, err := h.blogService.UpdatePost(r.Context(), viewerFrom(r), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *APIHandler) DeletePostHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "postID")
	if !ok {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err := h.blogService.DeletePost(r.Context(), viewerFrom(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) MyPostsHandler(w http.ResponseWriter, r *http.Request) {
	mine, err := h.blogService.MyPosts(r.Context(), viewerFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mine)
}

func (h *APIHandler) AddCommentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "postID")
	if !ok {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	var req core.CommentInput
	if !decodeJSON(w, r, &req) {
		return
	}
	comment, err := h.blogService.AddComment(r.Context(), viewerFrom(r), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (h *APIHandler) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := h.blogService.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *APIHandler) CreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var req core.TaxonomyInput
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := h.blogService.CreateCategory(r.Context(), viewerFrom(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (h *APIHandler) CategoryPostsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "categoryID")
	if !ok {
		writeError(w, http.StatusNotFound, "Category not found")
		return
	}
	category, page, err := h.blogService.CategoryPosts(r.Context(), id, int(queryInt(r, "page")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category, "page": page})
}

func (h *APIHandler) ListTagsHandler(w http.ResponseWriter, r *http.Request) {
	tags, err := h.blogService.ListTags(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (h *APIHandler) CreateTagHandler(w http.ResponseWriter, r *http.Request) {
	var req core.TaxonomyInput
	if !decodeJSON(w, r, &req) {
		return
	}
	tag, err := h.blogService.CreateTag(r.Context(), viewerFrom(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (h *APIHandler) TagPostsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "tagID")
	if !ok {
		writeError(w, http.StatusNotFound, "Tag not found")
		return
	}
	tag, page, err := h.blogService.TagPosts(r.Context(), id, int(queryInt(r, "page")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tag": tag, "page": page})
}
