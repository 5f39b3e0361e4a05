package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gwi.com/myblog/internal/logging"
	"gwi.com/myblog/internal/metrics"
	"gwi.com/myblog/internal/store"
	"gwi.com/myblog/internal/utils"
)

const (
	PostsPerPage      = 10
	popularPostsLimit = 5
	relatedPostsLimit = 3
	shortContentChars = 200
	wordsPerMinute    = 200
	summaryTimeout    = time.Minute

	// Generated summaries must fit the 500 character column with the ellipsis.
	maxGeneratedSummary = 497
)

// Viewer is the authenticated caller as far as authorization cares.
type Viewer struct {
	ID      int64
	IsStaff bool
}

func (v *Viewer) canEdit(p *store.Post) bool {
	return v != nil && (v.IsStaff || v.ID == p.AuthorID)
}

type PostInput struct {
	Title      string  `json:"title" validate:"required,max=200"`
	Content    string  `json:"content" validate:"required"`
	Summary    string  `json:"summary" validate:"max=500"`
	CategoryID *int64  `json:"category_id"`
	TagIDs     []int64 `json:"tag_ids"`
	Status     string  `json:"status" validate:"omitempty,oneof=draft published archived"`
	CoverImage string  `json:"cover_image" validate:"omitempty,url,max=500"`
	IsFeatured bool    `json:"is_featured"`
}

type CommentInput struct {
	Content  string `json:"content" validate:"required,max=2000"`
	ParentID *int64 `json:"parent_id"`
}

type TaxonomyInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

// PostQuery holds the public list filters. Page is 1-based.
type PostQuery struct {
	Query      string
	CategoryID int64
	TagID      int64
	Featured   bool
	Page       int
}

// PostView adds derived presentation fields to a post.
type PostView struct {
	store.Post
	ShortContent string `json:"short_content"`
	ReadTime     int    `json:"read_time"`
}

type PostPage struct {
	Posts      []PostView `json:"posts"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	Total      int        `json:"total"`
}

type PostDetail struct {
	PostView
	Comments []store.Comment `json:"comments"`
	Related  []PostView      `json:"related_posts"`
}

type MyPosts struct {
	Posts  []PostView     `json:"posts"`
	Counts map[string]int `json:"counts"`
}

type BlogService struct {
	dbStore    *store.SQLiteStore
	summarizer Summarizer
	wg         sync.WaitGroup
}

// NewBlogService creates the service. summarizer may be nil, in which case
// posts without a summary keep an empty one.
func NewBlogService(db *store.SQLiteStore, summarizer Summarizer) *BlogService {
	return &BlogService{dbStore: db, summarizer: summarizer}
}

func newPostView(p store.Post) PostView {
	if p.Tags == nil {
		p.Tags = []store.Tag{}
	}
	return PostView{
		Post:         p,
		ShortContent: utils.Truncate(p.Content, shortContentChars),
		ReadTime:     utils.ReadTimeMinutes(p.Content, wordsPerMinute),
	}
}

func newPostViews(posts []store.Post) []PostView {
	views := make([]PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, newPostView(p))
	}
	return views
}

func (s *BlogService) ListPosts(ctx context.Context, q PostQuery) (*PostPage, error) {
	page := max(q.Page, 1)
	posts, total, err := s.dbStore.ListPublishedPosts(ctx, store.PostFilter{
		Query:      strings.TrimSpace(q.Query),
		CategoryID: q.CategoryID,
		TagID:      q.TagID,
		Featured:   q.Featured,
		Limit:      PostsPerPage,
		Offset:     (page - 1) * PostsPerPage,
	})
	if err != nil {
		return nil, err
	}
	return &PostPage{
		Posts:      newPostViews(posts),
		Page:       page,
		TotalPages: (total + PostsPerPage - 1) / PostsPerPage,
		Total:      total,
	}, nil
}

func (s *BlogService) PopularPosts(ctx context.Context) ([]PostView, error) {
	posts, err := s.dbStore.ListPopularPosts(ctx, popularPostsLimit)
	if err != nil {
		return nil, err
	}
	return newPostViews(posts), nil
}

// loadVisiblePost returns the post if viewer may see it. Unpublished posts
// are reported as missing to everyone but their author and staff.
func (s *BlogService) loadVisiblePost(ctx context.Context, id int64, viewer *Viewer) (*store.Post, error) {
	post, err := s.dbStore.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil || (post.Status != store.PostStatusPublished && !viewer.canEdit(post)) {
		return nil, NewNotFoundError("post not found")
	}
	return post, nil
}

// GetPostDetail returns the post with comments and related posts and counts
// the view.
func (s *BlogService) GetPostDetail(ctx context.Context, id int64, viewer *Viewer) (*PostDetail, error) {
	post, err := s.loadVisiblePost(ctx, id, viewer)
	if err != nil {
		return nil, err
	}
	if err := s.dbStore.IncrementPostViews(ctx, id); err != nil {
		return nil, err
	}
	post.ViewCount++

	comments, err := s.dbStore.ListActiveComments(ctx, id)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []store.Comment{}
	}
	related, err := s.dbStore.ListRelatedPosts(ctx, id, relatedPostsLimit)
	if err != nil {
		return nil, err
	}
	return &PostDetail{PostView: newPostView(*post), Comments: comments, Related: newPostViews(related)}, nil
}

func (s *BlogService) validatePostInput(ctx context.Context, in *PostInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Summary = strings.TrimSpace(in.Summary)
	if in.Status == "" {
		in.Status = store.PostStatusDraft
	}
	if err := ValidateStruct(in); err != nil {
		return err
	}
	if in.CategoryID != nil {
		c, err := s.dbStore.GetCategory(ctx, *in.CategoryID)
		if err != nil {
			return err
		}
		if c == nil {
			return NewValidationError(fmt.Sprintf("category %d does not exist", *in.CategoryID))
		}
	}
	for _, tagID := range in.TagIDs {
		t, err := s.dbStore.GetTag(ctx, tagID)
		if err != nil {
			return err
		}
		if t == nil {
			return NewValidationError(fmt.Sprintf("tag %d does not exist", tagID))
		}
	}
	return nil
}

func (s *BlogService) CreatePost(ctx context.Context, viewer *Viewer, in PostInput) (*PostView, error) {
	if err := s.validatePostInput(ctx, &in); err != nil {
		return nil, err
	}
	post := &store.Post{
		Title:      in.Title,
		Content:    in.Content,
		Summary:    in.Summary,
		AuthorID:   viewer.ID,
		CategoryID: in.CategoryID,
		Status:     in.Status,
		CoverImage: in.CoverImage,
		IsFeatured: in.IsFeatured,
	}
	if err := s.dbStore.CreatePost(ctx, post, in.TagIDs); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Int64("post_id", post.ID).Int64("author_id", viewer.ID).Msg("Created post")

	s.maybeSummarize(post)
	return s.postView(ctx, post.ID)
}

func (s *BlogService) UpdatePost(ctx context.Context, viewer *Viewer, id int64, in PostInput) (*PostView, error) {
	post, err := s.editablePost(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	if err := s.validatePostInput(ctx, &in); err != nil {
		return nil, err
	}
	post.Title = in.Title
	post.Content = in.Content
	post.Summary = in.Summary
	post.CategoryID = in.CategoryID
	post.Status = in.Status
	post.CoverImage = in.CoverImage
	post.IsFeatured = in.IsFeatured
	if err := s.dbStore.UpdatePost(ctx, post, in.TagIDs); err != nil {
		return nil, err
	}

	s.maybeSummarize(post)
	return s.postView(ctx, post.ID)
}

func (s *BlogService) DeletePost(ctx context.Context, viewer *Viewer, id int64) error {
	if _, err := s.editablePost(ctx, viewer, id); err != nil {
		return err
	}
	if err := s.dbStore.DeletePost(ctx, id); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Int64("post_id", id).Int64("user_id", viewer.ID).Msg("Deleted post")
	return nil
}

func (s *BlogService) editablePost(ctx context.Context, viewer *Viewer, id int64) (*store.Post, error) {
	post, err := s.dbStore.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, NewNotFoundError("post not found")
	}
	if !viewer.canEdit(post) {
		return nil, NewForbiddenError("only the author or staff may modify this post")
	}
	return post, nil
}

func (s *BlogService) postView(ctx context.Context, id int64) (*PostView, error) {
	post, err := s.dbStore.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, NewNotFoundError("post not found")
	}
	view := newPostView(*post)
	return &view, nil
}

// maybeSummarize generates a summary in the background when the post has
// none and a summarizer is configured.
func (s *BlogService) maybeSummarize(post *store.Post) {
	if s.summarizer == nil || post.Summary != "" {
		return
	}
	postID, title, content := post.ID, post.Title, post.Content
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
		defer cancel()

		summary, err := s.summarizer.GenerateSummary(ctx, title, content)
		if err != nil {
			metrics.PostSummaries.WithLabelValues("failed").Inc()
			logging.Warn().Err(err).Int64("post_id", postID).Msg("Failed to generate post summary")
			return
		}
		saved, err := s.dbStore.UpdatePostSummary(ctx, postID, utils.Truncate(summary, maxGeneratedSummary))
		if err != nil {
			metrics.PostSummaries.WithLabelValues("failed").Inc()
			logging.Error().Err(err).Int64("post_id", postID).Msg("Failed to save post summary")
			return
		}
		metrics.PostSummaries.WithLabelValues("ok").Inc()
		logging.Debug().Int64("post_id", postID).Bool("saved", saved).Msg("Generated post summary")
	}()
}

// Wait blocks until background summary generation has finished.
func (s *BlogService) Wait() {
	s.wg.Wait()
}

func (s *BlogService) MyPosts(ctx context.Context, viewer *Viewer) (*MyPosts, error) {
	posts, err := s.dbStore.ListPostsByAuthor(ctx, viewer.ID)
	if err != nil {
		return nil, err
	}
	counts, err := s.dbStore.PostCountsByStatus(ctx, viewer.ID)
	if err != nil {
		return nil, err
	}
	return &MyPosts{Posts: newPostViews(posts), Counts: counts}, nil
}

func (s *BlogService) CategoryPosts(ctx context.Context, categoryID int64, page int) (*store.Category, *PostPage, error) {
	category, err := s.dbStore.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, nil, err
	}
	if category == nil {
		return nil, nil, NewNotFoundError("category not found")
	}
	posts, err := s.ListPosts(ctx, PostQuery{CategoryID: categoryID, Page: page})
	if err != nil {
		return nil, nil, err
	}
	category.PostCount = posts.Total
	return category, posts, nil
}

func (s *BlogService) TagPosts(ctx context.Context, tagID int64, page int) (*store.Tag, *PostPage, error) {
	tag, err := s.dbStore.GetTag(ctx, tagID)
	if err != nil {
		return nil, nil, err
	}
	if tag == nil {
		return nil, nil, NewNotFoundError("tag not found")
	}
	posts, err := s.ListPosts(ctx, PostQuery{TagID: tagID, Page: page})
	if err != nil {
		return nil, nil, err
	}
	tag.PostCount = posts.Total
	return tag, posts, nil
}

func (s *BlogService) ListCategories(ctx context.Context) ([]store.Category, error) {
	categories, err := s.dbStore.ListCategories(ctx)
	if categories == nil && err == nil {
		categories = []store.Category{}
	}
	return categories, err
}

func (s *BlogService) ListTags(ctx context.Context) ([]store.Tag, error) {
	tags, err := s.dbStore.ListTags(ctx)
	if tags == nil && err == nil {
		tags = []store.Tag{}
	}
	return tags, err
}

func (s *BlogService) CreateCategory(ctx context.Context, viewer *Viewer, in TaxonomyInput) (*store.Category, error) {
	if !viewer.IsStaff {
		return nil, NewForbiddenError("only staff may create categories")
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	c := &store.Category{Name: in.Name, Description: in.Description}
	if err := s.dbStore.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *BlogService) CreateTag(ctx context.Context, viewer *Viewer, in TaxonomyInput) (*store.Tag, error) {
	if !viewer.IsStaff {
		return nil, NewForbiddenError("only staff may create tags")
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	t := &store.Tag{Name: in.Name, Description: in.Description}
	if err := s.dbStore.CreateTag(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// AddComment attaches a comment to a visible post. A parent comment must
// belong to the same post.
func (s *BlogService) AddComment(ctx context.Context, viewer *Viewer, postID int64, in CommentInput) (*store.Comment, error) {
	in.Content = strings.TrimSpace(in.Content)
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.loadVisiblePost(ctx, postID, viewer); err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		parent, err := s.dbStore.GetComment(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.PostID != postID {
			return nil, NewValidationError("parent comment does not belong to this post")
		}
	}

	c := &store.Comment{PostID: postID, AuthorID: viewer.ID, Content: in.Content, ParentID: in.ParentID}
	if err := s.dbStore.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	created, err := s.dbStore.GetComment(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return created, nil
}
