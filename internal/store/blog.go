package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Category and tag methods

func (s *SQLiteStore) CreateCategory(ctx context.Context, c *Category) error {
	c.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO categories (name, description, created_at) VALUES (?, ?, ?)",
		c.Name, c.Description, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) CreateTag(ctx context.Context, t *Tag) error {
	t.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO tags (name, description, created_at) VALUES (?, ?, ?)",
		t.Name, t.Description, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tag: %w", err)
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

// ListCategories returns all categories with their published post counts.
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT c.id, c.name, c.description, c.created_at,
            (SELECT COUNT(*) FROM posts p WHERE p.category_id = c.id AND p.status = 'published')
        FROM categories c ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.PostCount); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListTags returns all tags with their published post counts.
func (s *SQLiteStore) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT t.id, t.name, t.description, t.created_at,
            (SELECT COUNT(*) FROM post_tags pt JOIN posts p ON p.id = pt.post_id
             WHERE pt.tag_id = t.id AND p.status = 'published')
        FROM tags t ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.PostCount); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *SQLiteStore) GetCategory(ctx context.Context, id int64) (*Category, error) {
	var c Category
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, created_at FROM categories WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Category not found
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) GetTag(ctx context.Context, id int64) (*Tag, error) {
	var t Tag
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, created_at FROM tags WHERE id = ?", id).
		Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Tag not found
		}
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &t, nil
}

// Post methods

const postSelect = `
    SELECT p.id, p.title, p.content, p.summary, p.author_id, u.username, p.category_id,
        p.status, p.cover_image, p.is_featured, p.view_count, p.created_at, p.updated_at
    FROM posts p
    JOIN users u ON u.id = p.author_id`

func scanPost(row interface{ Scan(...any) error }) (*Post, error) {
	var p Post
	var categoryID sql.NullInt64
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Summary, &p.AuthorID, &p.AuthorUsername, &categoryID,
		&p.Status, &p.CoverImage, &p.IsFeatured, &p.ViewCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.Int64
	}
	return &p, nil
}

func (s *SQLiteStore) queryPosts(ctx context.Context, query string, args ...any) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, *p)
	}
	err = rows.Err()
	rows.Close() // Release the connection before loading tags.
	if err != nil {
		return nil, err
	}
	if err := s.attachTags(ctx, s.db, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// attachTags fills Tags for every post in one query.
func (s *SQLiteStore) attachTags(ctx context.Context, q querier, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}
	index := make(map[int64]int, len(posts))
	placeholders := make([]string, len(posts))
	args := make([]any, len(posts))
	for i := range posts {
		index[posts[i].ID] = i
		posts[i].Tags = []Tag{}
		placeholders[i] = "?"
		args[i] = posts[i].ID
	}

	rows, err := q.QueryContext(ctx, `
        SELECT pt.post_id, t.id, t.name, t.description, t.created_at
        FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
        WHERE pt.post_id IN (`+strings.Join(placeholders, ",")+`)
        ORDER BY t.name`, args...)
	if err != nil {
		return fmt.Errorf("failed to query post tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var postID int64
		var t Tag
		if err := rows.Scan(&postID, &t.ID, &t.Name, &t.Description, &t.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan post tag: %w", err)
		}
		i := index[postID]
		posts[i].Tags = append(posts[i].Tags, t)
	}
	return rows.Err()
}

func setPostTags(ctx context.Context, tx *sql.Tx, postID int64, tagIDs []int64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM post_tags WHERE post_id = ?", postID); err != nil {
		return fmt.Errorf("failed to clear post tags: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO post_tags (post_id, tag_id) VALUES (?, ?)", postID, tagID); err != nil {
			return fmt.Errorf("failed to attach tag %d: %w", tagID, err)
		}
	}
	return nil
}

// CreatePost inserts the post and its tag links in one transaction.
func (s *SQLiteStore) CreatePost(ctx context.Context, p *Post, tagIDs []int64) error {
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
            INSERT INTO posts (title, content, summary, author_id, category_id, status, cover_image, is_featured, view_count, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			p.Title, p.Content, p.Summary, p.AuthorID, p.CategoryID, p.Status, p.CoverImage, p.IsFeatured, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert post: %w", err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read post id: %w", err)
		}
		return setPostTags(ctx, tx, p.ID, tagIDs)
	})
}

// UpdatePost overwrites the editable fields and replaces the tag links.
func (s *SQLiteStore) UpdatePost(ctx context.Context, p *Post, tagIDs []int64) error {
	p.UpdatedAt = s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
            UPDATE posts SET title = ?, content = ?, summary = ?, category_id = ?, status = ?,
                cover_image = ?, is_featured = ?, updated_at = ?
            WHERE id = ?`,
			p.Title, p.Content, p.Summary, p.CategoryID, p.Status, p.CoverImage, p.IsFeatured, p.UpdatedAt, p.ID)
		if err != nil {
			return fmt.Errorf("failed to update post: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("post %d not found, not updated", p.ID)
		}
		return setPostTags(ctx, tx, p.ID, tagIDs)
	})
}

// UpdatePostSummary sets the summary only if it is still empty, so a
// summary written by the author in the meantime wins.
func (s *SQLiteStore) UpdatePostSummary(ctx context.Context, postID int64, summary string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE posts SET summary = ? WHERE id = ? AND summary = ''", summary, postID)
	if err != nil {
		return false, fmt.Errorf("failed to update post summary: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) DeletePost(ctx context.Context, postID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", postID)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IncrementPostViews(ctx context.Context, postID int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE posts SET view_count = view_count + 1 WHERE id = ?", postID)
	if err != nil {
		return fmt.Errorf("failed to increment post views: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPost(ctx context.Context, id int64) (*Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, postSelect+" WHERE p.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Post not found
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	posts := []Post{*p}
	if err := s.attachTags(ctx, s.db, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// ListPublishedPosts returns one page of published posts matching filter,
// newest first, plus the total number of matches.
func (s *SQLiteStore) ListPublishedPosts(ctx context.Context, filter PostFilter) ([]Post, int, error) {
	where := []string{"p.status = 'published'"}
	var args []any
	if filter.Query != "" {
		like := "%" + escapeLike(filter.Query) + "%"
		where = append(where, `(p.title LIKE ? ESCAPE '\' OR p.content LIKE ? ESCAPE '\' OR p.summary LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if filter.CategoryID != 0 {
		where = append(where, "p.category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.TagID != 0 {
		where = append(where, "EXISTS (SELECT 1 FROM post_tags pt WHERE pt.post_id = p.id AND pt.tag_id = ?)")
		args = append(args, filter.TagID)
	}
	if filter.Featured {
		where = append(where, "p.is_featured = 1")
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts p"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count posts: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	posts, err := s.queryPosts(ctx, postSelect+clause+" ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?",
		append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// ListPopularPosts returns the most viewed published posts.
func (s *SQLiteStore) ListPopularPosts(ctx context.Context, limit int) ([]Post, error) {
	return s.queryPosts(ctx, postSelect+" WHERE p.status = 'published' ORDER BY p.view_count DESC, p.id DESC LIMIT ?", limit)
}

func (s *SQLiteStore) ListPostsByAuthor(ctx context.Context, authorID int64) ([]Post, error) {
	return s.queryPosts(ctx, postSelect+" WHERE p.author_id = ? ORDER BY p.created_at DESC, p.id DESC", authorID)
}

// ListRelatedPosts returns published posts sharing at least one tag with postID.
func (s *SQLiteStore) ListRelatedPosts(ctx context.Context, postID int64, limit int) ([]Post, error) {
	return s.queryPosts(ctx, postSelect+`
        WHERE p.status = 'published' AND p.id <> ? AND EXISTS (
            SELECT 1 FROM post_tags a JOIN post_tags b ON a.tag_id = b.tag_id
            WHERE a.post_id = p.id AND b.post_id = ?)
        ORDER BY p.created_at DESC, p.id DESC LIMIT ?`, postID, postID, limit)
}

// PostCountsByStatus counts posts per status. authorID 0 counts all authors.
func (s *SQLiteStore) PostCountsByStatus(ctx context.Context, authorID int64) (map[string]int, error) {
	query := "SELECT status, COUNT(*) FROM posts"
	var args []any
	if authorID != 0 {
		query += " WHERE author_id = ?"
		args = append(args, authorID)
	}
	rows, err := s.db.QueryContext(ctx, query+" GROUP BY status", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts by status: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{PostStatusDraft: 0, PostStatusPublished: 0, PostStatusArchived: 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan post count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Comment methods

func (s *SQLiteStore) CreateComment(ctx context.Context, c *Comment) error {
	now := s.now()
	c.CreatedAt, c.UpdatedAt, c.IsActive = now, now, true
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO comments (post_id, author_id, content, parent_id, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, 1, ?, ?)",
		c.PostID, c.AuthorID, c.Content, c.ParentID, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

const commentSelect = `
    SELECT c.id, c.post_id, c.author_id, u.username, c.content, c.parent_id, c.is_active, c.created_at, c.updated_at
    FROM comments c JOIN users u ON u.id = c.author_id`

func scanComment(row interface{ Scan(...any) error }) (*Comment, error) {
	var c Comment
	var parentID sql.NullInt64
	if err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorUsername, &c.Content, &parentID,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		c.ParentID = &parentID.Int64
	}
	return &c, nil
}

func (s *SQLiteStore) GetComment(ctx context.Context, id int64) (*Comment, error) {
	c, err := scanComment(s.db.QueryRowContext(ctx, commentSelect+" WHERE c.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Comment not found
		}
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return c, nil
}

// ListActiveComments returns a post's active comments, newest first.
func (s *SQLiteStore) ListActiveComments(ctx context.Context, postID int64) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		commentSelect+" WHERE c.post_id = ? AND c.is_active = 1 ORDER BY c.created_at DESC, c.id DESC", postID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", err)
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

func (s *SQLiteStore) CountCommentsByAuthor(ctx context.Context, authorID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments WHERE author_id = ?", authorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return n, nil
}

// CountComments returns the number of active comments.
func (s *SQLiteStore) CountComments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments WHERE is_active = 1").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return n, nil
}
