package store

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	IsStaff      bool      `json:"is_staff"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatSession is the single conversation record for an unordered pair of
// users. UserAID is always the smaller id.
type ChatSession struct {
	ID        int64     `json:"id"`
	UserAID   int64     `json:"user_a_id"`
	UserBID   int64     `json:"user_b_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsActive  bool      `json:"is_active"`
}

// OtherUser returns the participant that is not userID.
func (s *ChatSession) OtherUser(userID int64) int64 {
	if s.UserAID == userID {
		return s.UserBID
	}
	return s.UserAID
}

// HasParticipant reports whether userID is one of the pair.
func (s *ChatSession) HasParticipant(userID int64) bool {
	return s.UserAID == userID || s.UserBID == userID
}

type PrivateMessage struct {
	ID             int64      `json:"id"`
	SessionID      int64      `json:"session_id"`
	SenderID       int64      `json:"sender_id"`
	SenderUsername string     `json:"sender_username"`
	ReceiverID     int64      `json:"receiver_id"`
	Content        string     `json:"content"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at"` // Nullable
	CreatedAt      time.Time  `json:"created_at"`
}

// SessionSummary is one row of the private chat navigation list.
type SessionSummary struct {
	SessionID          int64      `json:"session_id"`
	OtherUserID        int64      `json:"user_id"`
	OtherUserName      string     `json:"username"`
	UnreadCount        int        `json:"unread_count"`
	LastMessagePreview string     `json:"last_message"`
	LastMessageTime    *time.Time `json:"last_message_time"`
}

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	PostCount   int       `json:"post_count"`
}

// Tag has the same shape as Category.
type Tag struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	PostCount   int       `json:"post_count"`
}

const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"
	PostStatusArchived  = "archived"
)

type Post struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Summary        string    `json:"summary"`
	AuthorID       int64     `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	CategoryID     *int64    `json:"category_id"` // Nullable
	Tags           []Tag     `json:"tags"`
	Status         string    `json:"status"`
	CoverImage     string    `json:"cover_image"`
	IsFeatured     bool      `json:"is_featured"`
	ViewCount      int       `json:"view_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PostFilter narrows ListPublishedPosts. Zero values mean "no filter".
type PostFilter struct {
	Query      string
	CategoryID int64
	TagID      int64
	Featured   bool
	Limit      int
	Offset     int
}

type Comment struct {
	ID             int64     `json:"id"`
	PostID         int64     `json:"post_id"`
	AuthorID       int64     `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Content        string    `json:"content"`
	ParentID       *int64    `json:"parent_id"` // Nullable
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Visit struct {
	ID         int64     `json:"id"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	StatusCode int       `json:"status_code"`
	VisitTime  time.Time `json:"visit_time"`
}

// PathCount is a path with its visit count.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// DateCount is a calendar day (YYYY-MM-DD, UTC) with its visit count.
type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
