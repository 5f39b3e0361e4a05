// Package room holds the public chat room: a short, bounded history of
// recent messages shared by every visitor.
package room

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gwi.com/myblog/internal/metrics"
)

const (
	// Capacity is the number of messages retained; older ones are evicted.
	Capacity = 60
	// MaxAge is how long a message stays visible.
	MaxAge = time.Hour
	// ReadLimit caps how many of the newest messages a read returns.
	ReadLimit = 50

	MaxContentLength = 500
)

var (
	ErrEmptyMessage   = errors.New("message content cannot be empty")
	ErrMessageTooLong = errors.New("message content is too long")
)

type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Buffer stores room messages. Implementations evict beyond Capacity on
// append and drop messages older than MaxAge on every read.
type Buffer interface {
	// Append stores a message and returns it with its id and timestamp set.
	Append(ctx context.Context, userID int64, username, content string) (Message, error)
	// Recent returns at most ReadLimit of the newest messages, oldest first,
	// and the number of messages currently held.
	Recent(ctx context.Context) ([]Message, int, error)
}

// Room validates and posts messages to a Buffer.
type Room struct {
	buf Buffer
}

func New(buf Buffer) *Room {
	return &Room{buf: buf}
}

func (r *Room) Post(ctx context.Context, userID int64, username, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return Message{}, ErrMessageTooLong
	}
	msg, err := r.buf.Append(ctx, userID, username, content)
	if err != nil {
		return Message{}, err
	}
	metrics.RoomMessagesPosted.Inc()
	return msg, nil
}

func (r *Room) Recent(ctx context.Context) ([]Message, int, error) {
	return r.buf.Recent(ctx)
}
