package room

import (
	"context"
	"sync"
	"time"
)

// MemoryBuffer keeps the room in process memory. It is lost on restart and
// not shared between instances.
type MemoryBuffer struct {
	mu       sync.Mutex
	messages []Message
	nextID   int64
	now      func() time.Time
}

func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{now: time.Now}
}

func (b *MemoryBuffer) Append(_ context.Context, userID int64, username, content string) (Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	msg := Message{
		ID:        b.nextID,
		UserID:    userID,
		Username:  username,
		Content:   content,
		Timestamp: b.now().UTC(),
	}
	b.messages = append(b.messages, msg)
	if over := len(b.messages) - Capacity; over > 0 {
		b.messages = append([]Message(nil), b.messages[over:]...)
	}
	return msg, nil
}

func (b *MemoryBuffer) Recent(_ context.Context) ([]Message, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-MaxAge)
	kept := b.messages[:0]
	for _, m := range b.messages {
		if m.Timestamp.After(cutoff) {
			kept = append(kept, m)
		}
	}
	b.messages = kept

	start := max(0, len(b.messages)-ReadLimit)
	out := make([]Message, len(b.messages)-start)
	copy(out, b.messages[start:])
	return out, len(b.messages), nil
}
