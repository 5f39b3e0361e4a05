package room

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newMemoryBuffer(clock *fakeClock) *MemoryBuffer {
	b := NewMemoryBuffer()
	b.now = clock.now
	return b
}

func TestRoom_PostValidation(t *testing.T) {
	r := New(NewMemoryBuffer())
	ctx := context.Background()

	_, err := r.Post(ctx, 1, "alice", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = r.Post(ctx, 1, "alice", strings.Repeat("x", MaxContentLength+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	msg, err := r.Post(ctx, 1, "alice", "  hi all ")
	require.NoError(t, err)
	assert.Equal(t, "hi all", msg.Content)
	assert.EqualValues(t, 1, msg.ID)
	assert.Equal(t, "alice", msg.Username)
}

func TestMemoryBuffer_CapacityAndReadLimit(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	b := newMemoryBuffer(clock)
	ctx := context.Background()

	for i := 1; i <= 70; i++ {
		_, err := b.Append(ctx, 1, "u", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		clock.advance(time.Second)
	}

	msgs, count, err := b.Recent(ctx)
	require.NoError(t, err)
	assert.Equal(t, Capacity, count)
	require.Len(t, msgs, ReadLimit)
	assert.Equal(t, "m21", msgs[0].Content)
	assert.Equal(t, "m70", msgs[len(msgs)-1].Content)
	assert.EqualValues(t, 70, msgs[len(msgs)-1].ID)
}

func TestMemoryBuffer_SweepsOldMessagesOnRead(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	b := newMemoryBuffer(clock)
	ctx := context.Background()

	_, err := b.Append(ctx, 1, "u", "old")
	require.NoError(t, err)
	clock.advance(30 * time.Minute)
	_, err = b.Append(ctx, 1, "u", "recent")
	require.NoError(t, err)

	clock.advance(31 * time.Minute)
	msgs, count, err := b.Recent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, msgs, 1)
	assert.Equal(t, "recent", msgs[0].Content)

	clock.advance(time.Hour)
	msgs, count, err = b.Recent(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, msgs)
}

func TestRedisBuffer(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	b, err := NewRedisBuffer(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	b.prefix = fmt.Sprintf("test:room:%d", time.Now().UnixNano())
	t.Cleanup(func() { b.client.Del(context.Background(), b.messagesKey(), b.sequenceKey()) })

	clock := &fakeClock{t: time.Now().Add(-2 * time.Hour)}
	b.now = clock.now
	_, err = b.Append(ctx, 1, "u", "stale")
	require.NoError(t, err)

	clock.t = time.Now()
	for i := 1; i <= Capacity+5; i++ {
		clock.advance(time.Millisecond)
		_, err := b.Append(ctx, 2, "v", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	msgs, count, err := b.Recent(ctx)
	require.NoError(t, err)
	assert.Equal(t, Capacity, count)
	require.Len(t, msgs, ReadLimit)
	assert.Equal(t, fmt.Sprintf("m%d", Capacity+5), msgs[len(msgs)-1].Content)
	assert.Equal(t, "v", msgs[0].Username)
}
