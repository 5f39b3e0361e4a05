package room

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "myblog:room"
)

// RedisBuffer keeps the room in a Redis sorted set scored by timestamp, so
// every instance behind a load balancer sees the same history.
type RedisBuffer struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisBuffer(ctx context.Context, redisURL string) (*RedisBuffer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisBuffer{client: client, prefix: defaultKeyPrefix, now: time.Now}, nil
}

func (b *RedisBuffer) Close() error {
	return b.client.Close()
}

func (b *RedisBuffer) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBuffer) messagesKey() string { return b.prefix + ":messages" }
func (b *RedisBuffer) sequenceKey() string { return b.prefix + ":seq" }

func (b *RedisBuffer) Append(ctx context.Context, userID int64, username, content string) (Message, error) {
	id, err := b.client.Incr(ctx, b.sequenceKey()).Result()
	if err != nil {
		return Message{}, fmt.Errorf("failed to allocate room message id: %w", err)
	}

	msg := Message{
		ID:        id,
		UserID:    userID,
		Username:  username,
		Content:   content,
		Timestamp: b.now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode room message: %w", err)
	}

	key := b.messagesKey()
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(msg.Timestamp.UnixMilli()), Member: data})
		pipe.ZRemRangeByRank(ctx, key, 0, -(Capacity + 1))
		pipe.Expire(ctx, key, MaxAge)
		return nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to store room message: %w", err)
	}
	return msg, nil
}

func (b *RedisBuffer) Recent(ctx context.Context) ([]Message, int, error) {
	key := b.messagesKey()
	cutoff := strconv.FormatInt(b.now().Add(-MaxAge).UnixMilli(), 10)

	var rangeCmd *redis.StringSliceCmd
	var countCmd *redis.IntCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		rangeCmd = pipe.ZRange(ctx, key, -ReadLimit, -1)
		countCmd = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read room messages: %w", err)
	}

	raw := rangeCmd.Val()
	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue // Skip malformed entries
		}
		messages = append(messages, msg)
	}
	return messages, int(countCmd.Val()), nil
}
