package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	inboxPrefix   = "notifications:inbox:"
	channelPrefix = "notifications:user:"
)

// RedisInbox хранит последние уведомления пользователя в списке Redis
// и публикует каждое в канал пользователя
type RedisInbox struct {
	client goredis.UniversalClient
	size   int64
	ttl    time.Duration
}

// NewRedisInbox создаёт входящие на Redis. Хранится не больше size уведомлений,
// список живёт ttl с момента последнего уведомления.
func NewRedisInbox(client goredis.UniversalClient, size int, ttl time.Duration) *RedisInbox {
	if size <= 0 {
		size = 100
	}
	return &RedisInbox{client: client, size: int64(size), ttl: ttl}
}

// InboxKey возвращает ключ списка входящих пользователя
func InboxKey(userID uuid.UUID) string {
	return inboxPrefix + userID.String()
}

// ChannelKey возвращает канал pub/sub пользователя
func ChannelKey(userID uuid.UUID) string {
	return channelPrefix + userID.String()
}

func (r *RedisInbox) Emit(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	key := InboxKey(n.UserID)

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, r.size-1)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.Publish(ctx, ChannelKey(n.UserID), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push notification to inbox: %w", err)
	}
	return nil
}

// Inbox возвращает последние уведомления пользователя, новые первыми
func (r *RedisInbox) Inbox(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	if limit <= 0 || int64(limit) > r.size {
		limit = int(r.size)
	}

	values, err := r.client.LRange(ctx, InboxKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	out := make([]Notification, 0, len(values))
	for _, v := range values {
		var n Notification
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			return nil, fmt.Errorf("decode inbox entry: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}
