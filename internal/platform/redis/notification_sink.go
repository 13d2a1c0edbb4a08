package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// NotificationTTL is how long a recipient's notification list is kept after
// the latest delivery.
const NotificationTTL = 7 * 24 * time.Hour

const notificationKeyPrefix = "notifications:user:"

// NotificationSink stores notifications as a per-recipient Redis list,
// newest first.
type NotificationSink struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewNotificationSink creates a sink using client.
func NewNotificationSink(client goredis.UniversalClient) *NotificationSink {
	return &NotificationSink{
		client: client,
		ttl:    NotificationTTL,
	}
}

func notificationKey(recipient string) string {
	return notificationKeyPrefix + recipient
}

// Deliver prepends an encoded notification to the recipient's list and
// refreshes the list's expiry.
func (s *NotificationSink) Deliver(ctx context.Context, recipient string, notification []byte) error {
	key := notificationKey(recipient)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, key, notification)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	return nil
}

// Recent returns up to limit notifications for recipient, newest first.
func (s *NotificationSink) Recent(ctx context.Context, recipient string, limit int64) ([][]byte, error) {
	if limit <= 0 {
		return nil, nil
	}
	values, err := s.client.LRange(ctx, notificationKey(recipient), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}

	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out, nil
}
