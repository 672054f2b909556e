package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	presenceKeyPrefix     = "aurachat:presence:"
	presenceChannel       = "aurachat:presence"
	presenceUpdateBacklog = 1024
	defaultPresenceTTL    = 2 * time.Minute
)

// PresenceStore is the subset of the Redis client the mirror needs.
type PresenceStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type presenceEvent struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// RedisPresenceMirror copies local presence into Redis keys with a TTL and publishes
// every change, so other processes can answer "is this user online" without the registry.
// Updates are queued and written by a single worker started with Run.
type RedisPresenceMirror struct {
	store   PresenceStore
	ttl     time.Duration
	updates chan presenceChange
	logger  *zap.Logger
}

func NewRedisPresenceMirror(store PresenceStore, ttl time.Duration, logger *zap.Logger) *RedisPresenceMirror {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPresenceMirror{
		store:   store,
		ttl:     ttl,
		updates: make(chan presenceChange, presenceUpdateBacklog),
		logger:  logger,
	}
}

// PresenceChanged enqueues a change and never blocks the caller.
func (m *RedisPresenceMirror) PresenceChanged(userID string, online bool) {
	select {
	case m.updates <- presenceChange{userID: userID, online: online}:
	default:
		m.logger.Warn("presence mirror backlog full", zap.String("user_id", userID), zap.Bool("online", online))
	}
}

// Run writes queued changes and refreshes live keys until ctx is cancelled.
func (m *RedisPresenceMirror) Run(ctx context.Context) {
	refresh := time.NewTicker(m.ttl / 2)
	defer refresh.Stop()

	online := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-m.updates:
			m.apply(ctx, change)
			if change.online {
				online[change.userID] = struct{}{}
			} else {
				delete(online, change.userID)
			}
		case <-refresh.C:
			for userID := range online {
				if err := m.store.Set(ctx, presenceKey(userID), "1", m.ttl).Err(); err != nil {
					m.logger.Warn("presence refresh failed", zap.String("user_id", userID), zap.Error(err))
				}
			}
		}
	}
}

// IsOnline reports whether any process has userID marked as present.
func (m *RedisPresenceMirror) IsOnline(ctx context.Context, userID string) (bool, error) {
	count, err := m.store.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *RedisPresenceMirror) apply(ctx context.Context, change presenceChange) {
	var err error
	if change.online {
		err = m.store.Set(ctx, presenceKey(change.userID), "1", m.ttl).Err()
	} else {
		err = m.store.Del(ctx, presenceKey(change.userID)).Err()
	}
	if err != nil {
		m.logger.Warn("presence write failed",
			zap.String("user_id", change.userID),
			zap.Bool("online", change.online),
			zap.Error(err))
		return
	}

	event, err := json.Marshal(presenceEvent{UserID: change.userID, Online: change.online})
	if err != nil {
		return
	}
	if err := m.store.Publish(ctx, presenceChannel, string(event)).Err(); err != nil {
		m.logger.Warn("presence publish failed", zap.String("user_id", change.userID), zap.Error(err))
	}
}

func presenceKey(userID string) string {
	return presenceKeyPrefix + userID
}
