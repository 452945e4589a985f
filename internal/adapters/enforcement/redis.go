package enforcement

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/okian/sentinel/pkg/logger"
	"github.com/okian/sentinel/pkg/metrics"
)

// redisClient is the subset of *redis.Client used here.
type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisEnforcer stores bans as expiring keys and publishes every command
// for the game server to act on.
type RedisEnforcer struct {
	rdb     redisClient
	prefix  string
	channel string
	now     func() time.Time
	log     logger.Logger
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...Option) (*RedisEnforcer, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: connect to redis at %s: %w", ErrEnforce, addr, err)
	}
	return NewRedisEnforcer(rdb, opts...), nil
}

// NewRedisEnforcer wraps an existing client.
func NewRedisEnforcer(rdb redisClient, opts ...Option) *RedisEnforcer {
	e := &RedisEnforcer{
		rdb:     rdb,
		prefix:  "sentinel:ban:",
		channel: "sentinel:enforcement",
		now:     time.Now,
		log:     logger.Get().Named("enforcement"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *RedisEnforcer) key(playerID int) string {
	return e.prefix + strconv.Itoa(playerID)
}

// Ban sets the ban key for d and publishes the command. A non-positive d
// bans without expiry.
func (e *RedisEnforcer) Ban(ctx context.Context, playerID int, reason, issuer string, d time.Duration) error {
	now := e.now()
	cmd := Command{Action: ActionBan, PlayerID: playerID, Reason: reason, Issuer: issuer, At: now}
	ttl := time.Duration(0)
	if d > 0 {
		ttl = d
		cmd.DurationSec = int64(d / time.Second)
		exp := now.Add(d)
		cmd.ExpiresAt = &exp
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrEnforce, err)
	}
	if err := e.rdb.Set(ctx, e.key(playerID), b, ttl).Err(); err != nil {
		metrics.RecordCollaboratorFailure("redis")
		return fmt.Errorf("%w: set ban for %d: %w", ErrEnforce, playerID, err)
	}
	if err := e.publish(ctx, b); err != nil {
		return err
	}
	e.log.Warn(ctx, "player banned",
		logger.PlayerID(playerID),
		logger.String("reason", reason),
		logger.Duration("duration", d),
	)
	return nil
}

// Disconnect publishes a disconnect command.
func (e *RedisEnforcer) Disconnect(ctx context.Context, playerID int, msg string) error {
	b, err := json.Marshal(Command{Action: ActionDisconnect, PlayerID: playerID, Reason: msg, At: e.now()})
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrEnforce, err)
	}
	if err := e.publish(ctx, b); err != nil {
		return err
	}
	e.log.Warn(ctx, "player disconnected", logger.PlayerID(playerID), logger.String("reason", msg))
	return nil
}

// IsBanned reports whether an unexpired ban key exists.
func (e *RedisEnforcer) IsBanned(ctx context.Context, playerID int) (bool, error) {
	n, err := e.rdb.Exists(ctx, e.key(playerID)).Result()
	if err != nil {
		metrics.RecordCollaboratorFailure("redis")
		return false, fmt.Errorf("%w: lookup ban for %d: %w", ErrEnforce, playerID, err)
	}
	return n > 0, nil
}

// Close closes the client.
func (e *RedisEnforcer) Close() error {
	return e.rdb.Close()
}

func (e *RedisEnforcer) publish(ctx context.Context, payload []byte) error {
	if err := e.rdb.Publish(ctx, e.channel, payload).Err(); err != nil {
		metrics.RecordCollaboratorFailure("redis")
		return fmt.Errorf("%w: publish: %w", ErrEnforce, err)
	}
	return nil
}
