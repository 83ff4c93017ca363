package redisclient

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client wraps a Redis client with OpenTelemetry tracing
type Client struct {
	cmdable redis.Cmdable
}

// NewClient creates a new traced Redis client for single Redis instance
func NewClient(client *redis.Client) *Client {
	return &Client{cmdable: client}
}

// NewClusterClient creates a new traced Redis client for Redis cluster
func NewClusterClient(client *redis.ClusterClient) *Client {
	return &Client{cmdable: client}
}

func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	base := []attribute.KeyValue{
		attribute.String("redis.operation", op),
		attribute.String("redis.client", "app-library"),
	}
	ctx, span := otel.Tracer("redis").Start(ctx, "redis."+op,
		trace.WithAttributes(append(base, attrs...)...),
	)
	return ctx, span, time.Now()
}

func endSpan(span trace.Span, start time.Time, err error) {
	if err != nil && err != redis.Nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("redis.error", err.Error()))
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	duration := time.Since(start)
	span.SetAttributes(
		attribute.Int64("redis.duration_ms", duration.Milliseconds()),
		attribute.String("redis.duration", duration.String()),
	)
	span.End()
}

// Ping wraps Redis Ping with tracing
func (c *Client) Ping(ctx context.Context) *redis.StatusCmd {
	ctx, span, start := startSpan(ctx, "ping")
	cmd := c.cmdable.Ping(ctx)
	endSpan(span, start, cmd.Err())
	return cmd
}

// Get wraps Redis Get with tracing
func (c *Client) Get(ctx context.Context, key string) *redis.StringCmd {
	ctx, span, start := startSpan(ctx, "get",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "string"),
	)
	cmd := c.cmdable.Get(ctx, key)
	endSpan(span, start, cmd.Err())
	return cmd
}

// Set wraps Redis Set with tracing
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	ctx, span, start := startSpan(ctx, "set",
		attribute.String("redis.key", key),
		attribute.String("redis.expiration", expiration.String()),
		attribute.String("redis.type", "string"),
	)
	cmd := c.cmdable.Set(ctx, key, value, expiration)
	endSpan(span, start, cmd.Err())
	return cmd
}

// Del wraps Redis Del with tracing
func (c *Client) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	ctx, span, start := startSpan(ctx, "del",
		attribute.StringSlice("redis.keys", keys),
		attribute.Int("redis.key_count", len(keys)),
	)
	cmd := c.cmdable.Del(ctx, keys...)
	endSpan(span, start, cmd.Err())
	return cmd
}

// Exists wraps Redis Exists with tracing
func (c *Client) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	ctx, span, start := startSpan(ctx, "exists",
		attribute.StringSlice("redis.keys", keys),
		attribute.Int("redis.key_count", len(keys)),
	)
	cmd := c.cmdable.Exists(ctx, keys...)
	endSpan(span, start, cmd.Err())
	return cmd
}

// Expire wraps Redis Expire with tracing
func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	ctx, span, start := startSpan(ctx, "expire",
		attribute.String("redis.key", key),
		attribute.String("redis.expiration", expiration.String()),
	)
	cmd := c.cmdable.Expire(ctx, key, expiration)
	endSpan(span, start, cmd.Err())
	return cmd
}

// TTL wraps Redis TTL with tracing
func (c *Client) TTL(ctx context.Context, key string) *redis.DurationCmd {
	ctx, span, start := startSpan(ctx, "ttl",
		attribute.String("redis.key", key),
	)
	cmd := c.cmdable.TTL(ctx, key)
	endSpan(span, start, cmd.Err())
	return cmd
}

// RPush wraps Redis RPush with tracing
func (c *Client) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	ctx, span, start := startSpan(ctx, "rpush",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "list"),
		attribute.Int("redis.value_count", len(values)),
	)
	cmd := c.cmdable.RPush(ctx, key, values...)
	endSpan(span, start, cmd.Err())
	return cmd
}

// LPop wraps Redis LPop with tracing
func (c *Client) LPop(ctx context.Context, key string) *redis.StringCmd {
	ctx, span, start := startSpan(ctx, "lpop",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "list"),
	)
	cmd := c.cmdable.LPop(ctx, key)
	endSpan(span, start, cmd.Err())
	return cmd
}

// LRange wraps Redis LRange with tracing
func (c *Client) LRange(ctx context.Context, key string, from, to int64) *redis.StringSliceCmd {
	ctx, span, start := startSpan(ctx, "lrange",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "list"),
	)
	cmd := c.cmdable.LRange(ctx, key, from, to)
	endSpan(span, start, cmd.Err())
	return cmd
}

// LRem wraps Redis LRem with tracing
func (c *Client) LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd {
	ctx, span, start := startSpan(ctx, "lrem",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "list"),
	)
	cmd := c.cmdable.LRem(ctx, key, count, value)
	endSpan(span, start, cmd.Err())
	return cmd
}

// LLen wraps Redis LLen with tracing
func (c *Client) LLen(ctx context.Context, key string) *redis.IntCmd {
	ctx, span, start := startSpan(ctx, "llen",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "list"),
	)
	cmd := c.cmdable.LLen(ctx, key)
	endSpan(span, start, cmd.Err())
	return cmd
}

// SAdd wraps Redis SAdd with tracing
func (c *Client) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	ctx, span, start := startSpan(ctx, "sadd",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "set"),
	)
	cmd := c.cmdable.SAdd(ctx, key, members...)
	endSpan(span, start, cmd.Err())
	return cmd
}

// SRem wraps Redis SRem with tracing
func (c *Client) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	ctx, span, start := startSpan(ctx, "srem",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "set"),
	)
	cmd := c.cmdable.SRem(ctx, key, members...)
	endSpan(span, start, cmd.Err())
	return cmd
}

// SMembers wraps Redis SMembers with tracing
func (c *Client) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	ctx, span, start := startSpan(ctx, "smembers",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "set"),
	)
	cmd := c.cmdable.SMembers(ctx, key)
	endSpan(span, start, cmd.Err())
	return cmd
}

// SCard wraps Redis SCard with tracing
func (c *Client) SCard(ctx context.Context, key string) *redis.IntCmd {
	ctx, span, start := startSpan(ctx, "scard",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "set"),
	)
	cmd := c.cmdable.SCard(ctx, key)
	endSpan(span, start, cmd.Err())
	return cmd
}

// ZAdd wraps Redis ZAdd with tracing
func (c *Client) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	ctx, span, start := startSpan(ctx, "zadd",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "zset"),
	)
	cmd := c.cmdable.ZAdd(ctx, key, members...)
	endSpan(span, start, cmd.Err())
	return cmd
}

// ZRem wraps Redis ZRem with tracing
func (c *Client) ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	ctx, span, start := startSpan(ctx, "zrem",
		attribute.String("redis.key", key),
		attribute.String("redis.type", "zset"),
	)
	cmd := c.cmdable.ZRem(ctx, key, members...)
	endSpan(span, start, cmd.Err())
	return cmd
}

// Eval wraps Redis Eval with tracing; used for the atomic lease and
// delayed-job promotion scripts.
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	ctx, span, start := startSpan(ctx, "eval",
		attribute.StringSlice("redis.keys", keys),
		attribute.Int("redis.key_count", len(keys)),
	)
	cmd := c.cmdable.Eval(ctx, script, keys, args...)
	endSpan(span, start, cmd.Err())
	return cmd
}

// Pipeline returns a Redis pipeline
func (c *Client) Pipeline() redis.Pipeliner {
	return c.cmdable.Pipeline()
}

// TxPipeline returns a transactional Redis pipeline
func (c *Client) TxPipeline() redis.Pipeliner {
	return c.cmdable.TxPipeline()
}

// PoolStats wraps Redis pool statistics with proper interface handling
func (c *Client) PoolStats() *redis.PoolStats {
	if singleClient, ok := c.cmdable.(*redis.Client); ok {
		return singleClient.PoolStats()
	}
	if clusterClient, ok := c.cmdable.(*redis.ClusterClient); ok {
		return clusterClient.PoolStats()
	}
	return &redis.PoolStats{}
}
