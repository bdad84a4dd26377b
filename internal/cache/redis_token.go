package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"server-availability-monitor/internal/core/model"
)

// KeyToken Redis 中令牌的键模板: monitor:token:{uuid}
const KeyToken = "monitor:token:%s"

// RedisTokens 基于 Redis 的令牌存储，多实例部署时共享令牌
type RedisTokens struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTokens 创建 Redis 令牌存储
// 参数 url: redis://[:password@]host:port/db
// 参数 ttl: 有效期，<=0 时使用 DefaultTokenTTL
func NewRedisTokens(ctx context.Context, url string, ttl time.Duration) (*RedisTokens, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("解析 Redis 地址失败: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisTokensWithClient(client, ttl), nil
}

// NewRedisTokensWithClient 使用已有客户端创建令牌存储
func NewRedisTokensWithClient(client *redis.Client, ttl time.Duration) *RedisTokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &RedisTokens{client: client, ttl: ttl}
}

// Issue 生成令牌并以 JSON 写入 Redis（带过期时间）
func (r *RedisTokens) Issue(ctx context.Context, d model.OrderDescriptor) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("序列化下单参数失败: %w", err)
	}
	if err := r.client.Set(ctx, fmt.Sprintf(KeyToken, token), b, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("写入令牌失败: %w", err)
	}
	return token, nil
}

// Resolve 读取令牌；键不存在（含已过期）返回 ErrTokenNotFound
func (r *RedisTokens) Resolve(ctx context.Context, token string) (model.OrderDescriptor, error) {
	b, err := r.client.Get(ctx, fmt.Sprintf(KeyToken, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.OrderDescriptor{}, ErrTokenNotFound
		}
		return model.OrderDescriptor{}, fmt.Errorf("读取令牌失败: %w", err)
	}
	var d model.OrderDescriptor
	if err := json.Unmarshal(b, &d); err != nil {
		return model.OrderDescriptor{}, fmt.Errorf("解析令牌内容失败: %w", err)
	}
	return d, nil
}

// Close 关闭 Redis 连接
func (r *RedisTokens) Close() error {
	return r.client.Close()
}
