package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"server-availability-monitor/internal/core/model"
)

// DefaultTokenTTL 消息令牌有效期：24 小时
const DefaultTokenTTL = 24 * time.Hour

// ErrTokenNotFound 令牌不存在或已过期
var ErrTokenNotFound = errors.New("令牌不存在或已过期")

// TokenStore 消息令牌存储
// 通知按钮只携带令牌，用户点击后再通过令牌恢复完整下单参数。
type TokenStore interface {
	// Issue 为下单参数生成新令牌
	Issue(ctx context.Context, d model.OrderDescriptor) (string, error)
	// Resolve 解析令牌；未知或过期返回 ErrTokenNotFound
	Resolve(ctx context.Context, token string) (model.OrderDescriptor, error)
}

// NewToken 生成 128 位随机令牌
func NewToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("生成令牌失败: %w", err)
	}
	return id.String(), nil
}

// MemoryTokens 进程内令牌缓存
type MemoryTokens struct {
	items *TTLCache[string, model.OrderDescriptor]
	now   Clock
}

// NewMemoryTokens 创建进程内令牌缓存
// 参数 ttl: 有效期，<=0 时使用 DefaultTokenTTL
func NewMemoryTokens(ttl time.Duration, now Clock) *MemoryTokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryTokens{items: NewTTLCache[string, model.OrderDescriptor](ttl, now), now: now}
}

// Issue 生成令牌并缓存下单参数
func (m *MemoryTokens) Issue(_ context.Context, d model.OrderDescriptor) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = m.now()
	}
	m.items.Set(token, d)
	return token, nil
}

// Resolve 解析令牌
func (m *MemoryTokens) Resolve(_ context.Context, token string) (model.OrderDescriptor, error) {
	d, _, ok := m.items.Get(token)
	if !ok {
		return model.OrderDescriptor{}, ErrTokenNotFound
	}
	return d, nil
}
