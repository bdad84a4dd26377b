// Package cache 提供进程级共享缓存：价格缓存（TTL + 永久有效集合）
// 与消息令牌缓存。所有结构都可被轮询 goroutine 与工作池并发访问。
package cache

import (
	"sync"
	"time"
)

// Clock 时间源，测试中可替换
type Clock func() time.Time

type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache 固定 TTL 的内存缓存，读取时惰性淘汰过期条目
type TTLCache[K comparable, V any] struct {
	ttl   time.Duration
	now   Clock
	mu    sync.Mutex
	items map[K]ttlEntry[V]
}

// NewTTLCache 创建缓存
// 参数 ttl: 有效期，<=0 表示永不过期
// 参数 now: 时间源，nil 时使用 time.Now
func NewTTLCache[K comparable, V any](ttl time.Duration, now Clock) *TTLCache[K, V] {
	if now == nil {
		now = time.Now
	}
	return &TTLCache[K, V]{ttl: ttl, now: now, items: make(map[K]ttlEntry[V])}
}

// Get 读取未过期的值；过期条目在此处删除
// 返回: 值、写入时间与是否命中
func (c *TTLCache[K, V]) Get(key K) (V, time.Time, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return zero, time.Time{}, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.items, key)
		return zero, time.Time{}, false
	}
	return e.value, e.storedAt, true
}

// Set 写入值，写入时间取当前时钟
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	c.items[key] = ttlEntry[V]{value: value, storedAt: c.now()}
	c.mu.Unlock()
}

// Delete 删除条目
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len 当前条目数（含尚未被淘汰的过期条目）
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
