// Package backoff 实现推送通道断线重连的指数退避。
// 基础间隔 1s，最大间隔 30s，抖动 ±20%。
package backoff

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Backoff 指数退避计算器（并发安全）
// 每次失败调用 Next() 获取下一次等待时间，成功后 Reset()。
type Backoff struct {
	// base 基础等待时间
	base time.Duration
	// max 最大等待时间
	max time.Duration
	// jitter 抖动比例（0-1）
	jitter float64

	mu      sync.Mutex
	attempt int
}

// New 创建新的退避计算器
// 参数 base: 基础等待时间
// 参数 max: 最大等待时间
// 参数 jitter: 抖动比例，0.2 表示 ±20%
func New(base, max time.Duration, jitter float64) *Backoff {
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	return &Backoff{base: base, max: max, jitter: jitter}
}

// NewDefault 创建默认配置的退避计算器
func NewDefault() *Backoff {
	return New(time.Second, 30*time.Second, 0.2)
}

// Next 获取下次重试的等待时间: min(base*2^attempt, max) 再叠加抖动
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	attempt := b.attempt
	b.attempt++
	b.mu.Unlock()

	delay := b.max
	// 超过 30 次移位必然溢出或超过上限
	if attempt < 30 {
		if d := b.base << uint(attempt); d > 0 && d < b.max {
			delay = d
		}
	}

	if b.jitter > 0 {
		factor := 1.0 + (rand.Float64()*2-1)*b.jitter
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

// Wait 等待下一次退避时间，ctx 取消时提前返回其错误
func (b *Backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reset 连接成功后重置重试次数
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}

// Attempt 当前重试次数
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
