package cache

import (
	"sync"
	"time"

	"server-availability-monitor/internal/core/model"
)

// DefaultPriceTTL 价格缓存有效期：3 天
const DefaultPriceTTL = 3 * 24 * time.Hour

// PriceCache 价格缓存
// 两个独立结构：按 (型号, 排序后的选项) 缓存报价的 TTL 表，
// 以及历史上曾成功询价的型号集合（永不过期）。
// 有效集合只用于决定是否跳过价格核验，不会提供报价值。
type PriceCache struct {
	quotes *TTLCache[string, model.Quote]

	validMu sync.RWMutex
	valid   map[string]struct{}
}

// NewPriceCache 创建价格缓存
// 参数 ttl: 报价有效期，<=0 时使用 DefaultPriceTTL
// 参数 now: 时间源
func NewPriceCache(ttl time.Duration, now Clock) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	return &PriceCache{
		quotes: NewTTLCache[string, model.Quote](ttl, now),
		valid:  make(map[string]struct{}),
	}
}

// PriceKey 生成缓存键: planCode|排序后的选项
func PriceKey(planCode string, options []string) string {
	return planCode + "|" + model.OptionsKey(options)
}

// Get 读取未过期的报价
func (c *PriceCache) Get(planCode string, options []string) (model.Quote, bool) {
	q, _, ok := c.quotes.Get(PriceKey(planCode, options))
	return q, ok
}

// Put 写入报价，并把型号加入永久有效集合
func (c *PriceCache) Put(planCode string, options []string, q model.Quote) {
	c.quotes.Set(PriceKey(planCode, options), q)
	c.MarkValid(planCode)
}

// MarkValid 标记型号为有效（曾成功询价）
func (c *PriceCache) MarkValid(planCode string) {
	c.validMu.Lock()
	c.valid[planCode] = struct{}{}
	c.validMu.Unlock()
}

// IsValid 型号是否在永久有效集合中
func (c *PriceCache) IsValid(planCode string) bool {
	c.validMu.RLock()
	_, ok := c.valid[planCode]
	c.validMu.RUnlock()
	return ok
}

// ValidCount 有效型号数量
func (c *PriceCache) ValidCount() int {
	c.validMu.RLock()
	defer c.validMu.RUnlock()
	return len(c.valid)
}
