// Package pricing 负责带缓存的价格解析与并发询价。
package pricing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"server-availability-monitor/internal/cache"
	"server-availability-monitor/internal/core/model"
)

// DefaultTimeout 单次询价超时
const DefaultTimeout = 15 * time.Second

// MaxWorkers 并发询价上限
const MaxWorkers = 10

// Querier 外部价格服务
type Querier interface {
	QueryPrice(ctx context.Context, planCode, datacenter string, options []string) (model.Quote, error)
}

// Request 一次询价请求
type Request struct {
	PlanCode   string
	Datacenter string
	Options    []string
}

// Key 缓存键（与机房无关）
func (r Request) Key() string {
	return cache.PriceKey(r.PlanCode, r.Options)
}

// Resolver 价格解析器
// 先查缓存，未命中时只发一次外部请求；失败或超时返回 absent，不报错。
type Resolver struct {
	querier Querier
	cache   *cache.PriceCache
	timeout time.Duration
	logger  *zap.Logger
}

// NewResolver 创建价格解析器
// 参数 timeout: 单次询价超时，<=0 使用 DefaultTimeout
func NewResolver(q Querier, c *cache.PriceCache, timeout time.Duration, logger *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{querier: q, cache: c, timeout: timeout, logger: logger.Named("pricing")}
}

// Cache 底层价格缓存
func (r *Resolver) Cache() *cache.PriceCache {
	return r.cache
}

// Cached 只读缓存，不发请求
func (r *Resolver) Cached(planCode string, options []string) (model.Quote, bool) {
	return r.cache.Get(planCode, options)
}

// Resolve 解析价格
// 成功时写入缓存并把型号加入永久有效集合。
func (r *Resolver) Resolve(ctx context.Context, req Request) (model.Quote, bool) {
	if q, ok := r.cache.Get(req.PlanCode, req.Options); ok {
		r.logger.Debug("使用缓存价格", zap.String("key", req.Key()), zap.String("price", q.Text()))
		return q, true
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	q, err := r.querier.QueryPrice(ctx, req.PlanCode, req.Datacenter, req.Options)
	if err != nil {
		r.logger.Warn("价格获取失败，通知中不包含价格",
			zap.String("plan", req.PlanCode),
			zap.String("dc", req.Datacenter),
			zap.Strings("options", req.Options),
			zap.Error(err))
		return model.Quote{}, false
	}

	r.cache.Put(req.PlanCode, req.Options, q)
	r.logger.Debug("价格已缓存", zap.String("key", req.Key()), zap.String("price", q.Text()))
	return q, true
}

// ResolveAll 并发解析多个配置的价格
// 相同缓存键只解析一次；工作池大小为 min(n, 10)。
// 返回: 缓存键 -> 报价（失败的键不在结果中）
func (r *Resolver) ResolveAll(ctx context.Context, reqs []Request) map[string]model.Quote {
	out := make(map[string]model.Quote, len(reqs))

	seen := make(map[string]struct{}, len(reqs))
	var pending []Request
	for _, req := range reqs {
		key := req.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if q, ok := r.cache.Get(req.PlanCode, req.Options); ok {
			out[key] = q
			continue
		}
		pending = append(pending, req)
	}
	if len(pending) == 0 {
		return out
	}

	r.logger.Info("并发查询价格", zap.Int("configs", len(pending)))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(len(pending), MaxWorkers))
	for _, req := range pending {
		req := req
		g.Go(func() error {
			if q, ok := r.Resolve(gctx, req); ok {
				mu.Lock()
				out[req.Key()] = q
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
