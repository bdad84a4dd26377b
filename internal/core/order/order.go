// Package order 实现自动下单编排。
// 同一配置的有货机房先做一次价格核验（型号未验证时），
// 再按 机房 × 数量 并发提交下单请求，提交后立即固定状态。
package order

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"server-availability-monitor/internal/cache"
	"server-availability-monitor/internal/core/model"
)

// MaxWorkers 并发下单上限
const MaxWorkers = 10

// Submitter 外部下单服务
type Submitter interface {
	SubmitOrder(ctx context.Context, req model.OrderRequest) error
}

// PriceChecker 价格核验
type PriceChecker interface {
	QueryPrice(ctx context.Context, planCode, datacenter string, options []string) (model.Quote, error)
}

// Batch 一个配置组的自动下单批次
type Batch struct {
	// PlanCode 服务器型号
	PlanCode string
	// Datacenters 有货机房（按顺序，第一个用于价格核验）
	Datacenters []string
	// Options 选项代码
	Options []string
	// Quantity 每个机房的下单数量，0 表示单次下单
	Quantity int
}

// Count 每个机房实际下单数
func (b Batch) Count() int {
	if b.Quantity > 0 {
		return b.Quantity
	}
	return 1
}

// Summary 下单结果汇总（仅用于日志）
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	// Validated 本批次是否跳过了价格核验
	Validated bool
}

// Orchestrator 自动下单编排器
type Orchestrator struct {
	orders Submitter
	prices PriceChecker
	cache  *cache.PriceCache
	logger *zap.Logger
}

// NewOrchestrator 创建下单编排器
func NewOrchestrator(orders Submitter, prices PriceChecker, c *cache.PriceCache, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{orders: orders, prices: prices, cache: c, logger: logger.Named("order")}
}

type job struct {
	req   model.OrderRequest
	index int
}

// Run 执行一个批次
// pin 在全部请求入队后、等待结果前于调用方 goroutine 上执行一次，
// 下单成败都不会回滚它写入的状态。
func (o *Orchestrator) Run(ctx context.Context, b Batch, pin func()) Summary {
	if len(b.Datacenters) == 0 {
		return Summary{}
	}

	validated := o.validate(ctx, b)
	count := b.Count()
	skipDup := b.Quantity > 0
	total := len(b.Datacenters) * count

	o.logger.Info("并发执行下单请求",
		zap.String("plan", b.PlanCode),
		zap.Strings("dcs", b.Datacenters),
		zap.Int("per_dc", count),
		zap.Int("total", total),
		zap.Bool("skip_price_check", validated),
		zap.Bool("skip_duplicate_check", skipDup))

	var ok, failed atomic.Int32
	jobs := make(chan job, total)
	g := new(errgroup.Group)
	for w := 0; w < min(total, MaxWorkers); w++ {
		g.Go(func() error {
			for j := range jobs {
				o.submit(ctx, j, count, &ok, &failed)
			}
			return nil
		})
	}

	for _, dc := range b.Datacenters {
		d := model.OrderDescriptor{PlanCode: b.PlanCode, Datacenter: dc, Options: b.Options}
		for i := 0; i < count; i++ {
			req := d.ToRequest(validated)
			req.SkipDuplicateCheck = skipDup
			jobs <- job{req: req, index: i}
		}
	}
	close(jobs)

	// 批次已提交，不等待结果直接固定状态
	if pin != nil {
		pin()
	}
	_ = g.Wait()

	s := Summary{Total: total, Succeeded: int(ok.Load()), Failed: int(failed.Load()), Validated: validated}
	o.logger.Info("下单批次完成",
		zap.String("plan", b.PlanCode),
		zap.Int("total", s.Total),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed))
	return s
}

func (o *Orchestrator) submit(ctx context.Context, j job, count int, ok, failed *atomic.Int32) {
	if err := o.orders.SubmitOrder(ctx, j.req); err != nil {
		failed.Add(1)
		o.logger.Warn("快速下单失败",
			zap.String("plan", j.req.PlanCode),
			zap.String("dc", j.req.Datacenter),
			zap.Int("index", j.index+1),
			zap.Error(err))
		return
	}
	ok.Add(1)
	o.logger.Info("快速下单成功",
		zap.String("plan", j.req.PlanCode),
		zap.String("dc", j.req.Datacenter),
		zap.Int("index", j.index+1),
		zap.Int("count", count))
}

// validate 型号不在永久有效集合时，用第一个有货机房询价一次
// 返回: 下单请求是否可以跳过价格核验
func (o *Orchestrator) validate(ctx context.Context, b Batch) bool {
	if o.cache.IsValid(b.PlanCode) {
		return true
	}

	dc := b.Datacenters[0]
	o.logger.Info("型号未验证，先查询一次价格",
		zap.String("plan", b.PlanCode),
		zap.String("dc", dc),
		zap.Strings("options", b.Options))

	q, err := o.prices.QueryPrice(ctx, b.PlanCode, dc, b.Options)
	if err != nil {
		o.logger.Warn("价格验证失败，下单时不跳过价格核验", zap.String("plan", b.PlanCode), zap.Error(err))
		return false
	}
	o.cache.Put(b.PlanCode, b.Options, q)
	o.logger.Info("价格验证成功，标记型号为有效", zap.String("plan", b.PlanCode), zap.String("price", q.Text()))
	return true
}
