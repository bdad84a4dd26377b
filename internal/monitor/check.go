package monitor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"server-availability-monitor/internal/core/detector"
	"server-availability-monitor/internal/core/history"
	"server-availability-monitor/internal/core/model"
	"server-availability-monitor/internal/core/order"
	"server-availability-monitor/internal/core/pricing"
	"server-availability-monitor/internal/events"
	"server-availability-monitor/internal/notify"
)

// CheckSubscription 检查单个订阅
// 流程: 快照 -> 变化检测 -> 并发询价 -> 自动下单（提交后固定状态）
// -> 通知、历史与事件 -> 合并 lastStatus。
// 快照失败时不修改任何状态；处理过程中的 panic 被捕获并转为错误。
func (m *Monitor) CheckSubscription(ctx context.Context, planCode string) (err error) {
	sub, ok := m.deps.Store.Get(planCode)
	if !ok {
		return ErrUnknownSubscription
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("检查订阅时发生异常",
				zap.String("plan", planCode),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = fmt.Errorf("检查 %s 时发生异常: %v", planCode, r)
		}
	}()

	snap, err := m.deps.Source.Availability(ctx, planCode)
	if err != nil {
		m.logger.Warn("无法获取可用性信息", zap.String("plan", planCode), zap.Error(err))
		return err
	}
	m.logger.Debug("获取快照",
		zap.String("plan", planCode),
		zap.Strings("dcs", sub.Datacenters),
		zap.Int("entries", len(snap)))

	res := m.deps.Detector.Detect(sub, snap)

	quotes := m.resolvePrices(ctx, &sub, res.Groups)

	if sub.AutoOrder && m.deps.Orders != nil {
		m.autoOrder(ctx, &sub, res.Groups)
	}

	for i := range res.Groups {
		g := &res.Groups[i]
		if len(g.Available) > 0 {
			m.notifyAvailable(ctx, &sub, g, quotes)
		}
		for _, tr := range g.Unavailable {
			m.notifyUnavailable(ctx, &sub, g, tr)
		}
	}

	m.deps.Store.MergeStatus(planCode, res.Merge)
	return nil
}

func priceRequest(planCode string, g *detector.Group) pricing.Request {
	return pricing.Request{PlanCode: planCode, Datacenter: g.Available[0].Datacenter, Options: g.Options()}
}

// resolvePrices 为有货配置并发询价（相同配置只查一次）
func (m *Monitor) resolvePrices(ctx context.Context, sub *model.Subscription, groups []detector.Group) map[string]model.Quote {
	if m.deps.Prices == nil {
		return nil
	}
	var reqs []pricing.Request
	for i := range groups {
		if len(groups[i].Available) > 0 {
			reqs = append(reqs, priceRequest(sub.PlanCode, &groups[i]))
		}
	}
	if len(reqs) == 0 {
		return nil
	}
	return m.deps.Prices.ResolveAll(ctx, reqs)
}

func (m *Monitor) autoOrder(ctx context.Context, sub *model.Subscription, groups []detector.Group) {
	for i := range groups {
		g := &groups[i]
		if len(g.Available) == 0 {
			continue
		}
		if g.Config == nil {
			// 扁平数据没有配置选项，只通知不下单
			m.logger.Debug("扁平数据不触发自动下单", zap.String("plan", sub.PlanCode))
			continue
		}
		dcs := make([]string, 0, len(g.Available))
		for _, tr := range g.Available {
			dcs = append(dcs, tr.Datacenter)
		}
		m.logger.Info("检测到机房有货，触发自动下单",
			zap.String("plan", sub.PlanCode),
			zap.String("config", g.Display()),
			zap.Strings("dcs", dcs))

		pinned := g.AvailableStatuses()
		m.deps.Orders.Run(ctx, order.Batch{
			PlanCode:    sub.PlanCode,
			Datacenters: dcs,
			Options:     g.Options(),
			Quantity:    sub.AutoOrderQuantity,
		}, func() {
			m.deps.Store.PinStatus(sub.PlanCode, pinned)
			m.logger.Info("自动下单后立即固定状态", zap.String("plan", sub.PlanCode), zap.Any("statuses", pinned))
		})
	}
}

func (m *Monitor) notifyAvailable(ctx context.Context, sub *model.Subscription, g *detector.Group, quotes map[string]model.Quote) {
	alert := notify.AvailableAlert{
		PlanCode:   sub.PlanCode,
		ServerName: sub.ServerName,
		Config:     g.Config,
	}
	for _, tr := range g.Available {
		alert.Datacenters = append(alert.Datacenters, tr.Datacenter)
	}

	req := priceRequest(sub.PlanCode, g)
	if q, ok := quotes[req.Key()]; ok {
		alert.Price = &q
	} else if m.deps.Prices != nil {
		// 询价超时后可能已由其它请求写入缓存
		if q, ok := m.deps.Prices.Cached(req.PlanCode, req.Options); ok {
			alert.Price = &q
		}
	}

	m.logger.Info("发送汇总有货提醒",
		zap.String("plan", sub.PlanCode),
		zap.String("config", g.Display()),
		zap.Int("dcs", len(alert.Datacenters)))
	m.deliver(ctx, sub, m.deps.Builder.Available(ctx, alert))

	for _, tr := range g.Available {
		m.record(ctx, sub, g, tr)
	}
}

func (m *Monitor) notifyUnavailable(ctx context.Context, sub *model.Subscription, g *detector.Group, tr detector.Transition) {
	alert := notify.UnavailableAlert{
		PlanCode:   sub.PlanCode,
		ServerName: sub.ServerName,
		Datacenter: tr.Datacenter,
		Config:     g.Config,
	}
	if tr.IsLoss() {
		if d, ok := history.AvailableFor(sub.History, tr.Datacenter, g.Display(), m.opts.Now()); ok {
			alert.Duration = &d
		} else {
			m.logger.Info("未找到有货记录，无法计算历时", zap.String("plan", sub.PlanCode), zap.String("dc", tr.Datacenter))
		}
	}

	m.logger.Info("发送无货提醒", zap.String("plan", sub.PlanCode), zap.String("dc", tr.Datacenter), zap.String("config", g.Display()))
	m.deliver(ctx, sub, m.deps.Builder.Unavailable(alert))
	m.record(ctx, sub, g, tr)
}

func (m *Monitor) deliver(ctx context.Context, sub *model.Subscription, msg notify.Message) {
	if err := notify.Deliver(ctx, m.deps.Sender, msg); err != nil {
		m.logger.Warn("通知发送失败", zap.String("plan", sub.PlanCode), zap.Error(err))
	}
}

// record 追加历史并发布事件
func (m *Monitor) record(ctx context.Context, sub *model.Subscription, g *detector.Group, tr detector.Transition) {
	now := m.opts.Now()
	entry := model.HistoryEntry{
		Timestamp:  now,
		Datacenter: tr.Datacenter,
		Status:     tr.Status,
		ChangeType: tr.Change,
		OldStatus:  tr.OldStatus,
		Config:     g.Config,
	}
	m.deps.Store.AppendHistory(sub.PlanCode, entry)
	if err := m.deps.Events.Publish(ctx, events.NewTransition(sub, entry, now)); err != nil {
		m.logger.Warn("发布事件失败", zap.String("plan", sub.PlanCode), zap.Error(err))
	}
}
