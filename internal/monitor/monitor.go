// Package monitor 驱动轮询循环。
// 单个后台 goroutine 按插入顺序依次检查订阅；每个订阅内部的询价与下单
// 使用临时的有界工作池，lastStatus 与 history 只通过 store 写入。
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"server-availability-monitor/internal/core/detector"
	"server-availability-monitor/internal/core/model"
	"server-availability-monitor/internal/core/order"
	"server-availability-monitor/internal/core/pricing"
	"server-availability-monitor/internal/core/store"
	"server-availability-monitor/internal/events"
	"server-availability-monitor/internal/notify"
	"server-availability-monitor/internal/util/timeutil"
)

// 默认节奏
const (
	DefaultInterval          = 5 * time.Second
	DefaultSubscriptionDelay = time.Second
	DefaultTick              = time.Second
	DefaultStopTimeout       = 3 * time.Second
)

// ErrUnknownSubscription 订阅不存在
var ErrUnknownSubscription = errors.New("订阅不存在")

// SnapshotSource 可用性快照来源
type SnapshotSource interface {
	Availability(ctx context.Context, planCode string) (model.Snapshot, error)
}

// Deps 监控器依赖
type Deps struct {
	Store    *store.Store
	Source   SnapshotSource
	Detector *detector.Detector
	Prices   *pricing.Resolver
	Orders   *order.Orchestrator
	Builder  *notify.Builder
	Sender   notify.Sender
	// Events 可选，nil 时不发布事件
	Events events.Sink
	Logger *zap.Logger
}

// Options 节奏参数（测试可缩短）
type Options struct {
	// Interval 两轮检查之间的间隔
	Interval time.Duration
	// SubscriptionDelay 相邻订阅之间的间隔
	SubscriptionDelay time.Duration
	// Tick 休眠分段粒度，决定停止延迟
	Tick time.Duration
	// StopTimeout Stop 等待循环退出的上限
	StopTimeout time.Duration
	// Now 时间源
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.SubscriptionDelay < 0 {
		o.SubscriptionDelay = 0
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.Now == nil {
		o.Now = timeutil.Now
	}
}

// DefaultOptions 生产环境节奏
func DefaultOptions() Options {
	o := Options{SubscriptionDelay: DefaultSubscriptionDelay}
	o.setDefaults()
	return o
}

// Status 监控器状态
type Status struct {
	Running       bool      `json:"running"`
	Stopping      bool      `json:"stopping"` // 已停止但上一次循环仍在退出
	Subscriptions int       `json:"subscriptionCount"`
	KnownServers  int       `json:"knownServerCount"`
	ValidPlans    int       `json:"validPlanCount"`
	IntervalSec   int       `json:"checkInterval"`
	Cycles        uint64    `json:"cycles"`
	LastCycleAt   time.Time `json:"lastCycleAt,omitempty"`
}

// Monitor 轮询监控器
type Monitor struct {
	deps   Deps
	opts   Options
	logger *zap.Logger

	interval atomic.Int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	cycles    atomic.Uint64
	lastCycle atomic.Int64

	// known 已知型号基线，首次发现调用时建立
	knownMu sync.Mutex
	known   map[string]struct{}
}

// New 创建监控器
func New(deps Deps, opts Options) *Monitor {
	opts.setDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Detector == nil {
		deps.Detector = detector.New(deps.Logger)
	}
	if deps.Builder == nil {
		deps.Builder = notify.NewBuilder(nil, opts.Now, deps.Logger)
	}
	m := &Monitor{deps: deps, opts: opts, logger: deps.Logger.Named("monitor")}
	m.interval.Store(int64(opts.Interval))
	return m
}

// Add 添加或更新订阅（不重置状态）
func (m *Monitor) Add(sub model.Subscription) bool {
	created := m.deps.Store.Add(sub)
	if created {
		m.logger.Info("添加订阅", zap.String("plan", sub.DisplayName()), zap.Strings("dcs", sub.Datacenters))
	} else {
		m.logger.Warn("订阅已存在，更新配置（不重置状态）", zap.String("plan", sub.PlanCode))
	}
	return created
}

// Remove 删除订阅
func (m *Monitor) Remove(planCode string) bool {
	ok := m.deps.Store.Remove(planCode)
	if ok {
		m.logger.Info("删除订阅", zap.String("plan", planCode))
	}
	return ok
}

// Clear 清空订阅
func (m *Monitor) Clear() int {
	n := m.deps.Store.Clear()
	m.logger.Info("清空所有订阅", zap.Int("count", n))
	return n
}

// SetInterval 设置检查间隔
// 间隔全局固定为 DefaultInterval，请求值只记录在日志中；
// 循环在下一次等待时读取新值。
// 返回: 生效的间隔
func (m *Monitor) SetInterval(requested time.Duration) time.Duration {
	m.interval.Store(int64(DefaultInterval))
	m.logger.Info("检查间隔已固定为 5 秒，忽略修改请求", zap.Duration("requested", requested))
	return DefaultInterval
}

// Status 当前状态
func (m *Monitor) Status() Status {
	m.mu.Lock()
	running := m.running
	stopping := !running && m.stoppingLocked()
	m.mu.Unlock()

	s := Status{
		Running:       running,
		Stopping:      stopping,
		Subscriptions: m.deps.Store.Len(),
		KnownServers:  m.knownServerCount(),
		IntervalSec:   int(time.Duration(m.interval.Load()) / time.Second),
		Cycles:        m.cycles.Load(),
	}
	if m.deps.Prices != nil {
		s.ValidPlans = m.deps.Prices.Cache().ValidCount()
	}
	if ns := m.lastCycle.Load(); ns > 0 {
		s.LastCycleAt = time.Unix(0, ns).In(timeutil.Location())
	}
	return s
}

// Start 启动轮询
// 返回: 是否从停止状态切换为运行
func (m *Monitor) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.logger.Warn("监控已在运行中")
		return false
	}
	if m.stoppingLocked() {
		m.logger.Warn("上一次的监控循环尚未退出，拒绝启动")
		return false
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(ctx, m.stopCh, m.done)

	m.logger.Info("服务器监控已启动",
		zap.Duration("interval", time.Duration(m.interval.Load())),
		zap.Int("subscriptions", m.deps.Store.Len()))
	return true
}

// stoppingLocked 已请求停止但循环仍未退出
func (m *Monitor) stoppingLocked() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// Stop 停止轮询，最多等待 StopTimeout
// 进行中的询价与下单不会被取消；超时后循环仍在退出中，
// 在它真正结束前 Start 会被拒绝。
func (m *Monitor) Stop() bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}
	m.running = false
	close(m.stopCh)
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
		m.logger.Info("服务器监控已停止")
	case <-time.After(m.opts.StopTimeout):
		m.logger.Warn("等待监控循环退出超时", zap.Duration("timeout", m.opts.StopTimeout))
	}
	return true
}

func (m *Monitor) loop(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	stopped := func() bool {
		select {
		case <-stopCh:
			return true
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	for !stopped() {
		m.runCycle(ctx, stopped)

		// 每轮重新读取间隔
		interval := time.Duration(m.interval.Load())
		if timeutil.SleepChunked(interval, m.opts.Tick, stopped) {
			break
		}
	}
	m.logger.Info("监控循环已退出")
}

func (m *Monitor) runCycle(ctx context.Context, stopped func() bool) {
	plans := m.deps.Store.PlanCodes()
	m.logger.Debug("开始检查订阅", zap.Int("count", len(plans)))

	for i, pc := range plans {
		if stopped() {
			return
		}
		if err := m.CheckSubscription(ctx, pc); err != nil && !errors.Is(err, ErrUnknownSubscription) {
			m.logger.Warn("检查订阅失败", zap.String("plan", pc), zap.Error(err))
		}
		if i < len(plans)-1 && m.opts.SubscriptionDelay > 0 {
			if timeutil.SleepChunked(m.opts.SubscriptionDelay, m.opts.Tick, stopped) {
				return
			}
		}
	}

	m.cycles.Add(1)
	m.lastCycle.Store(m.opts.Now().UnixNano())
}
