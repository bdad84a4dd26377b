// Package store 维护所有监控订阅及其状态与历史。
// 订阅的 lastStatus 与 history 只能通过本包的方法修改，
// 所有写入在同一把锁下完成，调用方拿到的都是深拷贝。
package store

import (
	"sync"
	"time"

	"server-availability-monitor/internal/core/history"
	"server-availability-monitor/internal/core/model"
)

type record struct {
	sub        model.Subscription
	lastStatus map[string]string
	history    *history.Log
}

func (r *record) view() model.Subscription {
	out := r.sub.Clone()
	out.LastStatus = make(map[string]string, len(r.lastStatus))
	for k, v := range r.lastStatus {
		out.LastStatus[k] = v
	}
	out.History = r.history.Entries()
	return out
}

// Store 订阅存储
type Store struct {
	mu sync.RWMutex
	// order 订阅的插入顺序（轮询按此顺序进行）
	order   []string
	records map[string]*record

	historyLimit int
	now          func() time.Time
}

// New 创建订阅存储
// 参数 historyLimit: 每个订阅保留的历史条数，<=0 使用默认值 100
// 参数 now: 时间源，nil 时使用 time.Now
func New(historyLimit int, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		records:      make(map[string]*record),
		historyLimit: historyLimit,
		now:          now,
	}
}

// Add 添加订阅
// 已存在时只更新过滤条件、提醒开关、自动下单与名称，
// 不重置 lastStatus 与 history，避免重新配置时触发通知风暴。
// 新订阅忽略传入的 LastStatus/History，恢复持久化数据请用 Restore。
// 返回: 是否为新建
func (s *Store) Add(sub model.Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[sub.PlanCode]; ok {
		r.sub.Datacenters = append([]string(nil), sub.Datacenters...)
		r.sub.NotifyAvailable = sub.NotifyAvailable
		r.sub.NotifyUnavailable = sub.NotifyUnavailable
		r.sub.AutoOrder = sub.AutoOrder
		r.sub.AutoOrderQuantity = max(sub.AutoOrderQuantity, 0)
		r.sub.ServerName = sub.ServerName
		return false
	}

	sub.LastStatus = nil
	sub.History = nil
	s.insertLocked(sub)
	return true
}

// Restore 从持久化数据恢复订阅（含 lastStatus 与 history）
// 已存在的同名订阅会被整体替换。
func (s *Store) Restore(sub model.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[sub.PlanCode]; ok {
		s.records[sub.PlanCode] = s.newRecord(sub)
		return
	}
	s.insertLocked(sub)
}

func (s *Store) insertLocked(sub model.Subscription) {
	s.records[sub.PlanCode] = s.newRecord(sub)
	s.order = append(s.order, sub.PlanCode)
}

func (s *Store) newRecord(sub model.Subscription) *record {
	r := &record{
		sub:        sub.Clone(),
		lastStatus: make(map[string]string, len(sub.LastStatus)),
		history:    history.FromEntries(s.historyLimit, sub.History),
	}
	for k, v := range sub.LastStatus {
		r.lastStatus[k] = v
	}
	r.sub.LastStatus = nil
	r.sub.History = nil
	r.sub.AutoOrderQuantity = max(sub.AutoOrderQuantity, 0)
	if r.sub.CreatedAt.IsZero() {
		r.sub.CreatedAt = s.now()
	}
	return r
}

// Remove 删除订阅
func (s *Store) Remove(planCode string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[planCode]; !ok {
		return false
	}
	delete(s.records, planCode)
	for i, pc := range s.order {
		if pc == planCode {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear 清空所有订阅
// 返回: 清除的数量
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.order)
	s.order = nil
	s.records = make(map[string]*record)
	return n
}

// Len 订阅数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// PlanCodes 按插入顺序返回所有型号
func (s *Store) PlanCodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Get 获取订阅的深拷贝
func (s *Store) Get(planCode string) (model.Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[planCode]
	if !ok {
		return model.Subscription{}, false
	}
	return r.view(), true
}

// List 按插入顺序返回所有订阅的深拷贝
func (s *Store) List() []model.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Subscription, 0, len(s.order))
	for _, pc := range s.order {
		out = append(out, s.records[pc].view())
	}
	return out
}

// MergeStatus 将状态合并进 lastStatus（覆盖同名键，保留其它键）
// 返回: 订阅是否存在
func (s *Store) MergeStatus(planCode string, statuses map[string]string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[planCode]
	if !ok {
		return false
	}
	for k, v := range statuses {
		r.lastStatus[k] = v
	}
	return true
}

// PinStatus 自动下单提交后立即固定有货状态
// 只写入有货状态；下单成败都不会回滚。
func (s *Store) PinStatus(planCode string, statuses map[string]string) bool {
	pinned := make(map[string]string, len(statuses))
	for k, v := range statuses {
		if v != "" && model.IsAvailable(v) {
			pinned[k] = v
		}
	}
	return s.MergeStatus(planCode, pinned)
}

// AppendHistory 追加历史记录（超出上限时丢弃最旧的）
func (s *Store) AppendHistory(planCode string, entries ...model.HistoryEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[planCode]
	if !ok {
		return false
	}
	for _, e := range entries {
		r.history.Append(e)
	}
	return true
}
