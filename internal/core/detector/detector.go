// Package detector 实现可用性变化检测。
// 给定订阅（含上次状态）与最新快照，判断每个状态键的变化类型、
// 需要发送的通知，以及本轮结束时要合并进 lastStatus 的状态。
package detector

import (
	"sort"

	"go.uber.org/zap"

	"server-availability-monitor/internal/core/model"
)

// Transition 单个状态键上需要通知的变化
type Transition struct {
	// Datacenter 数据中心
	Datacenter string
	// StatusKey 状态键
	StatusKey string
	// Status 新状态
	Status string
	// OldStatus 旧状态（首次检查时为空）
	OldStatus string
	// FirstSeen 是否为首次观测到该状态键
	FirstSeen bool
	// Change 变化类型
	Change model.ChangeType
}

// IsLoss 是否为真正的“有货 -> 无货”（首次检查无货不算）
func (t Transition) IsLoss() bool {
	return t.Change == model.ChangeUnavailable && !t.FirstSeen && model.IsAvailable(t.OldStatus)
}

// Group 单个配置下本轮需要通知的变化
// 扁平数据统一归入 ConfigID 为空的组。
type Group struct {
	// ConfigID 配置标识
	ConfigID string
	// Config 配置描述（扁平数据为 nil）
	Config *model.ConfigInfo
	// Available 变为有货的机房（用于汇总通知与自动下单）
	Available []Transition
	// Unavailable 变为无货的机房（逐个通知）
	Unavailable []Transition
}

// Options 下单选项代码
func (g *Group) Options() []string {
	if g.Config == nil {
		return nil
	}
	return g.Config.Options
}

// Display 配置展示文本
func (g *Group) Display() string {
	if g.Config == nil {
		return ""
	}
	return g.Config.Display
}

// AvailableStatuses 有货机房的 状态键 -> 状态，用于下单后的状态固定
func (g *Group) AvailableStatuses() map[string]string {
	out := make(map[string]string, len(g.Available))
	for _, t := range g.Available {
		out[t.StatusKey] = t.Status
	}
	return out
}

// Result 一次检测的结果
type Result struct {
	// Groups 有通知的配置组，按快照顺序
	Groups []Group
	// Merge 本轮结束时合并进 lastStatus 的状态
	Merge map[string]string
	// Suppressed 被重复触发保护跳过通知与下单的状态键
	Suppressed []string
}

// Notifications 本轮通知总数
func (r *Result) Notifications() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Available) + len(g.Unavailable)
	}
	return n
}

// Detector 变化检测器（无状态）
type Detector struct {
	logger *zap.Logger
}

// New 创建检测器
func New(logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{logger: logger.Named("detector")}
}

// Detect 对比订阅的上次状态与快照
// sub 应为 store 返回的拷贝，本方法不修改它。
func (d *Detector) Detect(sub model.Subscription, snap model.Snapshot) Result {
	res := Result{Merge: make(map[string]string)}
	suppressed := make(map[string]struct{})

	flatIdx := -1
	for _, entry := range snap {
		switch e := entry.(type) {
		case model.FlatStatus:
			key := model.StatusKey(e.Datacenter, "")
			res.Merge[key] = e.Status
			if !sub.WatchesDatacenter(e.Datacenter) {
				continue
			}
			old, had := sub.LastStatus[key]
			tr, ok := d.classify(&sub, key, e.Datacenter, old, had, e.Status, "")
			if !ok {
				continue
			}
			if flatIdx < 0 {
				res.Groups = append(res.Groups, Group{})
				flatIdx = len(res.Groups) - 1
			}
			appendTransition(&res.Groups[flatIdx], tr)

		case model.ConfiguredStatus:
			info := e.Info()
			group := Group{ConfigID: e.ConfigID, Config: info}
			for _, dc := range e.SortedDatacenters() {
				status := e.Datacenters[dc]
				key := model.StatusKey(dc, e.ConfigID)
				res.Merge[key] = status
				if !sub.WatchesDatacenter(dc) {
					continue
				}

				old, had := sub.LastStatus[key]
				if !had && model.IsAvailable(status) && sub.AutoOrder && siblingAvailable(sub.LastStatus, key, e.ConfigID) {
					// 同配置其它机房已有货：大概率是状态键形态不同的同一批库存
					d.logger.Warn("同配置其它机房已有货，跳过首次触发以避免重复下单",
						zap.String("plan", sub.PlanCode),
						zap.String("key", key),
						zap.String("status", status))
					suppressed[key] = struct{}{}
					continue
				}

				tr, ok := d.classify(&sub, key, dc, old, had, status, info.Display)
				if ok {
					appendTransition(&group, tr)
				}
			}
			if len(group.Available) > 0 || len(group.Unavailable) > 0 {
				res.Groups = append(res.Groups, group)
			}
		}
	}

	// 被跳过的键不通知、不下单，但仍在本轮末尾合并，
	// 否则同配置机房售罄后同一快照会再次触发它。
	for key := range suppressed {
		res.Suppressed = append(res.Suppressed, key)
	}
	sort.Strings(res.Suppressed)
	return res
}

// classify 判断单个状态键的变化
// 返回: 变化与是否需要通知
func (d *Detector) classify(sub *model.Subscription, key, dc, old string, had bool, status, display string) (Transition, bool) {
	tr := Transition{
		Datacenter: dc,
		StatusKey:  key,
		Status:     status,
		OldStatus:  old,
		FirstSeen:  !had,
	}

	switch {
	case !had:
		if !model.IsAvailable(status) {
			d.logger.Info("首次检查无货", zap.String("plan", sub.PlanCode), zap.String("key", key), zap.String("config", display))
			tr.Change = model.ChangeUnavailable
			return tr, sub.NotifyUnavailable
		}
		d.logger.Info("首次检查有货", zap.String("plan", sub.PlanCode), zap.String("key", key), zap.String("status", status), zap.String("config", display))
		tr.Change = model.ChangeAvailable
		return tr, sub.NotifyAvailable

	case !model.IsAvailable(old) && model.IsAvailable(status):
		d.logger.Info("从无货变有货", zap.String("plan", sub.PlanCode), zap.String("key", key), zap.String("status", status), zap.String("config", display))
		tr.Change = model.ChangeAvailable
		return tr, sub.NotifyAvailable

	case model.IsAvailable(old) && !model.IsAvailable(status):
		d.logger.Info("从有货变无货", zap.String("plan", sub.PlanCode), zap.String("key", key), zap.String("config", display))
		tr.Change = model.ChangeUnavailable
		return tr, sub.NotifyUnavailable
	}

	return tr, false
}

// siblingAvailable 上次状态中是否存在同配置、不同机房且有货的键
func siblingAvailable(last map[string]string, key, configID string) bool {
	for k, v := range last {
		if k == key || !model.IsAvailable(v) {
			continue
		}
		if _, cfg := model.SplitStatusKey(k); cfg == configID {
			return true
		}
	}
	return false
}

func appendTransition(g *Group, tr Transition) {
	if tr.Change == model.ChangeAvailable {
		g.Available = append(g.Available, tr)
		return
	}
	g.Unavailable = append(g.Unavailable, tr)
}
