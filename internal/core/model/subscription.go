// Package model 定义监控器中使用的核心数据结构。
package model

import (
	"strings"
	"time"
)

// StatusUnavailable 无货状态字面量，其余任意状态值均视为有货
const StatusUnavailable = "unavailable"

// ChangeType 状态变化类型
type ChangeType string

const (
	// ChangeAvailable 变为有货（含首次检查有货）
	ChangeAvailable ChangeType = "available"
	// ChangeUnavailable 变为无货（含首次检查无货）
	ChangeUnavailable ChangeType = "unavailable"
)

// Subscription 单个服务器型号的监控订阅
// 由 store 独占持有；对外暴露的都是深拷贝。
type Subscription struct {
	// PlanCode 服务器型号代码（唯一键）
	PlanCode string `json:"planCode" yaml:"plan_code"`
	// Datacenters 监控的数据中心列表，空表示全部
	Datacenters []string `json:"datacenters" yaml:"datacenters"`
	// NotifyAvailable 有货时提醒
	NotifyAvailable bool `json:"notifyAvailable" yaml:"notify_available"`
	// NotifyUnavailable 无货时提醒
	NotifyUnavailable bool `json:"notifyUnavailable" yaml:"notify_unavailable"`
	// AutoOrder 有货时自动下单
	AutoOrder bool `json:"autoOrder" yaml:"auto_order"`
	// AutoOrderQuantity 每个机房的下单数量，0 表示单次下单
	AutoOrderQuantity int `json:"autoOrderQuantity" yaml:"auto_order_quantity"`
	// ServerName 服务器友好名称
	ServerName string `json:"serverName,omitempty" yaml:"server_name"`
	// CreatedAt 创建时间
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	// LastStatus 状态键 -> 上次观测到的状态
	LastStatus map[string]string `json:"lastStatus" yaml:"-"`
	// History 最近的状态变化记录（旧 -> 新）
	History []HistoryEntry `json:"history" yaml:"-"`
}

// WatchesDatacenter 判断订阅是否监控指定数据中心
func (s *Subscription) WatchesDatacenter(dc string) bool {
	if len(s.Datacenters) == 0 {
		return true
	}
	for _, d := range s.Datacenters {
		if d == dc {
			return true
		}
	}
	return false
}

// OrderCount 自动下单时每个机房的下单次数
func (s *Subscription) OrderCount() int {
	if s.AutoOrderQuantity > 0 {
		return s.AutoOrderQuantity
	}
	return 1
}

// DisplayName 日志与消息中使用的展示名
func (s *Subscription) DisplayName() string {
	if s.ServerName != "" {
		return s.PlanCode + " (" + s.ServerName + ")"
	}
	return s.PlanCode
}

// Clone 深拷贝订阅
func (s *Subscription) Clone() Subscription {
	out := *s
	out.Datacenters = append([]string(nil), s.Datacenters...)
	out.LastStatus = make(map[string]string, len(s.LastStatus))
	for k, v := range s.LastStatus {
		out.LastStatus[k] = v
	}
	out.History = append([]HistoryEntry(nil), s.History...)
	return out
}

// StatusKey 生成状态追踪键
// 配置级别数据使用 "dc|configID"，旧版扁平数据直接使用数据中心。
func StatusKey(dc, configID string) string {
	if configID == "" {
		return dc
	}
	return dc + "|" + configID
}

// SplitStatusKey 拆分状态键，返回数据中心与配置 ID（扁平键的配置 ID 为空）
func SplitStatusKey(key string) (dc, configID string) {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// IsAvailable 状态值是否表示有货
func IsAvailable(status string) bool {
	return status != StatusUnavailable
}
