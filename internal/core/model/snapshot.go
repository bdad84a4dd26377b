package model

import (
	"sort"
	"strings"
)

// Entry 可用性快照中的一项
// 仅有两种实现：FlatStatus（旧版扁平状态）与 ConfiguredStatus（配置级别状态）。
type Entry interface {
	isEntry()
}

// FlatStatus 旧版扁平状态：单个数据中心的状态
type FlatStatus struct {
	// Datacenter 数据中心
	Datacenter string
	// Status 状态值
	Status string
}

// ConfiguredStatus 配置级别状态：某内存/存储组合在各数据中心的状态
type ConfiguredStatus struct {
	// ConfigID 配置标识
	ConfigID string
	// Memory 内存描述
	Memory string
	// Storage 存储描述
	Storage string
	// Options 下单使用的选项代码
	Options []string
	// Datacenters 数据中心 -> 状态
	Datacenters map[string]string
}

func (FlatStatus) isEntry()       {}
func (ConfiguredStatus) isEntry() {}

// Info 构建配置描述
func (c ConfiguredStatus) Info() *ConfigInfo {
	mem := c.Memory
	if mem == "" {
		mem = "N/A"
	}
	sto := c.Storage
	if sto == "" {
		sto = "N/A"
	}
	return &ConfigInfo{
		Memory:  mem,
		Storage: sto,
		Display: mem + " + " + sto,
		Options: append([]string(nil), c.Options...),
	}
}

// SortedDatacenters 按字典序返回数据中心，保证遍历顺序稳定
func (c ConfiguredStatus) SortedDatacenters() []string {
	dcs := make([]string, 0, len(c.Datacenters))
	for dc := range c.Datacenters {
		dcs = append(dcs, dc)
	}
	sort.Strings(dcs)
	return dcs
}

// Snapshot 单个型号当前完整的可用性快照
type Snapshot []Entry

// Statuses 将快照展开为 状态键 -> 状态
func (s Snapshot) Statuses() map[string]string {
	out := make(map[string]string)
	for _, e := range s {
		switch v := e.(type) {
		case FlatStatus:
			out[StatusKey(v.Datacenter, "")] = v.Status
		case ConfiguredStatus:
			for dc, st := range v.Datacenters {
				out[StatusKey(dc, v.ConfigID)] = st
			}
		}
	}
	return out
}

// ConfigInfo 配置描述
type ConfigInfo struct {
	// Memory 内存
	Memory string `json:"memory"`
	// Storage 存储
	Storage string `json:"storage"`
	// Display 展示文本，如 "32GB + 2x1TB"
	Display string `json:"display"`
	// Options 选项代码
	Options []string `json:"options,omitempty"`
}

// OptionsKey 与顺序无关的选项标识
func OptionsKey(options []string) string {
	sorted := append([]string(nil), options...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
